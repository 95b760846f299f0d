// Package output renders a ProcessedResult/ComputedOutputs into the
// three front-end surfaces §8.4/§8.5 describe: the deploy-matrix JSON
// shape, the CI-runner key/value output file, and JSON-escaped string
// values. JSON escaping itself is left to encoding/json.Encoder, which
// already satisfies §8.5's streaming-into-one-buffer requirement; only
// the CI-output safe-escape alphabet (%, CR, LF) is hand-written, since
// it is narrower than general JSON escaping and has no stdlib helper.
package output

import (
	"path/filepath"
	"strings"
)

var safeEscapeReplacer = strings.NewReplacer(
	"%", "%25",
	"\r", "%0D",
	"\n", "%0A",
)

// SafeEscape applies the CI-output value escape: % -> %25, CR -> %0D,
// LF -> %0A, in that order so a literal "%0A" in the input isn't
// re-escaped into something indistinguishable from an escaped newline.
func SafeEscape(s string) string {
	return safeEscapeReplacer.Replace(s)
}

// NormalizePathSeparator implements use_posix_path_separator: when set,
// every reported path is forced to forward slashes regardless of the
// host OS, so output stays stable when the action runs on a Windows
// runner.
func NormalizePathSeparator(p string, usePosix bool) string {
	if !usePosix {
		return p
	}
	return filepath.ToSlash(p)
}
