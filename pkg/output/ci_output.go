package output

import (
	"fmt"
	"io"

	uuid "github.com/satori/go.uuid"
)

// WriteKV appends one `key<<DELIM\nvalue\nDELIM\n` entry to w, per
// GitHub Actions' heredoc-style `$GITHUB_OUTPUT` format. The delimiter
// is a fixed token per the spec rather than a freshly generated one per
// call, since every value here is attacker-uncontrolled (computed by
// this pipeline, not sourced from a PR body or similar).
func WriteKV(w io.Writer, key, value string) error {
	const delim = "LECHANGE_EOF"
	_, err := fmt.Fprintf(w, "%s<<%s\n%s\n%s\n", key, delim, SafeEscape(value), delim)
	return err
}

// WriteKVUnique is WriteKV but with a per-call random delimiter suffix,
// for values whose content cannot be ruled out to contain the fixed
// delimiter token itself (e.g. a diagnostics blob echoing arbitrary
// commit messages).
func WriteKVUnique(w io.Writer, key, value string) error {
	delim := "LECHANGE_EOF_" + uuid.NewV4().String()
	_, err := fmt.Fprintf(w, "%s<<%s\n%s\n%s\n", key, delim, SafeEscape(value), delim)
	return err
}
