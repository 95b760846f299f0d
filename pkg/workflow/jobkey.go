package workflow

import "strings"

// ExtractJobKey returns the substring between the first "[" and the
// first "]" that follows it, or "" if no such bracket pair exists.
//
// Edge cases (exact, per the attribution rules job-level failure
// tracking depends on):
//
//	"[]"               -> ""           (empty key, not "no key")
//	"A [B] [C]"         -> "B"          (first pair only)
//	"Deploy [[inner]]"  -> "[inner"     (first "[" to first "]")
//	"no brackets here"  -> "", false
//	"A [unterminated"   -> "", false
func ExtractJobKey(name string) (string, bool) {
	open := strings.IndexByte(name, '[')
	if open < 0 {
		return "", false
	}
	close := strings.IndexByte(name[open+1:], ']')
	if close < 0 {
		return "", false
	}
	return name[open+1 : open+1+close], true
}
