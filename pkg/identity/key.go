package identity

import (
	"path/filepath"
	"strings"

	"golang.org/x/text/unicode/norm"
)

// GlobalKey is the scope and branch key used when scoping is bypassed.
const GlobalKey = "global"

var keyReplacer = strings.NewReplacer("/", "-", "\\", "-", ":", "-")

// Normalize turns a directory or branch name into a string usable as a
// single file name. The input is NFC-normalized first so that the composed
// and decomposed spellings of the same directory produce the same key.
func Normalize(s string) string {
	s = keyReplacer.Replace(norm.NFC.String(s))
	if s == "" {
		return "_"
	}
	return s
}

// documentReplacer percent-escapes the characters Normalize folds into '-'
// so that distinct paths never share a file name.
var documentReplacer = strings.NewReplacer(
	"%", "%25",
	"-", "%2D",
	":", "%3A",
	"\\", "%5C",
	"/", "-",
)

// DocumentKey turns an absolute document path into a single file name. It
// reads like Normalize for common paths but is reversible: "/src/a-b.go" and
// "/src/a/b.go" map to different keys.
func DocumentKey(path string) string {
	s := documentReplacer.Replace(filepath.ToSlash(norm.NFC.String(path)))
	if s == "" {
		return "_"
	}
	return s
}
