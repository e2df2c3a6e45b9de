package ingest

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/cognicore/docasm/pkg/docasm/internalerr"
)

// Mode selects how whitespace, newlines and tabs are cleaned up before a
// document annotation is built.
type Mode string

const (
	ModeDisabled    Mode = "disabled"
	ModeInplace     Mode = "inplace"
	ModeInplaceFull Mode = "inplace_full"
	ModeShrink      Mode = "shrink"
	ModeShrinkFull  Mode = "shrink_full"
	ModeEach        Mode = "each"
	ModeEachFull    Mode = "each_full"
	ModeDeleteFull  Mode = "delete_full"
)

// Modes returns every supported cleanup mode in declaration order.
func Modes() []Mode {
	return []Mode{
		ModeDisabled,
		ModeInplace,
		ModeInplaceFull,
		ModeShrink,
		ModeShrinkFull,
		ModeEach,
		ModeEachFull,
		ModeDeleteFull,
	}
}

// Valid reports whether m is one of the supported modes.
func (m Mode) Valid() bool {
	for _, known := range Modes() {
		if m == known {
			return true
		}
	}
	return false
}

// ParseMode converts a configuration value into a Mode.
// The empty string selects ModeDisabled.
func ParseMode(s string) (Mode, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return ModeDisabled, nil
	}
	m := Mode(s)
	if !m.Valid() {
		return "", unknownMode(s)
	}
	return m, nil
}

func unknownMode(s string) error {
	names := make([]string, 0, len(Modes()))
	for _, m := range Modes() {
		names = append(names, string(m))
	}
	return fmt.Errorf("%w: cleanup mode %q, supported: %s", internalerr.ErrInvalidConfig, s, strings.Join(names, ", "))
}

// whitespace matches the same class as \s in the JVM regex dialect, which
// includes vertical tab.
const whitespace = `[\t\n\v\f\r ]`

// escaped matches the two-character literals "\r\n", "\r", "\n" and "\t"
// that show up when text was stringified with its escapes intact.
const escaped = `\\r\\n|\\r|\\n|\\t`

var (
	reSpace          = regexp.MustCompile(whitespace)
	reSpaceRun       = regexp.MustCompile(whitespace + `+`)
	reSpaceOrEscaped = regexp.MustCompile(whitespace + `|` + escaped)
	reMixedRun       = regexp.MustCompile(`(?:` + whitespace + `|` + escaped + `)+`)
	reSpaceBreak     = regexp.MustCompile(whitespace + `[\n\t]`)
	reSpaceBreakAll  = regexp.MustCompile(whitespace + `(?:[\n\t]|` + escaped + `)`)
	reEscaped        = regexp.MustCompile(escaped)
)

// Normalize applies the cleanup mode to the whole text.
func Normalize(text string, mode Mode) (string, error) {
	switch mode {
	case ModeDisabled:
		return text, nil
	case ModeInplace:
		return reSpace.ReplaceAllLiteralString(text, " "), nil
	case ModeInplaceFull:
		return reSpaceOrEscaped.ReplaceAllLiteralString(text, " "), nil
	case ModeShrink:
		return reSpaceRun.ReplaceAllLiteralString(trim(text), " "), nil
	case ModeShrinkFull:
		return trim(reMixedRun.ReplaceAllLiteralString(text, " ")), nil
	case ModeEach:
		return reSpaceBreak.ReplaceAllLiteralString(text, " "), nil
	case ModeEachFull:
		return reSpaceBreakAll.ReplaceAllLiteralString(text, " "), nil
	case ModeDeleteFull:
		return trim(deleteEscapes(text)), nil
	default:
		return "", unknownMode(string(mode))
	}
}

// NormalizeNullable treats a nil text as the empty string.
func NormalizeNullable(text *string, mode Mode) (string, error) {
	if text == nil {
		return Normalize("", mode)
	}
	return Normalize(*text, mode)
}

// deleteEscapes removes escaped sequences until none are left, since a
// removal can join a stray backslash with the following letter.
func deleteEscapes(text string) string {
	for {
		next := reEscaped.ReplaceAllLiteralString(text, "")
		if next == text {
			return next
		}
		text = next
	}
}

// trim drops every code point up to and including U+0020 from both ends.
func trim(text string) string {
	return strings.TrimFunc(text, func(r rune) bool { return r <= ' ' })
}
