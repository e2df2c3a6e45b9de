package ingest

import (
	"fmt"
	"strings"

	"golang.org/x/text/unicode/norm"

	"github.com/cognicore/docasm/pkg/docasm/internalerr"
)

// UnicodeForm is an optional Unicode normalization applied before cleanup.
type UnicodeForm string

const (
	UnicodeNone UnicodeForm = "none"
	UnicodeNFC  UnicodeForm = "nfc"
	UnicodeNFKC UnicodeForm = "nfkc"
	UnicodeNFD  UnicodeForm = "nfd"
	UnicodeNFKD UnicodeForm = "nfkd"
)

// ParseUnicodeForm accepts the names above case-insensitively; empty means none.
func ParseUnicodeForm(s string) (UnicodeForm, error) {
	switch f := UnicodeForm(strings.ToLower(strings.TrimSpace(s))); f {
	case "":
		return UnicodeNone, nil
	case UnicodeNone, UnicodeNFC, UnicodeNFKC, UnicodeNFD, UnicodeNFKD:
		return f, nil
	default:
		return "", fmt.Errorf("%w: unicode form %q", internalerr.ErrInvalidConfig, s)
	}
}

// Apply returns text in the selected normalization form.
func (f UnicodeForm) Apply(text string) string {
	switch f {
	case UnicodeNFC:
		return norm.NFC.String(text)
	case UnicodeNFKC:
		return norm.NFKC.String(text)
	case UnicodeNFD:
		return norm.NFD.String(text)
	case UnicodeNFKD:
		return norm.NFKD.String(text)
	default:
		return text
	}
}
