package carrier

import (
	"strings"

	"golang.org/x/text/width"
)

// NormalizeContactNumber prepares a postal code or phone number for the slip
// form: full-width characters are folded to their narrow forms and every
// hyphen variant is removed. Buyer-entered values routinely contain
// full-width digits and the U+2212 minus sign.
func NormalizeContactNumber(s string) string {
	s = width.Narrow.String(s)
	s = strings.Map(func(r rune) rune {
		switch r {
		case '-', '−', 'ー', '‐':
			return -1
		}
		return r
	}, s)
	return strings.TrimSpace(s)
}
