package resolve

import (
	"regexp"
	"strings"

	"github.com/xkilldash9x/formsmith/internal/document"
)

// Label phrasings per intent. Each entry is a case-insensitive regular expression matched
// against trimmed label text.
var (
	CityLabels       = []string{`^city\b`, `^town\b`, `town\/?city`, `city \(max`, `town \(max`}
	PostalLabels     = []string{`^zip code\b`, `^postal code\b`, `^post code\b`, `^postcode\b`, `\bzip\b`}
	LastNameLabels   = []string{`^last name\b`, `^surname\b`, `^family name\b`}
	MobileLabels     = []string{`^mobile\b`, `^phone\b`, `mobile number`}
	AddressLabels    = []string{`^address\b`, `^street address\b`, `^address line 1\b`}
	CountryLabels    = []string{`^country\b`, `country of residence`}
	GenderLabels     = []string{`^gender\b`}
	AcceptTermsLabel = "accept"
)

var (
	addressishRe = regexp.MustCompile(`(?i)address|\baddr(line|1|2|3)?\b`)
	zipishRe     = regexp.MustCompile(`(?i)zip|postal|post ?code|\bcode\b`)
	cityishRe    = regexp.MustCompile(`(?i)city|town|ville`)
	digitsRe     = regexp.MustCompile(`^\d+$`)
	ukPostcodeRe = regexp.MustCompile(`(?i)postcode|post.*code|zip`)
)

// labelTags are the elements that may carry a visible label.
var labelTags = []string{"label", "span", "div", "p", "strong", "b"}

// compile builds case-insensitive matchers, skipping patterns that do not parse.
func compile(patterns []string) []*regexp.Regexp {
	out := make([]*regexp.Regexp, 0, len(patterns))
	for _, p := range patterns {
		re, err := regexp.Compile("(?i)" + p)
		if err != nil {
			continue
		}
		out = append(out, re)
	}
	return out
}

func matchesAny(res []*regexp.Regexp, text string) bool {
	text = strings.TrimSpace(text)
	if text == "" {
		return false
	}
	for _, re := range res {
		if re.MatchString(text) {
			return true
		}
	}
	return false
}

// hint is placeholder, name and id joined, the haystack for attribute heuristics.
func hint(n *document.Node) string { return document.Describe(n).Hint() }

func isAddressish(n *document.Node) bool { return addressishRe.MatchString(hint(n)) }
func isCityish(n *document.Node) bool    { return cityishRe.MatchString(hint(n)) }

func isZipish(n *document.Node) bool {
	return zipishRe.MatchString(hint(n)) || strings.EqualFold(n.Attr("autocomplete"), "postal-code")
}

// containsFold reports whether s contains substr, ignoring case.
func containsFold(s, substr string) bool {
	return strings.Contains(strings.ToLower(s), strings.ToLower(substr))
}

// writableEntry reports whether n is a visible, enabled free-text control.
func writableEntry(n *document.Node) bool {
	return n.IsTextEntry() && document.Describe(n).Writable()
}

// writableSelect reports whether n is a visible, enabled select.
func writableSelect(n *document.Node) bool {
	return n.Tag == "select" && document.Describe(n).Writable()
}
