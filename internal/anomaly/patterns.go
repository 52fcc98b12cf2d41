package anomaly

import (
	"regexp"
)

// Keyword tables. Matching is case-insensitive substring search.
var (
	DefaultStockKeywords    = keywords("stock", "inventory", "quantity", "qty", "quantité", "inventaire")
	DefaultQuantityKeywords = keywords("quantity", "qty", "quantité", "qté")
	DefaultDateKeywords     = keywords("date", "livraison", "delivery", "commande", "order")
	DefaultLeadTimeKeywords = keywords("lead time", "délai")
)

var (
	// signedNumber matches a possibly negative number that is not glued to a
	// preceding word, so "SKU-12" does not read as -12.
	signedNumber = regexp.MustCompile(`(?:^|[^\p{L}\p{N}_-])(-?\d+(?:[.,]\d+)?)`)

	unsignedNumber = regexp.MustCompile(`\d+(?:[.,]\d+)?`)

	datePatterns = []*regexp.Regexp{
		regexp.MustCompile(`\d{1,2}/\d{1,2}/\d{2,4}`),
		regexp.MustCompile(`\d{4}-\d{2}-\d{2}`),
	}
)

func keywords(words ...string) []*regexp.Regexp {
	out := make([]*regexp.Regexp, len(words))
	for i, w := range words {
		out[i] = regexp.MustCompile(`(?i)` + regexp.QuoteMeta(w))
	}
	return out
}

func matchesAny(patterns []*regexp.Regexp, s string) bool {
	for _, p := range patterns {
		if p.MatchString(s) {
			return true
		}
	}
	return false
}
