package temporal

import "regexp"

// PairPattern matches a start column and an end column of a lead-time pair.
type PairPattern struct {
	Start *regexp.Regexp
	End   *regexp.Regexp
}

// DefaultDateColumnPatterns mark a column name as date-bearing.
var DefaultDateColumnPatterns = compileAll(
	`date`,
	`delivery.*date`, `livraison`, `reception`,
	`order.*date`, `commande`,
	`ship.*date`, `expedition`, `envoi`,
	`due.*date`, `echeance`,
	`timestamp`, `datetime`,
)

// DefaultBlacklistPatterns are audit columns that are never temporal,
// whatever their content.
var DefaultBlacklistPatterns = compileAll(
	`created_at`, `updated_at`, `deleted_at`, `last_modified`,
	`created_by`, `updated_by`, `deleted_by`,
)

// DefaultPairPatterns are tried in order; each contributes at most one pair.
var DefaultPairPatterns = []PairPattern{
	pair(`order.*date`, `delivery.*date`),
	pair(`commande`, `livraison`),
	pair(`ship.*date`, `receive.*date`),
	pair(`expedition`, `reception`),
	pair(`start`, `end`),
	pair(`debut`, `fin`),
}

func compileAll(patterns ...string) []*regexp.Regexp {
	out := make([]*regexp.Regexp, len(patterns))
	for i, p := range patterns {
		out[i] = regexp.MustCompile(`(?i)` + p)
	}
	return out
}

func pair(start, end string) PairPattern {
	return PairPattern{
		Start: regexp.MustCompile(`(?i)` + start),
		End:   regexp.MustCompile(`(?i)` + end),
	}
}

func matchesAny(patterns []*regexp.Regexp, s string) bool {
	for _, p := range patterns {
		if p.MatchString(s) {
			return true
		}
	}
	return false
}
