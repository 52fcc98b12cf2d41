// Package temporal detects date columns in tabular data and derives
// supply-chain indicators from them: lead times between paired dates,
// the overall time range, and trends of numeric columns over time.
package temporal

import (
	"log/slog"
	"math"
	"regexp"
	"sort"
	"time"

	"github.com/custodia-labs/supplychain-assistant/internal/core/domain"
)

// Config holds analyzer thresholds and pattern tables. Zero values take the defaults.
type Config struct {
	DatePatterns      []*regexp.Regexp
	BlacklistPatterns []*regexp.Regexp
	PairPatterns      []PairPattern

	// MinValidRatio is the share of sampled values that must parse as dates.
	MinValidRatio float64
	// MinNonNullRatio rejects columns that are mostly empty.
	MinNonNullRatio float64
	// SampleSize caps how many values are parsed per candidate column.
	SampleSize int
	// MaxOutliers caps the outlier list in lead-time statistics.
	MaxOutliers int

	Logger *slog.Logger
}

// Analyzer performs temporal analysis of tables. Safe for concurrent use.
type Analyzer struct {
	cfg    Config
	logger *slog.Logger
}

// NewAnalyzer creates an analyzer with defaults applied to unset fields.
func NewAnalyzer(cfg Config) *Analyzer {
	if cfg.DatePatterns == nil {
		cfg.DatePatterns = DefaultDateColumnPatterns
	}
	if cfg.BlacklistPatterns == nil {
		cfg.BlacklistPatterns = DefaultBlacklistPatterns
	}
	if cfg.PairPatterns == nil {
		cfg.PairPatterns = DefaultPairPatterns
	}
	if cfg.MinValidRatio <= 0 {
		cfg.MinValidRatio = 0.1
	}
	if cfg.MinNonNullRatio <= 0 {
		cfg.MinNonNullRatio = 0.1
	}
	if cfg.SampleSize <= 0 {
		cfg.SampleSize = 100
	}
	if cfg.MaxOutliers <= 0 {
		cfg.MaxOutliers = 10
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Analyzer{cfg: cfg, logger: logger}
}

// DetectTemporalColumns returns the date-bearing columns among candidates,
// in table order. An empty candidate list means every column.
func (a *Analyzer) DetectTemporalColumns(t *Table, candidates []string) []string {
	if len(candidates) == 0 {
		candidates = t.Columns
	}

	var detected []string
	for _, col := range candidates {
		if t.ColumnIndex(col) < 0 {
			continue
		}
		if a.isTemporalColumn(t, col) {
			detected = append(detected, col)
		}
	}
	return detected
}

func (a *Analyzer) isTemporalColumn(t *Table, col string) bool {
	if matchesAny(a.cfg.BlacklistPatterns, col) {
		a.logger.Debug("skipping blacklisted column", "column", col)
		return false
	}
	if !matchesAny(a.cfg.DatePatterns, col) {
		return false
	}
	if t.NativeDates[col] {
		return true
	}

	cells := t.Column(col)
	values := nonNull(cells)
	if len(values) == 0 {
		return false
	}
	if float64(len(values))/float64(len(cells)) < a.cfg.MinNonNullRatio {
		a.logger.Debug("column too sparse", "column", col, "non_null", len(values), "rows", len(cells))
		return false
	}

	sample := sampleEvenly(values, a.cfg.SampleSize)
	valid := 0
	for _, v := range sample {
		if _, ok := ParseDate(v); ok {
			valid++
		}
	}
	return float64(valid)/float64(len(sample)) >= a.cfg.MinValidRatio
}

// IdentifyLeadTimePairs pairs start and end date columns. Two columns are
// paired in order; otherwise the pair patterns are tried in turn.
func (a *Analyzer) IdentifyLeadTimePairs(dateColumns []string) []domain.LeadTimePair {
	if len(dateColumns) < 2 {
		return nil
	}
	if len(dateColumns) == 2 {
		return []domain.LeadTimePair{{Start: dateColumns[0], End: dateColumns[1]}}
	}

	var pairs []domain.LeadTimePair
	for _, p := range a.cfg.PairPatterns {
		start := firstMatch(p.Start, dateColumns)
		end := firstMatch(p.End, dateColumns)
		if start == "" || end == "" || start == end {
			continue
		}
		pairs = append(pairs, domain.LeadTimePair{Start: start, End: end})
	}
	return pairs
}

// CalculateLeadTimes computes whole-day durations between the two columns,
// dropping rows where either date is missing or the duration is negative.
// Returns nil when no valid row remains.
func (a *Analyzer) CalculateLeadTimes(t *Table, startCol, endCol string) *domain.LeadTimeStats {
	starts, ends := t.Column(startCol), t.Column(endCol)
	if starts == nil || ends == nil {
		return nil
	}

	var durations []float64
	for i := range starts {
		s, ok1 := ParseDate(starts[i])
		e, ok2 := ParseDate(ends[i])
		if !ok1 || !ok2 {
			continue
		}
		if d := days(s, e); d >= 0 {
			durations = append(durations, float64(d))
		}
	}
	if len(durations) == 0 {
		return nil
	}
	return a.leadTimeStats(durations)
}

func (a *Analyzer) leadTimeStats(durations []float64) *domain.LeadTimeStats {
	mean := meanOf(durations)
	std := sampleStd(durations, mean)

	threshold := mean + 2*std
	outliers := []float64{}
	for _, d := range durations {
		if d > threshold && len(outliers) < a.cfg.MaxOutliers {
			outliers = append(outliers, d)
		}
	}

	lo, hi := durations[0], durations[0]
	for _, d := range durations {
		lo = math.Min(lo, d)
		hi = math.Max(hi, d)
	}

	return &domain.LeadTimeStats{
		MeanDays:     round2(mean),
		MedianDays:   round2(median(durations)),
		MaxDays:      hi,
		MinDays:      lo,
		StdDays:      round2(std),
		Outliers:     outliers,
		TotalRecords: len(durations),
	}
}

// ExtractTimeRange returns the earliest and latest dates across columns,
// or nil when none parse.
func (a *Analyzer) ExtractTimeRange(t *Table, dateColumns []string) *domain.TimeRange {
	var earliest, latest time.Time
	found := false
	for _, col := range dateColumns {
		for _, v := range t.Column(col) {
			d, ok := ParseDate(v)
			if !ok {
				continue
			}
			if !found || d.Before(earliest) {
				earliest = d
			}
			if !found || d.After(latest) {
				latest = d
			}
			found = true
		}
	}
	if !found {
		return nil
	}
	return &domain.TimeRange{Earliest: FormatDate(earliest), Latest: FormatDate(latest)}
}

// RowContexts returns, for each row, the date columns' values formatted as
// YYYY-MM-DD. Values that do not parse are kept verbatim; empty cells are omitted.
func (a *Analyzer) RowContexts(t *Table, dateColumns []string) []map[string]string {
	if len(dateColumns) == 0 {
		return nil
	}
	out := make([]map[string]string, len(t.Rows))
	for i, row := range t.Rows {
		ctx := make(map[string]string, len(dateColumns))
		for _, col := range dateColumns {
			idx := t.ColumnIndex(col)
			if idx < 0 || row[idx] == "" {
				continue
			}
			if d, ok := ParseDate(row[idx]); ok {
				ctx[col] = FormatDate(d)
			} else {
				ctx[col] = row[idx]
			}
		}
		if len(ctx) > 0 {
			out[i] = ctx
		}
	}
	return out
}

// Analyze runs the full pipeline on one table. A non-empty override replaces
// column detection and pairing. The returned row contexts align with t.Rows.
func (a *Analyzer) Analyze(t *Table, sheet string, override *domain.TemporalConfig) (domain.TableAnalysis, []map[string]string) {
	analysis := domain.TableAnalysis{Sheet: sheet}

	var dateCols []string
	var pairs []domain.LeadTimePair
	if override != nil && !override.IsEmpty() {
		for _, c := range override.DateColumns {
			if t.ColumnIndex(c) >= 0 {
				dateCols = append(dateCols, c)
			}
		}
		pairs = override.LeadTimePairs
	} else {
		dateCols = a.DetectTemporalColumns(t, nil)
	}
	if len(pairs) == 0 {
		pairs = a.IdentifyLeadTimePairs(dateCols)
	}

	analysis.DateColumns = dateCols
	if len(dateCols) == 0 {
		analysis.DateColumns = []string{}
		return analysis, nil
	}

	for _, p := range pairs {
		stats := a.CalculateLeadTimes(t, p.Start, p.End)
		if stats == nil {
			continue
		}
		if analysis.LeadTimeStats == nil {
			analysis.LeadTimeStats = make(map[string]domain.LeadTimeStats)
		}
		analysis.LeadTimePairs = append(analysis.LeadTimePairs, p)
		analysis.LeadTimeStats[p.Key()] = *stats
	}

	analysis.TimeRange = a.ExtractTimeRange(t, dateCols)

	if valueCol := a.firstNumericColumn(t, dateCols); valueCol != "" {
		if tr := a.CalculateTrends(t, dateCols[0], valueCol); tr != nil {
			analysis.Trends = append(analysis.Trends, *tr)
		}
	}

	a.logger.Debug("temporal analysis complete",
		"sheet", sheet,
		"date_columns", len(dateCols),
		"lead_time_pairs", len(analysis.LeadTimePairs))

	return analysis, a.RowContexts(t, dateCols)
}

// firstNumericColumn picks the first non-date column whose non-empty cells
// are all numbers.
func (a *Analyzer) firstNumericColumn(t *Table, dateCols []string) string {
	isDate := make(map[string]bool, len(dateCols))
	for _, c := range dateCols {
		isDate[c] = true
	}
	for _, col := range t.Columns {
		if isDate[col] {
			continue
		}
		values := nonNull(t.Column(col))
		if len(values) < 2 {
			continue
		}
		numeric := true
		for _, v := range values {
			if _, ok := ParseNumber(v); !ok {
				numeric = false
				break
			}
		}
		if numeric {
			return col
		}
	}
	return ""
}

func firstMatch(p *regexp.Regexp, cols []string) string {
	for _, c := range cols {
		if p.MatchString(c) {
			return c
		}
	}
	return ""
}

func nonNull(cells []string) []string {
	out := make([]string, 0, len(cells))
	for _, c := range cells {
		if c != "" {
			out = append(out, c)
		}
	}
	return out
}

// sampleEvenly takes up to n values at a fixed stride so the same input
// always yields the same sample.
func sampleEvenly(values []string, n int) []string {
	if len(values) <= n {
		return values
	}
	out := make([]string, n)
	step := float64(len(values)) / float64(n)
	for i := range out {
		out[i] = values[int(float64(i)*step)]
	}
	return out
}

func meanOf(xs []float64) float64 {
	var sum float64
	for _, x := range xs {
		sum += x
	}
	return sum / float64(len(xs))
}

// sampleStd is the n-1 standard deviation; zero for a single value.
func sampleStd(xs []float64, mean float64) float64 {
	if len(xs) < 2 {
		return 0
	}
	var ss float64
	for _, x := range xs {
		ss += (x - mean) * (x - mean)
	}
	return math.Sqrt(ss / float64(len(xs)-1))
}

func median(xs []float64) float64 {
	sorted := append([]float64(nil), xs...)
	sort.Float64s(sorted)
	mid := len(sorted) / 2
	if len(sorted)%2 == 1 {
		return sorted[mid]
	}
	return (sorted[mid-1] + sorted[mid]) / 2
}

func round2(x float64) float64 {
	return math.Round(x*100) / 100
}

func round1(x float64) float64 {
	return math.Round(x*10) / 10
}
