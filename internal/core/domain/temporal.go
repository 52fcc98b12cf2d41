package domain

import "time"

// DateLayout is the rendering used for every date the system emits.
const DateLayout = "2006-01-02"

// LeadTimePair is a (start, end) pair of date columns.
type LeadTimePair struct {
	Start string `json:"start"`
	End   string `json:"end"`
}

// Key identifies the pair in TemporalMetadata.LeadTimeStats.
func (p LeadTimePair) Key() string {
	return p.Start + "→" + p.End
}

// LeadTimeStats summarises end-start durations, in days, for one column pair.
type LeadTimeStats struct {
	MeanDays     float64   `json:"mean_days"`
	MedianDays   float64   `json:"median_days"`
	MaxDays      float64   `json:"max_days"`
	MinDays      float64   `json:"min_days"`
	StdDays      float64   `json:"std_days"`
	Outliers     []float64 `json:"outliers"`
	TotalRecords int       `json:"total_records"`
}

// TimeRange is the earliest and latest date across a file's temporal columns.
type TimeRange struct {
	Earliest string `json:"earliest"`
	Latest   string `json:"latest"`
}

// RollingPoint is one observation with its rolling averages.
type RollingPoint struct {
	Date    string  `json:"date"`
	Value   float64 `json:"value"`
	Mean7d  float64 `json:"rolling_mean_7d"`
	Mean30d float64 `json:"rolling_mean_30d"`
}

// MonthlyChange is the percentage change of the monthly mean against the previous month.
type MonthlyChange struct {
	Month     string   `json:"month"`
	Mean      float64  `json:"mean"`
	PctChange *float64 `json:"pct_change,omitempty"`
}

// Seasonality describes the peak and trough calendar months.
type Seasonality struct {
	PeakMonth          int     `json:"peak_month"`
	PeakMonthName      string  `json:"peak_month_name"`
	PeakDeviationPct   float64 `json:"peak_deviation_pct"`
	LowMonth           int     `json:"low_month"`
	LowMonthName       string  `json:"low_month_name"`
	LowDeviationPct    float64 `json:"low_deviation_pct"`
	PatternDescription string  `json:"pattern_description"`
}

// Trends holds time-series analysis of a value column against a date column.
type Trends struct {
	DateColumn   string          `json:"date_column"`
	ValueColumn  string          `json:"value_column"`
	Rolling      []RollingPoint  `json:"rolling,omitempty"`
	MonthlyTrend []MonthlyChange `json:"monthly_trend,omitempty"`
	Seasonality  *Seasonality    `json:"seasonality,omitempty"`
}

// TemporalConfig is a user override of automatic date column detection.
type TemporalConfig struct {
	DateColumns   []string       `json:"date_columns,omitempty"`
	LeadTimePairs []LeadTimePair `json:"lead_time_pairs,omitempty"`
}

// IsEmpty reports whether the override sets nothing.
func (c *TemporalConfig) IsEmpty() bool {
	return c == nil || (len(c.DateColumns) == 0 && len(c.LeadTimePairs) == 0)
}

// TemporalMetadata is the per-file temporal summary persisted with the file record.
type TemporalMetadata struct {
	UploadDate            time.Time                `json:"upload_date"`
	DetectedDateColumns   []string                 `json:"detected_date_columns"`
	UserConfiguredColumns *TemporalConfig          `json:"user_configured_columns,omitempty"`
	TimeRange             *TimeRange               `json:"time_range,omitempty"`
	LeadTimeStats         map[string]LeadTimeStats `json:"lead_time_stats,omitempty"`
	Trends                []Trends                 `json:"trends,omitempty"`
}
