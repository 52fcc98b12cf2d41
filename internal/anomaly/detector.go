// Package anomaly scans extracted chunks for supply-chain anomalies such as
// negative stock levels and abnormal lead times.
package anomaly

import (
	"fmt"
	"log/slog"
	"regexp"
	"strconv"
	"strings"

	"github.com/custodia-labs/supplychain-assistant/internal/core/domain"
)

// Default lead-time thresholds, in days.
const (
	DefaultMaxLeadTimeDays = 90
	DefaultMinLeadTimeDays = 1
)

// Config holds detection thresholds and keyword tables. Nil fields take the
// defaults. A MinLeadTimeDays of zero turns the short lead-time rule off.
type Config struct {
	MaxLeadTimeDays *float64
	MinLeadTimeDays *float64

	StockKeywords    []*regexp.Regexp
	QuantityKeywords []*regexp.Regexp
	DateKeywords     []*regexp.Regexp
	LeadTimeKeywords []*regexp.Regexp

	// OnDateInconsistency receives advisory date findings. They never become alerts.
	OnDateInconsistency func(meta domain.ChunkMetadata, dates []string)

	Logger *slog.Logger
}

// Detector finds anomalies in chunks. It holds no state between chunks and
// is safe for concurrent use.
type Detector struct {
	cfg     Config
	maxLead float64
	minLead float64
	logger  *slog.Logger
}

// NewDetector creates a detector with defaults applied to unset fields.
func NewDetector(cfg Config) *Detector {
	if cfg.StockKeywords == nil {
		cfg.StockKeywords = DefaultStockKeywords
	}
	if cfg.QuantityKeywords == nil {
		cfg.QuantityKeywords = DefaultQuantityKeywords
	}
	if cfg.DateKeywords == nil {
		cfg.DateKeywords = DefaultDateKeywords
	}
	if cfg.LeadTimeKeywords == nil {
		cfg.LeadTimeKeywords = DefaultLeadTimeKeywords
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	d := &Detector{
		cfg:     cfg,
		maxLead: DefaultMaxLeadTimeDays,
		minLead: DefaultMinLeadTimeDays,
		logger:  logger,
	}
	if cfg.MaxLeadTimeDays != nil {
		d.maxLead = *cfg.MaxLeadTimeDays
	}
	if cfg.MinLeadTimeDays != nil {
		d.minLead = *cfg.MinLeadTimeDays
	}
	if d.cfg.OnDateInconsistency == nil {
		d.cfg.OnDateInconsistency = d.logDates
	}
	return d
}

// Detect runs every detector over every chunk.
func (d *Detector) Detect(chunks []domain.Chunk) []domain.Alert {
	var alerts []domain.Alert
	for _, c := range chunks {
		alerts = append(alerts, d.DetectChunk(c)...)
	}
	d.logger.Info("anomaly detection complete", "chunks", len(chunks), "alerts", len(alerts))
	return alerts
}

// DetectChunk runs every detector over one chunk.
func (d *Detector) DetectChunk(c domain.Chunk) []domain.Alert {
	var alerts []domain.Alert
	alerts = append(alerts, d.NegativeStock(c)...)
	alerts = append(alerts, d.NegativeQuantity(c)...)
	if dates := d.DateInconsistency(c); len(dates) > 0 {
		d.cfg.OnDateInconsistency(c.Metadata, dates)
	}
	alerts = append(alerts, d.LeadTimeOutliers(c)...)
	return alerts
}

// NegativeStock flags negative values in stock or inventory data. Excel
// cells are judged by their column header; CSV rows and text by keyword
// presence anywhere in the content, one alert per negative number.
func (d *Detector) NegativeStock(c domain.Chunk) []domain.Alert {
	switch c.SourceType {
	case domain.SourceTypeExcel:
		if !matchesAny(d.cfg.StockKeywords, c.Metadata.ColumnHeader) {
			return nil
		}
		v, ok := d.cellValue(c)
		if !ok || v >= 0 {
			return nil
		}
		d.logger.Warn("negative stock detected", "value", v, "cell", c.Metadata.CellRef, "sheet", c.Metadata.SheetName)
		return []domain.Alert{d.stockAlert(c, v)}

	case domain.SourceTypeCSV, domain.SourceTypeText:
		if !matchesAny(d.cfg.StockKeywords, c.Content) {
			return nil
		}
		var alerts []domain.Alert
		for _, m := range signedNumber.FindAllStringSubmatch(c.Content, -1) {
			v, ok := parseNumber(m[1])
			if ok && v < 0 {
				alerts = append(alerts, d.stockAlert(c, v))
			}
		}
		return alerts
	}
	return nil
}

// NegativeQuantity flags negative Excel cells under a quantity header that
// is not also a stock header.
func (d *Detector) NegativeQuantity(c domain.Chunk) []domain.Alert {
	if c.SourceType != domain.SourceTypeExcel {
		return nil
	}
	header := c.Metadata.ColumnHeader
	if !matchesAny(d.cfg.QuantityKeywords, header) || matchesAny(d.cfg.StockKeywords, header) {
		return nil
	}
	v, ok := d.cellValue(c)
	if !ok || v >= 0 {
		return nil
	}
	return []domain.Alert{newAlert(c, domain.AlertTypeNegativeQuantity, domain.SeverityWarning,
		fmt.Sprintf("Quantité négative détectée: %s", formatNumber(v)), v)}
}

// DateInconsistency returns the date-like substrings of a chunk when it
// mentions dates and holds at least two of them. The result is advisory.
func (d *Detector) DateInconsistency(c domain.Chunk) []string {
	if !matchesAny(d.cfg.DateKeywords, c.Content) {
		return nil
	}
	var found []string
	for _, p := range datePatterns {
		found = append(found, p.FindAllString(c.Content, -1)...)
	}
	if len(found) < 2 {
		return nil
	}
	return found
}

// LeadTimeOutliers flags day counts above MaxLeadTimeDays or strictly
// between zero and MinLeadTimeDays in chunks that talk about lead times.
func (d *Detector) LeadTimeOutliers(c domain.Chunk) []domain.Alert {
	if !matchesAny(d.cfg.LeadTimeKeywords, c.Content) {
		return nil
	}

	var alerts []domain.Alert
	for _, tok := range unsignedNumber.FindAllString(c.Content, -1) {
		days, ok := parseNumber(tok)
		if !ok {
			continue
		}
		switch {
		case days > d.maxLead:
			alerts = append(alerts, newAlert(c, domain.AlertTypeLeadTimeOutlier, domain.SeverityWarning,
				fmt.Sprintf("Délai anormalement long: %s jours (> %s jours)", formatNumber(days), formatThreshold(d.maxLead)), days))
		case days > 0 && days < d.minLead:
			alerts = append(alerts, newAlert(c, domain.AlertTypeLeadTimeOutlier, domain.SeverityInfo,
				fmt.Sprintf("Délai très court: %s jours (< %s jour)", formatNumber(days), formatThreshold(d.minLead)), days))
		}
	}
	return alerts
}

func (d *Detector) stockAlert(c domain.Chunk, v float64) domain.Alert {
	return newAlert(c, domain.AlertTypeNegativeStock, domain.SeverityCritical,
		fmt.Sprintf("Stock négatif détecté: %s unités", formatNumber(v)), v)
}

func (d *Detector) cellValue(c domain.Chunk) (float64, bool) {
	v, ok := parseNumber(c.Metadata.Value)
	if !ok {
		d.logger.Debug("skipping non-numeric cell", "cell", c.Metadata.CellRef, "value", c.Metadata.Value)
	}
	return v, ok
}

func (d *Detector) logDates(meta domain.ChunkMetadata, dates []string) {
	d.logger.Debug("multiple dates in chunk", "filename", meta.Filename, "dates", dates)
}

func newAlert(c domain.Chunk, typ domain.AlertType, sev domain.Severity, msg string, v float64) domain.Alert {
	return domain.Alert{
		Type:           typ,
		Severity:       sev,
		Message:        msg,
		Value:          &v,
		SourceMetadata: c.Metadata,
	}
}

func parseNumber(s string) (float64, bool) {
	s = strings.TrimSpace(strings.Replace(s, ",", ".", 1))
	if s == "" {
		return 0, false
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

// formatNumber renders whole numbers with one decimal, as in "-50.0".
func formatNumber(v float64) string {
	s := strconv.FormatFloat(v, 'f', -1, 64)
	if !strings.Contains(s, ".") {
		s += ".0"
	}
	return s
}

func formatThreshold(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
