package temporal

import (
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/custodia-labs/supplychain-assistant/internal/core/domain"
)

// MonthNames are the French calendar month names, January first.
var MonthNames = [12]string{
	"janvier", "février", "mars", "avril", "mai", "juin",
	"juillet", "août", "septembre", "octobre", "novembre", "décembre",
}

const (
	seasonalityMinMonths    = 6
	seasonalityThresholdPct = 15.0
)

type point struct {
	date  time.Time
	value float64
}

// CalculateTrends computes rolling means, month-over-month change and
// seasonality of valueCol ordered by dateCol. Returns nil with fewer than
// two usable rows.
func (a *Analyzer) CalculateTrends(t *Table, dateCol, valueCol string) *domain.Trends {
	dates, values := t.Column(dateCol), t.Column(valueCol)
	if dates == nil || values == nil {
		return nil
	}

	var points []point
	for i := range dates {
		d, ok := ParseDate(dates[i])
		if !ok {
			continue
		}
		v, ok := ParseNumber(values[i])
		if !ok {
			continue
		}
		points = append(points, point{date: d, value: v})
	}
	if len(points) < 2 {
		return nil
	}
	sort.SliceStable(points, func(i, j int) bool { return points[i].date.Before(points[j].date) })

	return &domain.Trends{
		DateColumn:   dateCol,
		ValueColumn:  valueCol,
		Rolling:      rolling(points),
		MonthlyTrend: monthlyTrend(points),
		Seasonality:  seasonality(points),
	}
}

// rolling computes trailing means over windows of 7 and 30 points.
func rolling(points []point) []domain.RollingPoint {
	w7 := min(7, len(points))
	w30 := min(30, len(points))

	out := make([]domain.RollingPoint, len(points))
	for i, p := range points {
		out[i] = domain.RollingPoint{
			Date:    FormatDate(p.date),
			Value:   p.value,
			Mean7d:  round2(trailingMean(points, i, w7)),
			Mean30d: round2(trailingMean(points, i, w30)),
		}
	}
	return out
}

func trailingMean(points []point, i, window int) float64 {
	start := max(0, i-window+1)
	var sum float64
	for _, p := range points[start : i+1] {
		sum += p.value
	}
	return sum / float64(i+1-start)
}

func monthlyTrend(points []point) []domain.MonthlyChange {
	type acc struct {
		sum float64
		n   int
	}
	byMonth := make(map[string]*acc)
	var months []string
	for _, p := range points {
		key := p.date.Format("2006-01")
		if byMonth[key] == nil {
			byMonth[key] = &acc{}
			months = append(months, key)
		}
		byMonth[key].sum += p.value
		byMonth[key].n++
	}
	if len(months) < 2 {
		return nil
	}
	sort.Strings(months)

	out := make([]domain.MonthlyChange, len(months))
	var prev float64
	for i, m := range months {
		mean := byMonth[m].sum / float64(byMonth[m].n)
		out[i] = domain.MonthlyChange{Month: m, Mean: round2(mean)}
		if i > 0 && prev != 0 {
			pct := round2((mean - prev) / prev * 100)
			out[i].PctChange = &pct
		}
		prev = mean
	}
	return out
}

// seasonality needs at least six months of span and six distinct calendar
// months, and reports only when the peak deviates by 15% or more.
func seasonality(points []point) *domain.Seasonality {
	span := points[len(points)-1].date.Sub(points[0].date)
	if span.Hours()/24/30 < seasonalityMinMonths {
		return nil
	}

	var sums [12]float64
	var counts [12]int
	for _, p := range points {
		m := int(p.date.Month()) - 1
		sums[m] += p.value
		counts[m]++
	}

	var avgs []float64
	var monthIdx []int
	for m := 0; m < 12; m++ {
		if counts[m] == 0 {
			continue
		}
		avgs = append(avgs, sums[m]/float64(counts[m]))
		monthIdx = append(monthIdx, m)
	}
	if len(avgs) < seasonalityMinMonths {
		return nil
	}

	overall := meanOf(avgs)
	if overall == 0 {
		return nil
	}
	peak, low := 0, 0
	for i := range avgs {
		if avgs[i] > avgs[peak] {
			peak = i
		}
		if avgs[i] < avgs[low] {
			low = i
		}
	}

	peakDev := (avgs[peak] - overall) / overall * 100
	lowDev := (avgs[low] - overall) / overall * 100
	if math.Abs(peakDev) < seasonalityThresholdPct {
		return nil
	}

	peakName := MonthNames[monthIdx[peak]]
	lowName := MonthNames[monthIdx[low]]
	desc := fmt.Sprintf("Pic en %s (%+.1f%%)", peakName, peakDev)
	if math.Abs(lowDev) > seasonalityThresholdPct {
		desc += fmt.Sprintf(", creux en %s (%+.1f%%)", lowName, lowDev)
	}

	return &domain.Seasonality{
		PeakMonth:          monthIdx[peak] + 1,
		PeakMonthName:      peakName,
		PeakDeviationPct:   round1(peakDev),
		LowMonth:           monthIdx[low] + 1,
		LowMonthName:       lowName,
		LowDeviationPct:    round1(lowDev),
		PatternDescription: desc,
	}
}
