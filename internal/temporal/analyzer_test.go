package temporal

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/supplychain-assistant/internal/core/domain"
)

func ordersTable() *Table {
	return NewTable(
		[]string{"Produit", "date_commande", "date_livraison", "Quantité", "created_at"},
		[][]string{
			{"Vis M4", "2025-01-01", "2025-01-15", "100", "2024-12-31"},
			{"Écrou M4", "2025-01-02", "2025-01-17", "250", "2024-12-31"},
			{"Rondelle", "2025-01-03", "2025-01-18", "75", "2024-12-31"},
		},
	)
}

func TestDetectTemporalColumns(t *testing.T) {
	a := NewAnalyzer(Config{})

	cols := a.DetectTemporalColumns(ordersTable(), nil)
	assert.Equal(t, []string{"date_commande", "date_livraison"}, cols)
}

func TestDetectTemporalColumns_BlacklistWins(t *testing.T) {
	a := NewAnalyzer(Config{})
	table := NewTable([]string{"created_at", "updated_at"}, [][]string{{"2025-01-01", "2025-01-02"}})

	assert.Empty(t, a.DetectTemporalColumns(table, nil))
}

func TestDetectTemporalColumns_Sparse(t *testing.T) {
	a := NewAnalyzer(Config{})
	rows := make([][]string, 20)
	for i := range rows {
		rows[i] = []string{fmt.Sprintf("item-%d", i), ""}
	}
	rows[0][1] = "2025-03-01"
	table := NewTable([]string{"ref", "delivery date"}, rows)

	assert.Empty(t, a.DetectTemporalColumns(table, nil))
}

func TestDetectTemporalColumns_NameWithoutDates(t *testing.T) {
	a := NewAnalyzer(Config{})
	table := NewTable([]string{"commande"}, [][]string{{"CMD-1"}, {"CMD-2"}})

	assert.Empty(t, a.DetectTemporalColumns(table, nil))
}

func TestDetectTemporalColumns_NativeDates(t *testing.T) {
	a := NewAnalyzer(Config{})
	table := NewTable([]string{"date_envoi"}, [][]string{{"45672"}})
	table.NativeDates = map[string]bool{"date_envoi": true}

	assert.Equal(t, []string{"date_envoi"}, a.DetectTemporalColumns(table, nil))
}

func TestIdentifyLeadTimePairs(t *testing.T) {
	a := NewAnalyzer(Config{})

	tests := []struct {
		name string
		cols []string
		want []domain.LeadTimePair
	}{
		{"none", []string{"date"}, nil},
		{"two in order", []string{"a_date", "b_date"}, []domain.LeadTimePair{{Start: "a_date", End: "b_date"}}},
		{
			"french pattern",
			[]string{"date_commande", "date_expedition", "date_livraison"},
			[]domain.LeadTimePair{{Start: "date_commande", End: "date_livraison"}},
		},
		{
			"english patterns",
			[]string{"order_date", "ship_date", "delivery_date"},
			[]domain.LeadTimePair{{Start: "order_date", End: "delivery_date"}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, a.IdentifyLeadTimePairs(tt.cols))
		})
	}
}

func TestCalculateLeadTimes(t *testing.T) {
	a := NewAnalyzer(Config{})

	stats := a.CalculateLeadTimes(ordersTable(), "date_commande", "date_livraison")
	require.NotNil(t, stats)

	assert.Equal(t, 14.67, stats.MeanDays)
	assert.Equal(t, 15.0, stats.MedianDays)
	assert.Equal(t, 15.0, stats.MaxDays)
	assert.Equal(t, 14.0, stats.MinDays)
	assert.Equal(t, 0.58, stats.StdDays)
	assert.Empty(t, stats.Outliers)
	assert.Equal(t, 3, stats.TotalRecords)
}

func TestCalculateLeadTimes_DropsNegativeAndMissing(t *testing.T) {
	a := NewAnalyzer(Config{})
	table := NewTable([]string{"start", "end"}, [][]string{
		{"2025-02-10", "2025-02-01"},
		{"2025-02-10", ""},
		{"bad", "2025-02-01"},
	})

	assert.Nil(t, a.CalculateLeadTimes(table, "start", "end"))
}

func TestCalculateLeadTimes_Outliers(t *testing.T) {
	a := NewAnalyzer(Config{})
	rows := make([][]string, 0, 11)
	for i := 0; i < 10; i++ {
		rows = append(rows, []string{"2025-01-01", "2025-01-06"})
	}
	rows = append(rows, []string{"2025-01-01", "2025-03-02"})
	table := NewTable([]string{"order_date", "delivery_date"}, rows)

	stats := a.CalculateLeadTimes(table, "order_date", "delivery_date")
	require.NotNil(t, stats)
	assert.Equal(t, []float64{60}, stats.Outliers)
	assert.Equal(t, 11, stats.TotalRecords)
}

func TestExtractTimeRange(t *testing.T) {
	a := NewAnalyzer(Config{})

	tr := a.ExtractTimeRange(ordersTable(), []string{"date_commande", "date_livraison"})
	require.NotNil(t, tr)
	assert.Equal(t, "2025-01-01", tr.Earliest)
	assert.Equal(t, "2025-01-18", tr.Latest)

	assert.Nil(t, a.ExtractTimeRange(ordersTable(), []string{"Produit"}))
}

func TestRowContexts(t *testing.T) {
	a := NewAnalyzer(Config{})
	table := NewTable([]string{"date_livraison", "qty"}, [][]string{
		{"15/01/2025", "1"},
		{"", "2"},
		{"bientôt", "3"},
	})

	ctx := a.RowContexts(table, []string{"date_livraison"})
	require.Len(t, ctx, 3)
	assert.Equal(t, map[string]string{"date_livraison": "2025-01-15"}, ctx[0])
	assert.Nil(t, ctx[1])
	assert.Equal(t, map[string]string{"date_livraison": "bientôt"}, ctx[2])
}

func TestAnalyze(t *testing.T) {
	a := NewAnalyzer(Config{})

	analysis, contexts := a.Analyze(ordersTable(), "Commandes", nil)

	assert.Equal(t, "Commandes", analysis.Sheet)
	assert.Equal(t, []string{"date_commande", "date_livraison"}, analysis.DateColumns)
	require.Len(t, analysis.LeadTimePairs, 1)
	stats, ok := analysis.LeadTimeStats["date_commande→date_livraison"]
	require.True(t, ok)
	assert.Equal(t, 14.67, stats.MeanDays)
	require.NotNil(t, analysis.TimeRange)
	require.Len(t, analysis.Trends, 1)
	assert.Equal(t, "Quantité", analysis.Trends[0].ValueColumn)
	require.Len(t, contexts, 3)
	assert.Equal(t, "2025-01-17", contexts[1]["date_livraison"])
}

func TestAnalyze_Override(t *testing.T) {
	a := NewAnalyzer(Config{})
	override := &domain.TemporalConfig{DateColumns: []string{"date_livraison", "missing"}}

	analysis, _ := a.Analyze(ordersTable(), "", override)

	assert.Equal(t, []string{"date_livraison"}, analysis.DateColumns)
	assert.Empty(t, analysis.LeadTimePairs)
}

func TestAnalyze_NoDates(t *testing.T) {
	a := NewAnalyzer(Config{})
	table := NewTable([]string{"ref", "stock"}, [][]string{{"A", "1"}})

	analysis, contexts := a.Analyze(table, "", nil)
	assert.Empty(t, analysis.DateColumns)
	assert.NotNil(t, analysis.DateColumns)
	assert.Nil(t, contexts)
}
