package temporal

// Table is a tabular sheet body: one header row and string cells.
// An empty cell is a null.
type Table struct {
	Columns []string
	Rows    [][]string

	// NativeDates lists columns whose cells carry a date type in the source file.
	NativeDates map[string]bool
}

// NewTable builds a table, padding short rows so every row has a cell per column.
func NewTable(columns []string, rows [][]string) *Table {
	padded := make([][]string, len(rows))
	for i, r := range rows {
		row := make([]string, len(columns))
		copy(row, r)
		padded[i] = row
	}
	return &Table{Columns: columns, Rows: padded}
}

// ColumnIndex returns the position of name, or -1.
func (t *Table) ColumnIndex(name string) int {
	for i, c := range t.Columns {
		if c == name {
			return i
		}
	}
	return -1
}

// Column returns every cell of the named column, or nil if it does not exist.
func (t *Table) Column(name string) []string {
	idx := t.ColumnIndex(name)
	if idx < 0 {
		return nil
	}
	out := make([]string, len(t.Rows))
	for i, row := range t.Rows {
		out[i] = row[idx]
	}
	return out
}
