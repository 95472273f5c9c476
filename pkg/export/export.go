package export

// Table is the tabular content handed to an exporter.
type Table struct {
	Title   string
	Headers []string
	Rows    [][]string
}
