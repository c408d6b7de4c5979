package executor

// Result is what every statement returns to the wire layer: column names
// and rows for queries, an affected-row count for DML.
type Result struct {
	Columns []string
	Rows    [][]any

	AffectedRows int64
}
