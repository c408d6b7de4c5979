package planner

import (
	"fmt"
	"strings"

	"github.com/tuannm99/lunadb/internal/record"
	"github.com/tuannm99/lunadb/internal/sql/parser"
)

// Catalog is what the planner needs to know about existing tables: their
// schemas, and which columns carry a B+Tree index. The executor adapts
// the real database to this; tests supply a map.
type Catalog interface {
	// TableSchema returns the schema of table, with ok=false when the
	// table does not exist.
	TableSchema(table string) (record.Schema, bool, error)

	// BTreeIndexOn returns the segment file base of a B+Tree index over
	// (table, column), if one is registered.
	BTreeIndexOn(table, column string) (fileBase string, ok bool, err error)
}

// BuildPlan lowers a parsed statement. DDL lowers without catalog access;
// DML statements bind their literals against the table schema, so cat
// must not be nil for those.
func BuildPlan(stmt parser.Statement, cat Catalog) (Plan, error) {
	switch s := stmt.(type) {
	case *parser.CreateDatabaseStmt:
		return &CreateDatabasePlan{Name: s.Name}, nil
	case *parser.DropDatabaseStmt:
		return &DropDatabasePlan{Name: s.Name}, nil
	case *parser.UseDatabaseStmt:
		return &UseDatabasePlan{Name: s.Name}, nil

	case *parser.CreateTableStmt:
		return buildCreateTablePlan(s)
	case *parser.DropTableStmt:
		return &DropTablePlan{TableName: s.TableName}, nil

	case *parser.CreateIndexStmt:
		return &CreateIndexPlan{TableName: s.TableName, IndexName: s.IndexName, Column: s.Column}, nil
	case *parser.DropIndexStmt:
		return &DropIndexPlan{TableName: s.TableName, IndexName: s.IndexName}, nil

	case *parser.InsertStmt:
		return buildInsertPlan(s, cat)
	case *parser.SelectStmt:
		return buildSelectPlan(s, cat)
	case *parser.UpdateStmt:
		return buildUpdatePlan(s, cat)
	case *parser.DeleteStmt:
		return buildDeletePlan(s, cat)

	default:
		return nil, fmt.Errorf("planner: unsupported statement type %T", stmt)
	}
}

func buildCreateTablePlan(s *parser.CreateTableStmt) (Plan, error) {
	var cols []record.Column
	for _, c := range s.Columns {
		colType, err := mapSQLType(c.Type)
		if err != nil {
			return nil, err
		}
		cols = append(cols, record.Column{
			Name:     c.Name,
			Type:     colType,
			Nullable: true,
		})
	}
	return &CreateTablePlan{
		TableName: s.TableName,
		Schema:    record.Schema{Cols: cols},
	}, nil
}

func schemaOf(cat Catalog, table string) (record.Schema, error) {
	if cat == nil {
		return record.Schema{}, fmt.Errorf("planner: no catalog available")
	}
	schema, ok, err := cat.TableSchema(table)
	if err != nil {
		return record.Schema{}, err
	}
	if !ok {
		return record.Schema{}, fmt.Errorf("planner: unknown table %q", table)
	}
	return schema, nil
}

func buildInsertPlan(s *parser.InsertStmt, cat Catalog) (Plan, error) {
	schema, err := schemaOf(cat, s.TableName)
	if err != nil {
		return nil, err
	}
	if len(s.Values) != schema.NumCols() {
		return nil, fmt.Errorf("planner: INSERT has %d values, table %q has %d columns",
			len(s.Values), s.TableName, schema.NumCols())
	}

	values := make([]any, len(s.Values))
	for i, expr := range s.Values {
		lit, err := literalValue(expr)
		if err != nil {
			return nil, err
		}
		bound, err := coerceLiteralToColumn(schema.Cols[i], lit)
		if err != nil {
			return nil, err
		}
		values[i] = bound
	}

	return &InsertPlan{TableName: s.TableName, Values: values}, nil
}

func buildSelectPlan(s *parser.SelectStmt, cat Catalog) (Plan, error) {
	schema, err := schemaOf(cat, s.TableName)
	if err != nil {
		return nil, err
	}

	where, err := bindWhereEq(schema, s.Where)
	if err != nil {
		return nil, err
	}

	// equality on an indexed int64 column becomes an index probe
	if where != nil {
		if key, ok := where.Value.(int64); ok {
			base, found, err := cat.BTreeIndexOn(s.TableName, where.Column)
			if err != nil {
				return nil, err
			}
			if found {
				return &IndexLookupPlan{
					TableName:     s.TableName,
					IndexFileBase: base,
					Column:        where.Column,
					Key:           key,
					Where:         where,
				}, nil
			}
		}
	}

	return &SeqScanPlan{TableName: s.TableName, Where: where}, nil
}

func buildUpdatePlan(s *parser.UpdateStmt, cat Catalog) (Plan, error) {
	schema, err := schemaOf(cat, s.TableName)
	if err != nil {
		return nil, err
	}

	assigns := make([]Assignment, 0, len(s.Assignments))
	for _, a := range s.Assignments {
		idx := schema.ColIndex(a.Column)
		if idx < 0 {
			return nil, fmt.Errorf("planner: unknown column %q in UPDATE", a.Column)
		}
		lit, err := literalValue(a.Value)
		if err != nil {
			return nil, err
		}
		bound, err := coerceLiteralToColumn(schema.Cols[idx], lit)
		if err != nil {
			return nil, err
		}
		assigns = append(assigns, Assignment{Column: a.Column, Value: bound})
	}

	where, err := bindWhereEq(schema, s.Where)
	if err != nil {
		return nil, err
	}
	return &UpdatePlan{TableName: s.TableName, Assigns: assigns, Where: where}, nil
}

func buildDeletePlan(s *parser.DeleteStmt, cat Catalog) (Plan, error) {
	schema, err := schemaOf(cat, s.TableName)
	if err != nil {
		return nil, err
	}
	where, err := bindWhereEq(schema, s.Where)
	if err != nil {
		return nil, err
	}
	return &DeletePlan{TableName: s.TableName, Where: where}, nil
}

// bindWhereEq resolves the predicate column and coerces the literal to
// its type. A nil input predicate stays nil.
func bindWhereEq(schema record.Schema, w *parser.WhereEq) (*WhereEq, error) {
	if w == nil {
		return nil, nil
	}
	idx := schema.ColIndex(w.Column)
	if idx < 0 {
		return nil, fmt.Errorf("planner: unknown column %q in WHERE", w.Column)
	}
	lit, err := literalValue(w.Value)
	if err != nil {
		return nil, err
	}
	bound, err := coerceLiteralToColumn(schema.Cols[idx], lit)
	if err != nil {
		return nil, err
	}
	return &WhereEq{Column: w.Column, Value: bound}, nil
}

func literalValue(e parser.Expr) (any, error) {
	lit, ok := e.(*parser.LiteralExpr)
	if !ok {
		return nil, fmt.Errorf("planner: only literal expressions are supported, got %T", e)
	}
	return lit.Value, nil
}

// coerceLiteralToColumn fits a parsed literal to a column type. Parser
// literals are int64/float64/bool/string/nil; narrowing to int32 checks
// range, and int64 is accepted for float columns (SQL "1" into FLOAT).
func coerceLiteralToColumn(col record.Column, v any) (any, error) {
	if v == nil {
		if !col.Nullable {
			return nil, fmt.Errorf("planner: column %q is NOT NULL", col.Name)
		}
		return nil, nil
	}

	switch col.Type {
	case record.ColInt32:
		if x, ok := v.(int64); ok {
			if x < -1<<31 || x > 1<<31-1 {
				return nil, fmt.Errorf("planner: value %d out of range for INT column %q", x, col.Name)
			}
			return int32(x), nil
		}
	case record.ColInt64:
		if x, ok := v.(int64); ok {
			return x, nil
		}
	case record.ColBool:
		if x, ok := v.(bool); ok {
			return x, nil
		}
	case record.ColFloat64:
		switch x := v.(type) {
		case float64:
			return x, nil
		case int64:
			return float64(x), nil
		}
	case record.ColText:
		if x, ok := v.(string); ok {
			return x, nil
		}
	case record.ColBytes:
		if x, ok := v.(string); ok {
			return []byte(x), nil
		}
	default:
		return nil, fmt.Errorf("planner: unsupported column type %v", col.Type)
	}
	return nil, fmt.Errorf("planner: literal %v (%T) does not fit column %q", v, v, col.Name)
}

func mapSQLType(t string) (record.ColumnType, error) {
	switch strings.ToUpper(t) {
	case "INT", "INTEGER", "BIGINT":
		// SQL integers are 64-bit throughout; ColInt32 stays a
		// record-level option for Go callers
		return record.ColInt64, nil
	case "TEXT", "VARCHAR", "STRING":
		return record.ColText, nil
	case "BOOL", "BOOLEAN":
		return record.ColBool, nil
	case "FLOAT", "DOUBLE", "REAL":
		return record.ColFloat64, nil
	case "BYTES", "BLOB":
		return record.ColBytes, nil
	default:
		return 0, fmt.Errorf("planner: unsupported column type: %s", t)
	}
}
