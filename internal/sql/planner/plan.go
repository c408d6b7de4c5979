// Package planner lowers parsed statements into executable plans, binding
// literals against table schemas and choosing between sequential scans and
// index lookups.
package planner

import (
	"github.com/tuannm99/lunadb/internal/record"
)

// Plan is the interface all executable plans implement.
type Plan interface {
	planNode()
}

// database plans

type CreateDatabasePlan struct{ Name string }

func (*CreateDatabasePlan) planNode() {}

type DropDatabasePlan struct{ Name string }

func (*DropDatabasePlan) planNode() {}

type UseDatabasePlan struct{ Name string }

func (*UseDatabasePlan) planNode() {}

// table plans

type CreateTablePlan struct {
	TableName string
	Schema    record.Schema
}

func (*CreateTablePlan) planNode() {}

type DropTablePlan struct {
	TableName string
}

func (*DropTablePlan) planNode() {}

// index plans

type CreateIndexPlan struct {
	TableName string
	IndexName string
	Column    string
}

func (*CreateIndexPlan) planNode() {}

type DropIndexPlan struct {
	TableName string
	IndexName string
}

func (*DropIndexPlan) planNode() {}

// DML plans

type InsertPlan struct {
	TableName string
	Values    []any // bound to the table schema
}

func (*InsertPlan) planNode() {}

// WhereEq is a bound equality predicate; Value has already been coerced
// to the column's type.
type WhereEq struct {
	Column string
	Value  any
}

type SeqScanPlan struct {
	TableName string
	Where     *WhereEq
}

func (*SeqScanPlan) planNode() {}

// IndexLookupPlan probes one B+Tree index for Key, then re-checks Where
// against each fetched heap row (index entries may be stale).
type IndexLookupPlan struct {
	TableName     string
	IndexFileBase string
	Column        string
	Key           int64
	Where         *WhereEq
}

func (*IndexLookupPlan) planNode() {}

type Assignment struct {
	Column string
	Value  any // bound
}

type UpdatePlan struct {
	TableName string
	Assigns   []Assignment
	Where     *WhereEq
}

func (*UpdatePlan) planNode() {}

type DeletePlan struct {
	TableName string
	Where     *WhereEq
}

func (*DeletePlan) planNode() {}
