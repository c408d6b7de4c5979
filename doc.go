// Package lunadb is the top-level facade for the engine: a single
// process, multi-database relational store built around one shared buffer
// pool (see internal/bufferpool).
package lunadb
