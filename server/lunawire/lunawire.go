// Package lunawire is the TCP protocol between lunadb servers and
// clients: length-prefixed JSON frames, one request/response pair per SQL
// statement.
package lunawire

import "github.com/tuannm99/lunadb/internal/sql/executor"

// ExecuteRequest carries one SQL statement. IDs are chosen by the client
// and echoed back, so a future pipelined client can match responses.
type ExecuteRequest struct {
	ID  uint64 `json:"id"`
	SQL string `json:"sql"`
}

// ExecuteResponse answers the request with the same ID. Exactly one of
// Result and Error is set.
type ExecuteResponse struct {
	ID     uint64           `json:"id"`
	Result *executor.Result `json:"result,omitempty"`
	Error  string           `json:"error,omitempty"`
}
