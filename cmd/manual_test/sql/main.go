// Drives the SQL surface end to end in one process, without the TCP
// server in between.
package main

import (
	"fmt"
	"log"
	"os"
	"path/filepath"

	"github.com/tuannm99/lunadb"
	"github.com/tuannm99/lunadb/internal/sql/executor"
)

func main() {
	dataDir := filepath.Join("data", "test", "manual_db_sql")
	_ = os.RemoveAll(dataDir)

	db := lunadb.NewDatabase(dataDir)
	defer func() { _ = db.Close() }()

	ex := executor.NewExecutor(db)

	stmts := []string{
		"CREATE TABLE users (id INT, name TEXT);",
		"INSERT INTO users VALUES (1, 'user-1');",
		"INSERT INTO users VALUES (2, 'user-2');",
		"CREATE INDEX users_by_id ON users (id);",
		"SELECT * FROM users WHERE id = 2;",
		"UPDATE users SET name = 'renamed' WHERE id = 1;",
		"SELECT * FROM users;",
	}

	for _, stmt := range stmts {
		res, err := ex.ExecSQL(stmt)
		if err != nil {
			log.Fatalf("%s: %v", stmt, err)
		}
		fmt.Printf("%s -> %d rows, %d affected\n", stmt, len(res.Rows), res.AffectedRows)
		for _, row := range res.Rows {
			fmt.Printf("  %v\n", row)
		}
	}
}
