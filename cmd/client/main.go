// The lunadb interactive client: a readline REPL speaking lunawire to a
// running server. Statements may span lines; execution happens once a ';'
// shows up outside quotes.
package main

import (
	"bufio"
	"errors"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/chzyer/readline"

	"github.com/tuannm99/lunadb/internal/sql/executor"
	"github.com/tuannm99/lunadb/sqlclient"
)

const prompt = "lunadb> "
const contPrompt = "   ...> "

func main() {
	var (
		addr       = flag.String("addr", "127.0.0.1:6543", "server address")
		timeout    = flag.Duration("timeout", 3*time.Second, "dial timeout")
		histPath   = flag.String("history", defaultHistoryPath(), "history file path")
		histMax    = flag.Int("history-max", 2000, "max history lines loaded into memory")
		oneShotSQL = flag.String("c", "", "execute one SQL statement and exit (must end with ';')")
	)
	flag.Parse()

	cli, err := sqlclient.Dial(*addr, *timeout)
	if err != nil {
		fmt.Fprintf(os.Stderr, "dial: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = cli.Close() }()
	cli.SetRWTimeout(30 * time.Second)

	if strings.TrimSpace(*oneShotSQL) != "" {
		res, err := cli.Exec(*oneShotSQL)
		if err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			os.Exit(1)
		}
		printResult(res)
		return
	}

	repl(cli, *histPath, *histMax, *addr)
}

func repl(cli *sqlclient.Client, histPath string, histMax int, addr string) {
	h := newHistory(histPath)
	_ = h.load(histMax)

	rl, err := readline.NewEx(&readline.Config{
		Prompt:          prompt,
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "readline: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = rl.Close() }()

	for _, line := range h.lines {
		_ = rl.SaveHistory(line)
	}

	fmt.Printf("connected to %s\n", addr)
	fmt.Println("type \\help for help")

	var buf strings.Builder
	for {
		line, err := rl.Readline()
		if err == readline.ErrInterrupt {
			if buf.Len() > 0 {
				buf.Reset()
				rl.SetPrompt(prompt)
				continue
			}
			fmt.Println("^C")
			continue
		}
		if err != nil {
			fmt.Println()
			return
		}

		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		if buf.Len() == 0 && isMetaCommand(line) {
			switch line {
			case "\\q", "quit", "exit":
				return
			case "\\help":
				printHelp()
			case "\\history":
				h.print(50)
			default:
				fmt.Printf("unknown command: %s\n", line)
			}
			continue
		}

		if buf.Len() > 0 {
			buf.WriteByte(' ')
		}
		buf.WriteString(line)

		if !statementComplete(buf.String()) {
			rl.SetPrompt(contPrompt)
			continue
		}

		stmt := strings.TrimSpace(buf.String())
		buf.Reset()
		rl.SetPrompt(prompt)

		_ = h.append(stmt)
		_ = rl.SaveHistory(compactOneLine(stmt))

		res, err := cli.Exec(stmt)
		if err != nil {
			fmt.Printf("error: %v\n", err)
			continue
		}
		printResult(res)
	}
}

func printHelp() {
	fmt.Println(`meta commands:
  \q | quit | exit       quit
  \history               print recent history
  \help                  show this help

sql:
  statements end with ';' and may span multiple lines`)
}

func isMetaCommand(line string) bool {
	return strings.HasPrefix(line, "\\") || line == "quit" || line == "exit"
}

// statementComplete reports whether buf holds a ';' outside single quotes.
func statementComplete(buf string) bool {
	inQuote := false
	for _, r := range buf {
		switch r {
		case '\'':
			inQuote = !inQuote
		case ';':
			if !inQuote {
				return true
			}
		}
	}
	return false
}

// history keeps executed statements in a flat file, one per line.
type history struct {
	path  string
	lines []string
}

func newHistory(path string) *history {
	return &history{path: path}
}

func (h *history) load(max int) error {
	if h.path == "" {
		return nil
	}
	f, err := os.Open(h.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return err
	}
	defer func() { _ = f.Close() }()

	sc := bufio.NewScanner(f)
	for sc.Scan() {
		s := strings.TrimSpace(sc.Text())
		if s == "" {
			continue
		}
		h.lines = append(h.lines, s)
		if max > 0 && len(h.lines) > max {
			h.lines = h.lines[len(h.lines)-max:]
		}
	}
	return sc.Err()
}

func (h *history) append(stmt string) error {
	stmt = compactOneLine(stmt)
	if stmt == "" || h.path == "" {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(h.path), 0o755); err != nil {
		return err
	}

	f, err := os.OpenFile(h.path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	defer func() { _ = f.Close() }()

	if _, err := fmt.Fprintln(f, stmt); err != nil {
		return err
	}
	h.lines = append(h.lines, stmt)
	return nil
}

func (h *history) print(last int) {
	start := len(h.lines) - last
	if start < 0 {
		start = 0
	}
	for i := start; i < len(h.lines); i++ {
		fmt.Printf("%5d  %s\n", i+1, h.lines[i])
	}
}

func compactOneLine(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func printResult(res *executor.Result) {
	if len(res.Columns) == 0 {
		fmt.Printf("OK (%d affected)\n", res.AffectedRows)
		return
	}

	widths := make([]int, len(res.Columns))
	for i, c := range res.Columns {
		widths[i] = len(c)
	}
	cells := make([][]string, len(res.Rows))
	for r, row := range res.Rows {
		cells[r] = make([]string, len(res.Columns))
		for i := range res.Columns {
			s := "NULL"
			if i < len(row) && row[i] != nil {
				s = fmt.Sprintf("%v", row[i])
			}
			cells[r][i] = s
			if len(s) > widths[i] {
				widths[i] = len(s)
			}
		}
	}

	printRow := func(vals []string) {
		for i, v := range vals {
			if i > 0 {
				fmt.Print(" | ")
			}
			fmt.Printf("%-*s", widths[i], v)
		}
		fmt.Println()
	}

	printRow(res.Columns)
	for i := range res.Columns {
		if i > 0 {
			fmt.Print("-+-")
		}
		fmt.Print(strings.Repeat("-", widths[i]))
	}
	fmt.Println()
	for _, row := range cells {
		printRow(row)
	}
	fmt.Printf("(%d rows)\n", len(res.Rows))
}

func defaultHistoryPath() string {
	home, err := os.UserHomeDir()
	if err != nil || home == "" {
		return ".lunadb_history"
	}
	return filepath.Join(home, ".lunadb_history")
}
