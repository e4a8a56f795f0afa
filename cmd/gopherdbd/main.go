// Command gopherdbd is the storage-engine shell: it wires together the
// config loader, the catalog, the lock manager's deadlock detector, and
// an interactive readline prompt for issuing administrative commands
// directly against the storage layer (create table, insert, get, scan).
// Grounded in the teacher's cmd/server entrypoint shape, narrowed to this
// system's storage-only scope (no SQL parser/planner).
package main

import (
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/chzyer/readline"

	"github.com/tuannm99/gopherdb/internal/catalog"
	"github.com/tuannm99/gopherdb/internal/common"
	"github.com/tuannm99/gopherdb/internal/config"
	"github.com/tuannm99/gopherdb/internal/executor"
	"github.com/tuannm99/gopherdb/internal/lockmanager"
	"github.com/tuannm99/gopherdb/internal/record"
)

func main() {
	configPath := flag.String("config", "", "path to gopherdb.yaml")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, "config error:", err)
		os.Exit(1)
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: parseLevel(cfg.LogLevel),
	}))
	slog.SetDefault(logger)

	cat, err := catalog.New(cfg.DataDir, cfg.BufferPoolSize)
	if err != nil {
		logger.Error("failed to open catalog", "err", err)
		os.Exit(1)
	}
	defer cat.Close()

	lm := lockmanager.NewManager()
	lm.StartDeadlockDetector(time.Duration(cfg.DeadlockCheckMS) * time.Millisecond)
	defer lm.StopDeadlockDetector()

	logger.Info("gopherdbd starting", "data_dir", cfg.DataDir, "buffer_pool_size", cfg.BufferPoolSize)

	rl, err := readline.New("gopherdb> ")
	if err != nil {
		logger.Error("failed to start shell", "err", err)
		os.Exit(1)
	}
	defer rl.Close()

	shell := &shell{cat: cat, logger: logger, out: rl.Stdout()}
	for {
		line, err := rl.Readline()
		if err == readline.ErrInterrupt {
			continue
		}
		if err == io.EOF {
			return
		}
		if err != nil {
			logger.Error("readline error", "err", err)
			return
		}
		shell.dispatch(strings.TrimSpace(line))
	}
}

func parseLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

type shell struct {
	cat    *catalog.Catalog
	logger *slog.Logger
	out    io.Writer
}

// dispatch handles one line of shell input. This is an administrative
// surface for exercising the storage engine directly, not a SQL
// interpreter: commands name columns and values positionally.
func (s *shell) dispatch(line string) {
	if line == "" {
		return
	}
	fields := strings.Fields(line)
	cmd := strings.ToLower(fields[0])

	switch cmd {
	case "exit", "quit":
		os.Exit(0)
	case "createtable":
		s.createTable(fields[1:])
	case "insert":
		s.insert(fields[1:])
	case "get":
		s.get(fields[1:])
	case "scan":
		s.scan(fields[1:])
	case "help":
		fmt.Fprintln(s.out, "commands: createtable <name> <col:type>...  insert <table> <values...>  get <table> <pageid> <slot>  scan <table>  exit")
	default:
		fmt.Fprintf(s.out, "unknown command %q (try 'help')\n", cmd)
	}
}

func (s *shell) createTable(args []string) {
	if len(args) < 2 {
		fmt.Fprintln(s.out, "usage: createtable <name> <col:type>...")
		return
	}
	name := args[0]
	var cols []record.Column
	for _, spec := range args[1:] {
		parts := strings.SplitN(spec, ":", 2)
		if len(parts) != 2 {
			fmt.Fprintf(s.out, "bad column spec %q (want name:type)\n", spec)
			return
		}
		typ, err := parseColType(parts[1])
		if err != nil {
			fmt.Fprintln(s.out, err)
			return
		}
		cols = append(cols, record.Column{Name: parts[0], Type: typ})
	}
	if _, err := s.cat.CreateTable(name, record.NewSchema(cols...)); err != nil {
		fmt.Fprintln(s.out, "error:", err)
		return
	}
	fmt.Fprintf(s.out, "table %q created\n", name)
}

func parseColType(s string) (record.ColumnType, error) {
	switch strings.ToLower(s) {
	case "int32":
		return record.ColInt32, nil
	case "int64":
		return record.ColInt64, nil
	case "bool":
		return record.ColBool, nil
	case "float64":
		return record.ColFloat64, nil
	case "text":
		return record.ColText, nil
	case "bytes":
		return record.ColBytes, nil
	default:
		return 0, fmt.Errorf("unknown column type %q", s)
	}
}

// parseValue converts one shell argument into a record.Value matching
// the target column's type.
func parseValue(typ record.ColumnType, s string) (record.Value, error) {
	switch typ {
	case record.ColInt32:
		v, err := strconv.ParseInt(s, 10, 32)
		if err != nil {
			return nil, fmt.Errorf("expected int32: %w", err)
		}
		return int32(v), nil
	case record.ColInt64:
		v, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("expected int64: %w", err)
		}
		return v, nil
	case record.ColBool:
		v, err := strconv.ParseBool(s)
		if err != nil {
			return nil, fmt.Errorf("expected bool: %w", err)
		}
		return v, nil
	case record.ColFloat64:
		v, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return nil, fmt.Errorf("expected float64: %w", err)
		}
		return v, nil
	case record.ColText:
		return s, nil
	case record.ColBytes:
		return []byte(s), nil
	default:
		return nil, fmt.Errorf("unknown column type %v", typ)
	}
}

func (s *shell) insert(args []string) {
	if len(args) < 2 {
		fmt.Fprintln(s.out, "usage: insert <table> <values...>")
		return
	}
	tb, err := s.cat.GetTableByName(args[0])
	if err != nil {
		fmt.Fprintln(s.out, "error:", err)
		return
	}
	schema := tb.Schema()
	if len(args)-1 != schema.ColumnCount() {
		fmt.Fprintf(s.out, "table %q has %d columns, got %d values\n", args[0], schema.ColumnCount(), len(args)-1)
		return
	}
	row := make(record.Row, len(args)-1)
	for i, v := range args[1:] {
		val, err := parseValue(schema.Columns[i].Type, v)
		if err != nil {
			fmt.Fprintln(s.out, "error:", err)
			return
		}
		row[i] = val
	}
	rid, err := tb.Insert(row)
	if err != nil {
		fmt.Fprintln(s.out, "error:", err)
		return
	}
	fmt.Fprintf(s.out, "inserted at %s\n", rid)
}

func (s *shell) get(args []string) {
	if len(args) != 3 {
		fmt.Fprintln(s.out, "usage: get <table> <pageid> <slot>")
		return
	}
	tb, err := s.cat.GetTableByName(args[0])
	if err != nil {
		fmt.Fprintln(s.out, "error:", err)
		return
	}
	pageID, err := strconv.ParseInt(args[1], 10, 32)
	if err != nil {
		fmt.Fprintln(s.out, "bad page id:", err)
		return
	}
	slot, err := strconv.ParseUint(args[2], 10, 16)
	if err != nil {
		fmt.Fprintln(s.out, "bad slot:", err)
		return
	}
	row, ok, err := tb.Get(common.RID{PageID: common.PageID(pageID), Slot: uint16(slot)})
	if err != nil {
		fmt.Fprintln(s.out, "error:", err)
		return
	}
	if !ok {
		fmt.Fprintln(s.out, "not found")
		return
	}
	fmt.Fprintln(s.out, row)
}

func (s *shell) scan(args []string) {
	if len(args) != 1 {
		fmt.Fprintln(s.out, "usage: scan <table>")
		return
	}
	tb, err := s.cat.GetTableByName(args[0])
	if err != nil {
		fmt.Fprintln(s.out, "error:", err)
		return
	}
	rows, err := executor.NewSeqScan(tb, nil).Collect()
	if err != nil {
		fmt.Fprintln(s.out, "error:", err)
		return
	}
	for _, row := range rows {
		fmt.Fprintln(s.out, row)
	}
}
