package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/fatih/color"

	"github.com/cairndb/cairn/cairn"
	"github.com/cairndb/cairn/cairn/annotations"
	"github.com/cairndb/cairn/cairn/exec"
	"github.com/cairndb/cairn/cairn/query"
	"github.com/cairndb/cairn/cairn/storage"
)

func main() {
	var dbPath string
	var verbose bool
	var explain bool
	var parallel bool
	var help bool

	flag.StringVar(&dbPath, "db", "", "database path (empty for in-memory)")
	flag.BoolVar(&verbose, "verbose", false, "verbose mode (show execution annotations)")
	flag.BoolVar(&explain, "explain", false, "show EXPLAIN output instead of rows")
	flag.BoolVar(&parallel, "parallel", false, "run statements in parallel mode")
	flag.BoolVar(&help, "h", false, "show help")
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: %s [options]\n\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "Demo driver for the cairn iteration engine: seeds a record\n")
		fmt.Fprintf(os.Stderr, "store and runs a set of statements against it.\n\n")
		fmt.Fprintf(os.Stderr, "Options:\n")
		flag.PrintDefaults()
	}
	flag.Parse()

	if help {
		flag.Usage()
		os.Exit(0)
	}

	store, err := storage.Open(dbPath)
	if err != nil {
		log.Fatalf("Failed to open store: %v", err)
	}
	defer store.Close()

	if err := seed(store); err != nil {
		log.Fatalf("Failed to seed store: %v", err)
	}

	var events *annotations.Collector
	if verbose {
		formatter := annotations.NewOutputFormatter(os.Stderr)
		events = annotations.NewCollector(formatter.Handle)
	}

	mode := query.ExplainOff
	if explain {
		mode = query.ExplainNormal
	}

	demos := []struct {
		title string
		stm   query.Statement
	}{
		{"All people", query.Statement{Kind: query.Select, Explain: mode, Parallel: parallel}},
		{"People by age, oldest first, skipping one", query.Statement{
			Kind:     query.Select,
			Order:    &query.Ordering{Terms: []query.OrderTerm{{Path: "age", Desc: true}}},
			Start:    query.Literal{Value: int64(1)},
			Limit:    query.Literal{Value: int64(2)},
			Explain:  mode,
			Parallel: parallel,
		}},
		{"Head count", query.Statement{
			Kind:    query.Select,
			Fields:  []query.Field{{Alias: "count", Aggregate: "count"}},
			Group:   &query.Grouping{All: true},
			Explain: mode,
		}},
		{"Average age by city", query.Statement{
			Kind: query.Select,
			Fields: []query.Field{
				{Alias: "city", Path: "city"},
				{Alias: "avg_age", Path: "age", Aggregate: "mean"},
			},
			Group:   &query.Grouping{Paths: []string{"city"}},
			Explain: mode,
		}},
	}

	bold := color.New(color.Bold)
	for _, d := range demos {
		bold.Printf("== %s\n", d.title)
		rows, err := run(store, events, &d.stm)
		if err != nil {
			log.Fatalf("Statement failed: %v", err)
		}
		fmt.Println(formatRows(rows))
	}

	bold.Println("== Who alice knows")
	rows, err := runLookup(store, events, cairn.NewRecordID("person", "alice"))
	if err != nil {
		log.Fatalf("Lookup failed: %v", err)
	}
	fmt.Println(formatRows(rows))
}

// seed writes a small person table plus a few "knows" edges.
func seed(store *storage.Store) error {
	people := []struct {
		key  string
		name string
		age  int64
		city string
	}{
		{"alice", "Alice", 38, "Berlin"},
		{"bob", "Bob", 29, "Berlin"},
		{"carol", "Carol", 45, "Lisbon"},
		{"dave", "Dave", 33, "Lisbon"},
		{"erin", "Erin", 51, "Oslo"},
	}
	knows := [][2]string{
		{"alice", "bob"},
		{"alice", "carol"},
		{"bob", "dave"},
	}

	return store.Update(func(txn *storage.Txn) error {
		for _, p := range people {
			rid := cairn.NewRecordID("person", p.key)
			val := cairn.Object{"name": p.name, "age": p.age, "city": p.city}
			if err := txn.SetRecord(rid, val); err != nil {
				return err
			}
		}
		for n, k := range knows {
			edge := cairn.NewRecordID("knows", fmt.Sprintf("k%d", n))
			from := cairn.NewRecordID("person", k[0])
			to := cairn.NewRecordID("person", k[1])
			val := cairn.Object{"in": from, "out": to}
			if err := txn.SetRecord(edge, val); err != nil {
				return err
			}
			if err := txn.SetEdge(from, storage.DirOut, edge); err != nil {
				return err
			}
			if err := txn.SetEdge(to, storage.DirIn, edge); err != nil {
				return err
			}
		}
		return nil
	})
}

func run(store *storage.Store, events *annotations.Collector, stm *query.Statement) ([]cairn.Value, error) {
	var rows []cairn.Value
	err := store.View(func(txn *storage.Txn) error {
		ctx := exec.NewContext(context.Background(), txn, exec.Options{})
		ctx.Store = store
		ctx.Events = events

		ite := exec.NewIterator()
		if err := ite.PrepareTable(ctx, stm, "person"); err != nil {
			return err
		}
		var err error
		rows, err = ite.Output(ctx, stm)
		return err
	})
	return rows, err
}

func runLookup(store *storage.Store, events *annotations.Collector, from cairn.RecordID) ([]cairn.Value, error) {
	stm := &query.Statement{Kind: query.Select, Fetch: []string{"out"}}
	var rows []cairn.Value
	err := store.View(func(txn *storage.Txn) error {
		ctx := exec.NewContext(context.Background(), txn, exec.Options{})
		ctx.Store = store
		ctx.Events = events

		ite := exec.NewIterator()
		if err := ite.PrepareLookup(ctx, stm, exec.Lookup{Dir: storage.DirOut, From: from}); err != nil {
			return err
		}
		var err error
		rows, err = ite.Output(ctx, stm)
		return err
	})
	return rows, err
}
