package main

import (
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/dustin/go-humanize"

	"sunsetdb/pkg/storage"
)

// export copies the live key set of a log into a SQLite database. The log is
// opened read-only, so it is safe to run next to a live server.
func main() {
	dbPath := flag.String("db", "sunset.db", "Log file to read")
	out := flag.String("out", "sunset_export.sqlite", "SQLite file to write")
	batch := flag.Int("batch", 500, "Rows per transaction")
	flag.Parse()

	opts := storage.DefaultOptions()
	opts.ReadOnly = true
	store, err := storage.Open(*dbPath, opts)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to open %s: %v\n", *dbPath, err)
		os.Exit(1)
	}
	defer store.Close()

	backend, err := storage.NewSQLiteBackend(*out)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to open %s: %v\n", *out, err)
		os.Exit(1)
	}
	defer backend.Close()

	start := time.Now()
	n, err := storage.Export(store, backend, *batch)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Export failed after %d records: %v\n", n, err)
		os.Exit(1)
	}
	rows, err := backend.Count()
	if err != nil || rows != n {
		fmt.Fprintf(os.Stderr, "Export check failed: %d rows in %s, expected %d (%v)\n", rows, *out, n, err)
		os.Exit(1)
	}
	fmt.Printf("Exported %s live keys from %s (%s, %d log records) to %s in %v\n",
		humanize.Comma(int64(n)), *dbPath, humanize.Bytes(uint64(store.Size())), store.Count(), *out, time.Since(start))
}
