package main

import (
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/Adjoshi06/chainofCommand/pkg/config"
	"github.com/Adjoshi06/chainofCommand/pkg/index"
	"github.com/Adjoshi06/chainofCommand/pkg/ledger"
	"github.com/Adjoshi06/chainofCommand/pkg/model"
	"github.com/Adjoshi06/chainofCommand/pkg/tracestore"
)

// runTraceEventsCmd implements `coc trace-events`, the one CLI consumer of
// the optional Index Accelerator (spec.md §6's out-of-core
// GET /api/traces/{id}/events?type=&role= would call the same query
// function). It rebuilds the index from events.jsonl before every query —
// the index is never trusted as a correctness source, only as a cache, per
// spec.md §4.10 — so a stale or missing index/ directory never changes the
// result, only its cost.
func runTraceEventsCmd(args []string, stdout, stderr io.Writer) int {
	cmd := flag.NewFlagSet("trace-events", flag.ContinueOnError)
	cmd.SetOutput(stderr)

	var traceID, eventType, role string
	cmd.StringVar(&traceID, "trace-id", "", "trace to query (required)")
	cmd.StringVar(&eventType, "type", "", "filter by event_type (optional)")
	cmd.StringVar(&role, "role", "", "filter by actor role (optional)")

	if err := cmd.Parse(args); err != nil {
		return 2
	}
	if traceID == "" {
		fmt.Fprintln(stderr, "coc trace-events: --trace-id is required")
		return 2
	}

	cfg := config.Load()
	traces, err := tracestore.New(cfg.CocHome + "/traces")
	if err != nil {
		fmt.Fprintf(stderr, "coc trace-events: %v\n", err)
		return 4
	}
	led := ledger.New(traces)
	resolved := traces.ResolveTraceID(traceID)

	if _, err := traces.LoadTrace(resolved); err != nil {
		fmt.Fprintf(stderr, "coc trace-events: %v\n", err)
		return 3
	}

	if err := os.MkdirAll(cfg.CocHome+"/index", 0o755); err != nil { //nolint:gosec // index dir, not secret
		fmt.Fprintf(stderr, "coc trace-events: %v\n", err)
		return 4
	}
	idx, err := index.Open(cfg.CocHome + "/index/events.db")
	if err != nil {
		fmt.Fprintf(stderr, "coc trace-events: %v\n", err)
		return 4
	}
	defer idx.Close() //nolint:errcheck // best-effort close on exit

	if err := idx.Rebuild(resolved, led); err != nil {
		fmt.Fprintf(stderr, "coc trace-events: rebuild index: %v\n", err)
		return 4
	}

	ids, err := idx.QueryEvents(resolved, model.EventType(eventType), model.Role(role))
	if err != nil {
		fmt.Fprintf(stderr, "coc trace-events: query: %v\n", err)
		return 4
	}

	for _, id := range ids {
		fmt.Fprintln(stdout, id)
	}
	return 0
}
