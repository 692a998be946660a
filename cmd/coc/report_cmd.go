package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/Adjoshi06/chainofCommand/pkg/config"
	"github.com/Adjoshi06/chainofCommand/pkg/model"
	"github.com/Adjoshi06/chainofCommand/pkg/tracestore"
)

// runReportCmd prints the latest or a specific report for a trace without
// re-running verification, reading verification.latest.json or
// reports/<report_id>.json directly.
func runReportCmd(args []string, stdout, stderr io.Writer) int {
	cmd := flag.NewFlagSet("report", flag.ContinueOnError)
	cmd.SetOutput(stderr)

	var traceID, reportID string
	cmd.StringVar(&traceID, "trace-id", "", "trace to read a report for (required)")
	cmd.StringVar(&reportID, "report-id", "", "specific report_id; default is the latest")

	if err := cmd.Parse(args); err != nil {
		return 2
	}
	if traceID == "" {
		fmt.Fprintln(stderr, "coc report: --trace-id is required")
		return 2
	}

	cfg := config.Load()
	traces, err := tracestore.New(cfg.CocHome + "/traces")
	if err != nil {
		fmt.Fprintf(stderr, "coc report: %v\n", err)
		return 4
	}

	var path string
	if reportID == "" {
		path = traces.LatestReportPath(traces.ResolveTraceID(traceID))
	} else {
		path = traces.ReportsDir(traces.ResolveTraceID(traceID)) + "/" + reportID + ".json"
	}

	data, err := os.ReadFile(path) //nolint:gosec // operator-supplied trace/report id under coc_home
	if err != nil {
		fmt.Fprintf(stderr, "coc report: %v\n", err)
		return 3
	}

	var report model.VerificationReport
	if err := json.Unmarshal(data, &report); err != nil {
		fmt.Fprintf(stderr, "coc report: parse report: %v\n", err)
		return 4
	}

	out, _ := json.MarshalIndent(report, "", "  ") //nolint:errcheck // report always marshals
	fmt.Fprintln(stdout, string(out))
	return 0
}
