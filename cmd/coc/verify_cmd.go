package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"

	"github.com/Adjoshi06/chainofCommand/pkg/artifacts"
	"github.com/Adjoshi06/chainofCommand/pkg/config"
	"github.com/Adjoshi06/chainofCommand/pkg/keyring"
	"github.com/Adjoshi06/chainofCommand/pkg/ledger"
	"github.com/Adjoshi06/chainofCommand/pkg/model"
	"github.com/Adjoshi06/chainofCommand/pkg/obs"
	"github.com/Adjoshi06/chainofCommand/pkg/tracestore"
	"github.com/Adjoshi06/chainofCommand/pkg/verifier"
)

// runVerifyCmd implements `coc verify`, modeled on the teacher's
// cmd/helm/verify_cmd.go flag parsing and exit-code discipline, generalized
// from bundle verification to the ten-check trace pipeline (spec.md §4.8).
func runVerifyCmd(args []string, stdout, stderr io.Writer) int {
	cmd := flag.NewFlagSet("verify", flag.ContinueOnError)
	cmd.SetOutput(stderr)

	var (
		traceID          string
		policy           string
		allowIncomplete  bool
		noWriteReports   bool
		jsonOutput       bool
	)
	cmd.StringVar(&traceID, "trace-id", "", "trace to verify (required)")
	cmd.StringVar(&policy, "policy", "", "override policy_profile (strict|default|lenient); default uses the trace's own profile")
	cmd.BoolVar(&allowIncomplete, "allow-incomplete", false, "downgrade a missing verification_run_completed to a warning")
	cmd.BoolVar(&noWriteReports, "no-write-reports", false, "skip writing the report files to disk")
	cmd.BoolVar(&jsonOutput, "json", false, "print the structured report as JSON instead of text")

	if err := cmd.Parse(args); err != nil {
		return 2
	}
	if traceID == "" {
		fmt.Fprintln(stderr, "coc verify: --trace-id is required")
		return 2
	}

	cfg := config.Load()

	logger := obs.NewLogger(cfg.LogLevel)
	provider, err := obs.New(context.Background(), obs.Config{
		ServiceName:  "coc-verify",
		OTLPEndpoint: cfg.OTelEndpoint,
		Enabled:      cfg.OTelEndpoint != "",
		Insecure:     true,
	}, logger)
	if err != nil {
		fmt.Fprintf(stderr, "coc verify: %v\n", err)
		return 4
	}
	defer provider.Shutdown(context.Background()) //nolint:errcheck // best-effort exporter drain on exit

	traces, err := tracestore.New(cfg.CocHome + "/traces")
	if err != nil {
		fmt.Fprintf(stderr, "coc verify: %v\n", err)
		return 4
	}
	arts, err := artifacts.New(cfg.CocHome + "/artifacts")
	if err != nil {
		fmt.Fprintf(stderr, "coc verify: %v\n", err)
		return 4
	}
	keys, err := keyring.New(cfg.CocHome + "/keys")
	if err != nil {
		fmt.Fprintf(stderr, "coc verify: %v\n", err)
		return 4
	}
	led := ledger.New(traces, ledger.WithObserver(provider))
	pipeline := verifier.New(traces, led, arts, keys, verifier.WithObserver(provider))

	resolved := traces.ResolveTraceID(traceID)
	opts := verifier.Options{
		CocHome:                     cfg.CocHome,
		TraceID:                     resolved,
		PolicyProfile:               model.PolicyProfile(policy),
		WriteReports:                !noWriteReports,
		AllowIncompleteFinalization: allowIncomplete,
	}

	report, err := pipeline.Run(opts)
	if err != nil {
		if errors.Is(err, tracestore.ErrNotFound) {
			fmt.Fprintf(stderr, "coc verify: trace %q not found\n", resolved)
			return 3
		}
		fmt.Fprintf(stderr, "coc verify: %v\n", err)
		return 4
	}

	if jsonOutput {
		data, _ := json.MarshalIndent(report, "", "  ") //nolint:errcheck // report always marshals
		fmt.Fprintln(stdout, string(data))
	} else {
		fmt.Fprintf(stdout, "trace=%s status=%s failures=%d warnings=%d\n", report.TraceID, report.VerificationStatus, len(report.Failures), len(report.Warnings))
		for _, f := range report.Failures {
			fmt.Fprintf(stdout, "  FAIL [%s] %s: %s\n", f.Severity, f.FailureCode, f.Message)
		}
		for _, w := range report.Warnings {
			fmt.Fprintf(stdout, "  WARN [%s] %s: %s\n", w.Severity, w.FailureCode, w.Message)
		}
	}

	if report.VerificationStatus == model.VerificationFail {
		return 1
	}
	return 0
}
