// Command coc-demo emits a single canned, internally consistent trace
// (spec.md §8's S1 Good Path) for local smoke-testing. It is peripheral
// per spec.md §1 — out of the verifiable core — and contains no verifier
// logic of its own.
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/Adjoshi06/chainofCommand/pkg/artifacts"
	"github.com/Adjoshi06/chainofCommand/pkg/config"
	"github.com/Adjoshi06/chainofCommand/pkg/demo"
	"github.com/Adjoshi06/chainofCommand/pkg/keyring"
	"github.com/Adjoshi06/chainofCommand/pkg/ledger"
	"github.com/Adjoshi06/chainofCommand/pkg/model"
	"github.com/Adjoshi06/chainofCommand/pkg/tracestore"
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr *os.File) int {
	cmd := flag.NewFlagSet("coc-demo", flag.ContinueOnError)
	cmd.SetOutput(stderr)

	var taskID string
	var policy string
	cmd.StringVar(&taskID, "task-id", "demo-task", "task_id to stamp on the emitted trace")
	cmd.StringVar(&policy, "policy", string(model.PolicyDefault), "policy_profile for the emitted trace (strict|default|lenient)")

	if err := cmd.Parse(args); err != nil {
		return 2
	}

	cfg := config.Load()

	keys, err := keyring.New(cfg.CocHome + "/keys")
	if err != nil {
		fmt.Fprintf(stderr, "coc-demo: %v\n", err)
		return 4
	}
	traces, err := tracestore.New(cfg.CocHome + "/traces")
	if err != nil {
		fmt.Fprintf(stderr, "coc-demo: %v\n", err)
		return 4
	}
	arts, err := artifacts.New(cfg.CocHome + "/artifacts")
	if err != nil {
		fmt.Fprintf(stderr, "coc-demo: %v\n", err)
		return 4
	}
	led := ledger.New(traces)

	result, err := demo.EmitGoodPath(demo.Stores{Keys: keys, Traces: traces, Artifacts: arts, Ledger: led}, taskID, model.PolicyProfile(policy))
	if err != nil {
		fmt.Fprintf(stderr, "coc-demo: emit failed: %v\n", err)
		return 3
	}

	fmt.Fprintf(stdout, "trace_id=%s\n", result.TraceID)
	fmt.Fprintf(stdout, "claim_id=%s\n", result.ClaimID)
	fmt.Fprintf(stdout, "artifact_hash=%s\n", result.ArtifactHash)
	return 0
}
