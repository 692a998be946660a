// Command coc is the chain-of-custody CLI: init-key, verify, report,
// repair, and trace-events subcommands over a COC_HOME trace store. Exit codes follow
// spec.md §6 exactly (0 pass, 1 verification fail, 2 input/schema error,
// 3 runtime protocol error, 4 internal error, 5 policy preflight block).
//
// Grounded on the teacher's cmd/helm/main.go dispatch-by-subcommand and
// cmd/helm/verify_cmd.go's flag parsing / exit-code discipline.
package main

import (
	"fmt"
	"io"
	"os"
)

func main() {
	os.Exit(Run(os.Args, os.Stdout, os.Stderr))
}

// Run is the CLI entrypoint, split out from main for testability.
func Run(args []string, stdout, stderr io.Writer) int {
	if len(args) < 2 {
		printUsage(stderr)
		return 2
	}

	switch args[1] {
	case "init-key":
		return runInitKeyCmd(args[2:], stdout, stderr)
	case "verify":
		return runVerifyCmd(args[2:], stdout, stderr)
	case "report":
		return runReportCmd(args[2:], stdout, stderr)
	case "repair":
		return runRepairCmd(args[2:], stdout, stderr)
	case "trace-events":
		return runTraceEventsCmd(args[2:], stdout, stderr)
	case "help", "-h", "--help":
		printUsage(stdout)
		return 0
	default:
		fmt.Fprintf(stderr, "coc: unknown subcommand %q\n", args[1])
		printUsage(stderr)
		return 2
	}
}

func printUsage(w io.Writer) {
	fmt.Fprint(w, `coc — chain-of-custody trace ledger CLI

Usage:
  coc init-key --agent-id=<id> --display-name=<name> --role=<role>[,<role>...]
  coc verify --trace-id=<id> [--policy=strict|default|lenient] [--allow-incomplete] [--no-write-reports]
  coc report --trace-id=<id> [--report-id=<id>]
  coc repair --trace-id=<id>
  coc trace-events --trace-id=<id> [--type=<event_type>] [--role=<role>]

Environment:
  COC_HOME             trace/key/artifact store root (default ./.coc)
  COC_LOG_LEVEL         debug|info|warn|error (default info)
  COC_POLICY_PROFILE    strict|default|lenient (default default)
  COC_API_HOST, COC_API_PORT, COC_OTEL_ENDPOINT

Exit codes:
  0 pass   1 verification fail   2 input/schema error
  3 runtime protocol error   4 internal error   5 policy preflight block
`)
}
