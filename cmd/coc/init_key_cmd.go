package main

import (
	"flag"
	"fmt"
	"io"
	"strings"

	"github.com/Adjoshi06/chainofCommand/pkg/config"
	"github.com/Adjoshi06/chainofCommand/pkg/keyring"
	"github.com/Adjoshi06/chainofCommand/pkg/model"
)

func runInitKeyCmd(args []string, stdout, stderr io.Writer) int {
	cmd := flag.NewFlagSet("init-key", flag.ContinueOnError)
	cmd.SetOutput(stderr)

	var agentID, displayName, roles string
	cmd.StringVar(&agentID, "agent-id", "", "stable agent_id, matches [a-z0-9._-]+ (required)")
	cmd.StringVar(&displayName, "display-name", "", "human-readable name (required)")
	cmd.StringVar(&roles, "role", "", "comma-separated role_capabilities (required)")

	if err := cmd.Parse(args); err != nil {
		return 2
	}
	if agentID == "" || displayName == "" || roles == "" {
		fmt.Fprintln(stderr, "coc init-key: --agent-id, --display-name, and --role are required")
		return 2
	}

	var roleCaps []model.Role
	for _, r := range strings.Split(roles, ",") {
		roleCaps = append(roleCaps, model.Role(strings.TrimSpace(r)))
	}

	cfg := config.Load()
	keys, err := keyring.New(cfg.CocHome + "/keys")
	if err != nil {
		fmt.Fprintf(stderr, "coc init-key: %v\n", err)
		return 4
	}

	km, err := keys.EnsureKey(agentID, displayName, roleCaps)
	if err != nil {
		fmt.Fprintf(stderr, "coc init-key: %v\n", err)
		return 2
	}

	fmt.Fprintf(stdout, "agent_id=%s key_id=%s status=%s\n", km.Identity.AgentID, km.Identity.KeyID, km.Identity.Status)
	return 0
}
