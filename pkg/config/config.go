// Package config resolves process-boundary environment variables
// (spec.md §6, §9). The core itself takes an explicit coc_home parameter
// and holds no process-wide state; this package exists only for the CLI
// and demo emitter entrypoints that read the environment.
//
// Grounded on the teacher's pkg/config/config.go: os.Getenv with fallback
// defaults, returned as a flat struct.
package config

import (
	"os"

	"github.com/Adjoshi06/chainofCommand/pkg/model"
)

// Config holds the resolved process-boundary settings.
type Config struct {
	CocHome       string
	LogLevel      string
	PolicyProfile model.PolicyProfile
	APIHost       string
	APIPort       string
	OTelEndpoint  string
}

// Load resolves COC_HOME, COC_LOG_LEVEL, COC_POLICY_PROFILE, COC_API_HOST,
// COC_API_PORT, and COC_OTEL_ENDPOINT from the environment, applying the
// defaults spec.md §6 documents.
func Load() Config {
	cocHome := os.Getenv("COC_HOME")
	if cocHome == "" {
		cocHome = "./.coc"
	}

	logLevel := os.Getenv("COC_LOG_LEVEL")
	if logLevel == "" {
		logLevel = "info"
	}

	policy := model.PolicyProfile(os.Getenv("COC_POLICY_PROFILE"))
	if policy == "" {
		policy = model.PolicyDefault
	}

	apiHost := os.Getenv("COC_API_HOST")
	if apiHost == "" {
		apiHost = "127.0.0.1"
	}

	apiPort := os.Getenv("COC_API_PORT")
	if apiPort == "" {
		apiPort = "8787"
	}

	return Config{
		CocHome:       cocHome,
		LogLevel:      logLevel,
		PolicyProfile: policy,
		APIHost:       apiHost,
		APIPort:       apiPort,
		OTelEndpoint:  os.Getenv("COC_OTEL_ENDPOINT"),
	}
}
