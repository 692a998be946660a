package report

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/Adjoshi06/chainofCommand/pkg/model"
)

func sampleReport() *model.VerificationReport {
	return &model.VerificationReport{
		ReportID:           "report_01",
		TraceID:            "trace_01",
		VerifiedAt:         model.NowISO(),
		VerificationStatus: model.VerificationFail,
		Summary:            "1 failure(s) and 0 warning(s) over 3 events",
		Checks: []model.Check{
			{CheckID: "CHK_SCHEMA_CONFORMANCE", Name: "Schema conformance", Status: model.CheckPass, Scope: "trace:trace_01", ElapsedMs: 0.5},
			{CheckID: "CHK_CHAIN_CONTINUITY", Name: "Chain continuity", Status: model.CheckFail, Scope: "trace:trace_01", ElapsedMs: 0.2},
		},
		Failures: []model.Failure{
			{
				FailureCode:             model.CodeChainBreak,
				Severity:                model.SeverityCritical,
				EventID:                 "evt_02",
				Message:                 "chain broken",
				SuggestedAction:         "locate the missing predecessor",
				DetectedAt:              model.NowISO(),
				Description:             "broken chain",
				VerificationStep:        "CHK_CHAIN_CONTINUITY",
				RecommendedRemediation:  "restore the missing event",
			},
		},
		Metrics:       model.Metrics{EventCount: 3, ArtifactReferenceCount: 0, VerificationDurationMs: 1.1},
		PolicyProfile: model.PolicyDefault,
	}
}

func TestWrite_CreatesJSONTextAndLatestFiles(t *testing.T) {
	traceDir := t.TempDir()
	r := sampleReport()

	require.NoError(t, Write(traceDir, r))

	jsonPath := filepath.Join(traceDir, "reports", "report_01.json")
	txtPath := filepath.Join(traceDir, "reports", "report_01.txt")
	latestPath := filepath.Join(traceDir, "verification.latest.json")

	for _, p := range []string{jsonPath, txtPath, latestPath} {
		_, err := os.Stat(p)
		require.NoError(t, err, p)
	}

	data, err := os.ReadFile(jsonPath)
	require.NoError(t, err)
	var roundTripped model.VerificationReport
	require.NoError(t, json.Unmarshal(data, &roundTripped))
	require.Equal(t, r.ReportID, roundTripped.ReportID)

	latestData, err := os.ReadFile(latestPath)
	require.NoError(t, err)
	require.JSONEq(t, string(data), string(latestData))
}

func TestRenderText_OrdersFailuresBySeverityAndListsActions(t *testing.T) {
	r := sampleReport()
	r.Failures = append(r.Failures, model.Failure{
		FailureCode:            model.CodeSchemaInvalid,
		Severity:               model.SeverityMedium,
		Message:                "schema issue",
		SuggestedAction:        "inspect the offending event",
		VerificationStep:       "CHK_SCHEMA_CONFORMANCE",
		RecommendedRemediation: "repair or quarantine the event",
	})
	// Insert a higher-severity failure after a lower one to assert sorting.
	r.Failures = []model.Failure{r.Failures[1], r.Failures[0]}

	text := RenderText(r)

	criticalIdx := strings.Index(text, "CHAIN_BREAK")
	mediumIdx := strings.Index(text, "SCHEMA_INVALID")
	require.True(t, criticalIdx >= 0 && mediumIdx >= 0)
	require.Less(t, criticalIdx, mediumIdx)

	require.Contains(t, text, "Recommended Next Actions:")
	require.Contains(t, text, "locate the missing predecessor")
}

func TestRenderText_DedupsRepeatedSuggestedActions(t *testing.T) {
	r := sampleReport()
	r.Failures = append(r.Failures, model.Failure{
		FailureCode:      model.CodeChainBreak,
		Severity:         model.SeverityCritical,
		Message:          "another break",
		SuggestedAction:  "locate the missing predecessor",
		VerificationStep: "CHK_CHAIN_CONTINUITY",
	})

	text := RenderText(r)
	require.Equal(t, 1, strings.Count(text, "locate the missing predecessor"))
}
