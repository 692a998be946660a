// Package report implements the Report Writer (C9, spec.md §4.9):
// structured JSON plus human-readable text rendering of a
// VerificationReport, written to <trace_dir>/reports/<report_id>.{json,txt}
// and mirrored to verification.latest.json.
//
// Grounded on the teacher's cmd/helm/verify_cmd.go, which writes an
// auditor-facing structured report to a file and renders a pass/fail
// summary plus per-check reasons to stdout; generalized here into a
// standalone writer so both the CLI and the verifier package itself can
// persist a report without importing cmd/coc.
package report

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/Adjoshi06/chainofCommand/pkg/model"
)

// Write renders report as both JSON and text under traceDir/reports/ and
// overwrites traceDir/verification.latest.json with the structured form.
func Write(traceDir string, report *model.VerificationReport) error {
	reportsDir := traceDir + "/reports"
	if err := os.MkdirAll(reportsDir, 0o755); err != nil { //nolint:gosec // report directory, not secret
		return fmt.Errorf("report: mkdir reports dir: %w", err)
	}

	jsonData, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return fmt.Errorf("report: marshal json: %w", err)
	}

	jsonPath := fmt.Sprintf("%s/%s.json", reportsDir, report.ReportID)
	if err := os.WriteFile(jsonPath, jsonData, 0o644); err != nil { //nolint:gosec // report artifact, not secret
		return fmt.Errorf("report: write json report: %w", err)
	}

	txtPath := fmt.Sprintf("%s/%s.txt", reportsDir, report.ReportID)
	if err := os.WriteFile(txtPath, []byte(RenderText(report)), 0o644); err != nil { //nolint:gosec // report artifact, not secret
		return fmt.Errorf("report: write text report: %w", err)
	}

	latestPath := traceDir + "/verification.latest.json"
	if err := os.WriteFile(latestPath, jsonData, 0o644); err != nil { //nolint:gosec // report artifact, not secret
		return fmt.Errorf("report: write latest report: %w", err)
	}
	return nil
}

// RenderText produces the human-readable rendering spec.md §4.9 describes:
// failures sorted by severity, then warnings, then checks with elapsed
// time, then a deduplicated "Recommended Next Actions" block.
func RenderText(report *model.VerificationReport) string {
	var b strings.Builder

	fmt.Fprintf(&b, "Verification Report %s\n", report.ReportID)
	fmt.Fprintf(&b, "Trace:    %s\n", report.TraceID)
	fmt.Fprintf(&b, "Verified: %s\n", report.VerifiedAt)
	fmt.Fprintf(&b, "Policy:   %s\n", report.PolicyProfile)
	fmt.Fprintf(&b, "Status:   %s\n", report.VerificationStatus)
	fmt.Fprintf(&b, "Summary:  %s\n\n", report.Summary)

	failures := append([]model.Failure(nil), report.Failures...)
	sort.SliceStable(failures, func(i, j int) bool {
		return model.SeverityRank(failures[i].Severity) < model.SeverityRank(failures[j].Severity)
	})

	if len(failures) > 0 {
		fmt.Fprintf(&b, "Failures (%d):\n", len(failures))
		for _, f := range failures {
			writeFailureLine(&b, f)
		}
		b.WriteString("\n")
	}

	if len(report.Warnings) > 0 {
		fmt.Fprintf(&b, "Warnings (%d):\n", len(report.Warnings))
		for _, w := range report.Warnings {
			writeFailureLine(&b, w)
		}
		b.WriteString("\n")
	}

	fmt.Fprintf(&b, "Checks (%d):\n", len(report.Checks))
	for _, c := range report.Checks {
		fmt.Fprintf(&b, "  [%s] %-32s %-10s %.3fms\n", c.CheckID, c.Name, c.Status, c.ElapsedMs)
	}
	b.WriteString("\n")

	actions := dedupActions(append(append([]model.Failure(nil), failures...), report.Warnings...))
	if len(actions) > 0 {
		b.WriteString("Recommended Next Actions:\n")
		for _, a := range actions {
			fmt.Fprintf(&b, "  - %s\n", a)
		}
	}

	return b.String()
}

func writeFailureLine(b *strings.Builder, f model.Failure) {
	ref := f.EventID
	if f.ArtifactHash != "" {
		if ref != "" {
			ref += " / "
		}
		ref += f.ArtifactHash
	}
	fmt.Fprintf(b, "  [%s] %s (%s, step=%s) ref=%s\n", f.Severity, f.FailureCode, f.Message, f.VerificationStep, ref)
	if f.RecommendedRemediation != "" {
		fmt.Fprintf(b, "      remediation: %s\n", f.RecommendedRemediation)
	}
}

func dedupActions(all []model.Failure) []string {
	seen := make(map[string]bool)
	var out []string
	for _, f := range all {
		if f.SuggestedAction == "" || seen[f.SuggestedAction] {
			continue
		}
		seen[f.SuggestedAction] = true
		out = append(out, f.SuggestedAction)
	}
	return out
}
