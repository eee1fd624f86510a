// Package output renders evaluation records and run summaries for the CLI.
package output

import (
	"fmt"
	"io"
	"strings"

	"github.com/pankaj-dahiya-devops/config-rulesets/internal/models"
)

// ANSI color codes for compliance output (used when Colored=true).
const (
	ansiReset = "\033[0m"
	ansiRed   = "\033[0;31m"
	ansiGreen = "\033[0;32m"
)

// TableOptions controls which columns RenderRecords renders.
type TableOptions struct {
	// Colored wraps compliance labels with ANSI codes. Default false (CI-safe).
	Colored bool

	// IncludeRule adds a RULE column (useful for journal listings that span
	// several rules).
	IncludeRule bool

	// IncludeTimestamp adds the ordering timestamp column.
	IncludeTimestamp bool
}

// ShortenMessage truncates msg to at most max runes, appending "..." when truncated.
// max is treated as at least 4 to guarantee space for the ellipsis.
func ShortenMessage(msg string, max int) string {
	if max < 4 {
		max = 4
	}
	runes := []rune(msg)
	if len(runes) <= max {
		return msg
	}
	return string(runes[:max-3]) + "..."
}

// complianceCell returns the compliance type padded to width characters.
// ANSI codes wrap only the text so the padding keeps columns aligned.
func complianceCell(c models.ComplianceType, width int, colored bool) string {
	text := string(c)
	if !colored {
		return fmt.Sprintf("%-*s", width, text)
	}
	code := ansiRed
	if c == models.Compliant {
		code = ansiGreen
	}
	spaces := width - len(text)
	if spaces < 0 {
		spaces = 0
	}
	return code + text + ansiReset + strings.Repeat(" ", spaces)
}

// truncateLeft keeps the last max-1 bytes of s behind an ellipsis. Resource
// ARNs differ at the end, so the tail is the useful part.
func truncateLeft(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return "…" + s[len(s)-(max-1):]
}

// RenderRecords writes a formatted evaluation table to w.
//
// Column order:
//
//	[RULE]  RESOURCE TYPE  RESOURCE ID  REGION  COMPLIANCE  [ORDERED AT]  ANNOTATION
func RenderRecords(w io.Writer, recs []models.EvaluationRecord, opts TableOptions) {
	if len(recs) == 0 {
		fmt.Fprintln(w, "No evaluations.")
		return
	}

	const (
		wRule       = 38
		wType       = 20
		wResource   = 44
		wRegion     = 15
		wCompliance = 13
		wTime       = 20
		wAnnotation = 60
	)

	var hb strings.Builder
	if opts.IncludeRule {
		hb.WriteString(fmt.Sprintf("%-*s  ", wRule, "RULE"))
	}
	hb.WriteString(fmt.Sprintf("%-*s", wType, "RESOURCE TYPE"))
	hb.WriteString(fmt.Sprintf("  %-*s", wResource, "RESOURCE ID"))
	hb.WriteString(fmt.Sprintf("  %-*s", wRegion, "REGION"))
	hb.WriteString(fmt.Sprintf("  %-*s", wCompliance, "COMPLIANCE"))
	if opts.IncludeTimestamp {
		hb.WriteString(fmt.Sprintf("  %-*s", wTime, "ORDERED AT"))
	}
	hb.WriteString("  ANNOTATION")
	header := hb.String()

	fmt.Fprintln(w, header)
	fmt.Fprintln(w, strings.Repeat("-", len(header)))

	for _, r := range recs {
		var rb strings.Builder
		if opts.IncludeRule {
			rb.WriteString(fmt.Sprintf("%-*s  ", wRule, r.RuleID))
		}
		rb.WriteString(fmt.Sprintf("%-*s", wType, string(r.ResourceType)))
		rb.WriteString(fmt.Sprintf("  %-*s", wResource, truncateLeft(r.ResourceID, wResource)))
		rb.WriteString(fmt.Sprintf("  %-*s", wRegion, r.Region))
		rb.WriteString("  " + complianceCell(r.Compliance, wCompliance, opts.Colored))
		if opts.IncludeTimestamp {
			rb.WriteString(fmt.Sprintf("  %-*s", wTime, r.OrderingTimestamp.UTC().Format("2006-01-02T15:04:05Z")))
		}
		rb.WriteString("  " + ShortenMessage(r.Annotation, wAnnotation))
		fmt.Fprintln(w, rb.String())
	}
}

// RenderSummary writes a compact view of one run to w.
func RenderSummary(w io.Writer, s *models.RunSummary) {
	fmt.Fprintf(w, "Mode:       %s\n", s.Mode)
	fmt.Fprintf(w, "Rules:      %s\n", strings.Join(s.RulesRun, ", "))
	fmt.Fprintf(w, "Regions:    %d\n", len(s.Regions))
	fmt.Fprintf(w, "Ordered at: %s\n", s.OrderingTimestamp.UTC().Format("2006-01-02T15:04:05Z"))
	fmt.Fprintln(w)
	fmt.Fprintf(w, "  %-18s  %d\n", "COMPLIANT", s.Compliant)
	fmt.Fprintf(w, "  %-18s  %d\n", "NON_COMPLIANT", s.NonCompliant)
	fmt.Fprintf(w, "  %-18s  %d\n", "not applicable", s.NotApplicable)
	fmt.Fprintf(w, "  %-18s  %d\n", "not found", s.NotFound)
	fmt.Fprintf(w, "  %-18s  %d\n", "describe failures", s.DescribeFailures)
	fmt.Fprintf(w, "  %-18s  %d\n", "report failures", s.ReportFailures)
}
