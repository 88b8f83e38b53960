package report

import (
	"fmt"
	"strings"
	"time"

	"github.com/ethpandaops/resultoor/pkg/result"
)

// Markdown renders the CI step summary for the latest run of c, with deep
// links into the historical document at baseURL.
func Markdown(c *result.Collection, baseURL string, window time.Duration) string {
	var sb strings.Builder

	sb.Grow(2048)

	latest := c.Latest()
	if latest == nil {
		sb.WriteString("# Test Results Summary\n\nNo results were collected for this run.\n")

		return sb.String()
	}

	writeRunInfo(&sb, latest)
	writeLinks(&sb, latest, baseURL)
	writeOverviewTable(&sb, latest)

	fmt.Fprintf(&sb, "---\n\nResults are kept for %s.\n", formatWindow(window))

	return sb.String()
}

func writeRunInfo(sb *strings.Builder, v *result.RunView) {
	counts := v.Run.StatusCounts()

	sb.WriteString("# Test Results Summary\n\n")
	sb.WriteString("## Run Information\n\n")
	sb.WriteString("| Field | Value |\n")
	sb.WriteString("|---|---|\n")

	if v.Run.Number > 0 {
		fmt.Fprintf(sb, "| Run Number | #%d |\n", v.Run.Number)
	}

	fmt.Fprintf(sb, "| Run ID | %s |\n", escapeCell(v.Run.ID))
	fmt.Fprintf(sb, "| Timestamp | %s |\n", formatTime(v.Run.Timestamp))
	fmt.Fprintf(sb, "| Environments | %d |\n", len(v.Environments))
	fmt.Fprintf(sb, "| Passed / Failed / Errored | %d / %d / %d |\n",
		counts.Passed, counts.Failed, counts.Errored)

	sb.WriteByte('\n')
}

func writeLinks(sb *strings.Builder, v *result.RunView, baseURL string) {
	if baseURL == "" {
		return
	}

	base := strings.SplitN(baseURL, "#", 2)[0]

	sb.WriteString("## Direct Links\n\n")
	fmt.Fprintf(sb, "- [View latest run](%s#%s)\n", base, v.Anchor())

	for _, env := range v.Environments {
		fmt.Fprintf(sb, "- [%s](%s#%s) (%s)\n",
			escapeLinkText(env.Result.Environment), base, env.Anchor.EnvAnchor(), env.Result.Status)
	}

	sb.WriteByte('\n')
}

func writeOverviewTable(sb *strings.Builder, v *result.RunView) {
	if len(v.Environments) == 0 {
		return
	}

	sb.WriteString("## Results\n\n")
	sb.WriteString("| Environment | Status |\n")
	sb.WriteString("|---|---|\n")

	for _, env := range v.Environments {
		fmt.Fprintf(sb, "| %s | %s %s |\n",
			escapeCell(env.Result.Environment), statusIcon(env.Result.Status), env.Result.Status)
	}

	sb.WriteByte('\n')
}

func statusIcon(s result.Status) string {
	switch s {
	case result.StatusPassed:
		return "✅"
	case result.StatusFailed:
		return "❌"
	default:
		return "⚠️"
	}
}

func escapeCell(s string) string {
	return strings.ReplaceAll(s, "|", `\|`)
}

func escapeLinkText(s string) string {
	return strings.NewReplacer("[", `\[`, "]", `\]`).Replace(s)
}
