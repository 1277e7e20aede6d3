package executionlog

import (
	"fmt"
	"strings"
)

// filesTruncateLimit bounds the comma-separated path list.
const filesTruncateLimit = 20

// Report is the child-execution report. Render produces the deterministic fixed-whitespace text
// a parent receives as its sub_agent tool result.
type Report struct {
	SessionID       string
	ParentSessionID string
	Status          Status
	Duration        float64 // seconds
	Category        Category
	BlockedOn       string
	SuggestedActions []string // up to 4, enforced by truncation on render
	FinalText       string
}

// BuildReport summarizes a log into a Report with the given terminal
// status; Category/BlockedOn/SuggestedActions are only meaningful when
// status is failed/timeout/partial.
func BuildReport(l *Log, status Status, category Category, blockedOn string, suggested []string, finalText string) Report {
	return Report{
		SessionID:        l.SessionID,
		ParentSessionID:  l.ParentSessionID,
		Status:           status,
		Duration:         l.FinishedAt.Sub(l.StartedAt).Seconds(),
		Category:         category,
		BlockedOn:        blockedOn,
		SuggestedActions: suggested,
		FinalText:        finalText,
	}
}

// Render produces the structured text format. Field names and whitespace
// are fixed so tests can match literally.
func (r Report) Render(l *Log) string {
	agg := l.aggregate()

	var sb strings.Builder
	fmt.Fprintf(&sb, "session_id: %s\n", r.SessionID)
	if r.ParentSessionID != "" {
		fmt.Fprintf(&sb, "parent_id: %s\n", r.ParentSessionID)
	}
	fmt.Fprintf(&sb, "status: %s\n", r.Status)
	fmt.Fprintf(&sb, "duration: %.2f\n", r.Duration)

	if agg.total == 0 {
		sb.WriteString("success_rate: N/A\n")
	} else {
		pct := (agg.succeeded * 100) / agg.total
		fmt.Fprintf(&sb, "success_rate: %d\n", pct)
	}

	sb.WriteString(renderFileGroup("files.read", agg.filesRead))
	sb.WriteString(renderFileGroup("files.written", agg.filesWritten))
	sb.WriteString(renderFileGroup("files.edited", agg.filesEdited))

	sb.WriteString("tools:\n")
	for _, p := range agg.toolCountPairs() {
		fmt.Fprintf(&sb, "  %s: %dx\n", p.Name, p.Count)
	}

	if r.Status != StatusCompleted {
		fmt.Fprintf(&sb, "category: %s\n", r.Category)
		fmt.Fprintf(&sb, "blocked_on: %s\n", r.BlockedOn)
		sb.WriteString("suggested_actions:\n")
		actions := r.SuggestedActions
		if len(actions) > 4 {
			actions = actions[:4]
		}
		for _, a := range actions {
			fmt.Fprintf(&sb, "  - %s\n", a)
		}
	}

	if r.FinalText != "" {
		sb.WriteString(r.FinalText)
	}

	return sb.String()
}

func renderFileGroup(label string, paths []string) string {
	count := len(paths)
	shown := paths
	marker := ""
	if count > filesTruncateLimit {
		shown = paths[:filesTruncateLimit]
		marker = ", …"
	}
	return fmt.Sprintf("%s: %d (%s%s)\n", label, count, strings.Join(shown, ", "), marker)
}

// SuggestedActionsFor returns the default retry-suggestion list for a
// failure category, giving the model concrete next steps rather than a
// bare error.
func SuggestedActionsFor(cat Category) []string {
	switch cat {
	case CategoryTimeout:
		return []string{
			"Break the task into smaller sub-tasks with a shorter scope.",
			"Re-issue sub_agent with a longer timeout if the task is inherently long-running.",
		}
	case CategoryToolError:
		return []string{
			"Inspect the failing tool's error message and retry with corrected arguments.",
			"Narrow the task to avoid the failing tool if it is not essential.",
		}
	case CategoryMissingContext:
		return []string{
			"Provide the missing file paths or identifiers directly in the prompt.",
			"Run a read-only exploration step before delegating the write task.",
		}
	case CategoryInvalidTask:
		return []string{
			"Restate the task with an unambiguous, concrete goal.",
		}
	case CategoryPartialSuccess:
		return []string{
			"Resume from the work already done, described above, rather than restarting.",
		}
	default:
		return nil
	}
}
