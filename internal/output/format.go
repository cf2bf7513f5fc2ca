// Package output provides formatters for CLI output.
package output

import (
	"fmt"
	"io"
	"strings"
	"time"

	"atask/internal/service"
)

const (
	// DateLayout is how due dates are printed and parsed on the command line.
	DateLayout = "2006-01-02"

	timestampLayout = "2006-01-02 15:04"
)

// FormatTask formats one line of the task list.
// Format: "{N:>4}  [x] {TITLE}" followed by " !high" for high priority and
// " (due YYYY-MM-DD)" when a due date is set.
func FormatTask(w io.Writer, num int, task service.Task) {
	box := "[ ]"
	if task.Completed {
		box = "[x]"
	}
	var suffix strings.Builder
	if task.Priority == service.PriorityHigh {
		suffix.WriteString(" !high")
	}
	if task.DueDate != nil {
		fmt.Fprintf(&suffix, " (due %s)", formatDate(task.DueDate, DateLayout))
	}
	fmt.Fprintf(w, "%4d  %s %s%s\n", num, box, normalizeTitle(task.Title), suffix.String())
}

// FormatTaskDetail prints every field of a task, one per line.
func FormatTaskDetail(w io.Writer, task service.Task) {
	status := "open"
	if task.Completed {
		status = "done"
	}
	priority := string(task.Priority)
	if priority == "" {
		priority = string(service.PriorityMedium)
	}

	fmt.Fprintf(w, "ID:        %s\n", task.ID)
	fmt.Fprintf(w, "Title:     %s\n", normalizeTitle(task.Title))
	fmt.Fprintf(w, "Status:    %s\n", status)
	fmt.Fprintf(w, "Priority:  %s\n", priority)
	fmt.Fprintf(w, "Due:       %s\n", formatDate(task.DueDate, DateLayout))
	fmt.Fprintf(w, "Tags:      %s\n", orDash(strings.Join(task.Tags, ", ")))
	fmt.Fprintf(w, "Created:   %s\n", task.CreatedAt.UTC().Format(timestampLayout))
	fmt.Fprintf(w, "Updated:   %s\n", formatDate(task.UpdatedAt, timestampLayout))
	if desc := strings.TrimSpace(task.Description); desc != "" {
		fmt.Fprintln(w, "")
		for _, line := range strings.Split(desc, "\n") {
			fmt.Fprintf(w, "  %s\n", strings.TrimRight(line, "\r"))
		}
	}
}

// FormatUser formats the signed-in identity.
// Format: "{EMAIL} ({DISPLAY NAME}) [{AUTH TYPE}]"
func FormatUser(w io.Writer, u *service.User) {
	line := u.Email
	if u.DisplayName != "" {
		line += " (" + u.DisplayName + ")"
	}
	if u.AuthType != "" {
		line += " [" + string(u.AuthType) + "]"
	}
	fmt.Fprintln(w, line)
}

func formatDate(t *time.Time, layout string) string {
	if t == nil {
		return "-"
	}
	return t.UTC().Format(layout)
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

// normalizeTitle normalizes a task title for display.
// - Empty or whitespace-only titles become "(untitled)"
// - Newlines are replaced with spaces
func normalizeTitle(title string) string {
	title = strings.ReplaceAll(title, "\r", " ")
	title = strings.ReplaceAll(title, "\n", " ")

	if strings.TrimSpace(title) == "" {
		return "(untitled)"
	}
	return title
}
