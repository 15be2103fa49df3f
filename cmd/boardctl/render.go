package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"

	"taskboard-api/internal/board"
	"taskboard-api/internal/models"
)

var stageColors = map[models.TaskStatus]*color.Color{
	models.StatusTodo:       color.New(color.FgWhite, color.Bold),
	models.StatusInProgress: color.New(color.FgCyan, color.Bold),
	models.StatusInReview:   color.New(color.FgYellow, color.Bold),
	models.StatusDone:       color.New(color.FgGreen, color.Bold),
}

// renderBoard prints one section per stage, in board order.
func renderBoard(w io.Writer, b *board.Board, assigneeID string) {
	for _, stage := range models.Stages() {
		tasks := b.Column(stage, assigneeID)
		header := fmt.Sprintf("%s (%d)", stage.Label(), len(tasks))
		stageColors[stage].Fprintln(w, header)
		fmt.Fprintln(w, strings.Repeat("-", len(header)))
		for _, t := range tasks {
			fmt.Fprintf(w, "  %s  %-40s %-8s %s", t.ID, truncate(t.Title, 40), t.Priority, assigneeName(t))
			if b.Pending(t.ID) > 0 {
				fmt.Fprint(w, "  (saving)")
			}
			fmt.Fprintln(w)
			if t.Note != "" {
				fmt.Fprintf(w, "      note: %s\n", t.Note)
			}
		}
		fmt.Fprintln(w)
	}
}

func assigneeName(t models.Task) string {
	switch {
	case t.Assignee.Name != "":
		return t.Assignee.Name
	case t.Assignee.Email != "":
		return t.Assignee.Email
	}
	return t.Assignee.ID
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}
