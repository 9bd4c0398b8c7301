package cli

import (
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/dmitrijs2005/journalsync/internal/client/syncer"
	"github.com/dmitrijs2005/journalsync/internal/models"
	"github.com/dmitrijs2005/journalsync/internal/timex"
	"github.com/jedib0t/go-pretty/v6/table"
)

func formatTime(ms int64) string {
	if ms == 0 {
		return "never"
	}
	return timex.FromMillis(ms).UTC().Format(time.RFC3339)
}

func printSyncResult(w io.Writer, r *syncer.SyncResult) {
	fmt.Fprintf(w, "uploaded: %d, downloaded: %d, conflicts resolved: %d\n", r.Uploaded, r.Downloaded, r.ConflictsResolved)
	for _, e := range r.Errors {
		fmt.Fprintf(w, "error: %v\n", e)
	}
}

// newTable returns a borderless table writer for plain terminal listings.
func newTable() table.Writer {
	tw := table.NewWriter()
	tw.Style().Options.DrawBorder = false
	tw.Style().Options.SeparateColumns = false
	tw.Style().Options.SeparateFooter = false
	tw.Style().Options.SeparateHeader = false
	tw.Style().Options.SeparateRows = false
	return tw
}

func printSyncStatus(w io.Writer, s *syncer.SyncStatus, checkpoints map[string]int64) {
	tw := newTable()
	tw.AppendRow(table.Row{"logged in:", s.Enabled})
	tw.AppendRow(table.Row{"last sync:", formatTime(s.LastSyncAt)})
	tw.AppendRow(table.Row{"pending changes:", s.PendingChanges})
	if s.LastError != nil {
		tw.AppendRow(table.Row{"last error:", s.LastError.Error()})
	}
	fmt.Fprintf(w, "%s\n", tw.Render())
	if len(checkpoints) == 0 {
		return
	}

	entities := make([]string, 0, len(checkpoints))
	for e := range checkpoints {
		entities = append(entities, e)
	}
	sort.Strings(entities)
	tw = newTable()
	tw.AppendHeader(table.Row{"ENTITY", "CHECKPOINT"})
	for _, e := range entities {
		tw.AppendRow(table.Row{e, formatTime(checkpoints[e])})
	}
	fmt.Fprintf(w, "%s\n", tw.Render())
}

func printRemoteStatus(w io.Writer, s *models.Status) {
	entities := make([]string, 0, len(s.Entities))
	for e := range s.Entities {
		entities = append(entities, e)
	}
	sort.Strings(entities)

	tw := newTable()
	tw.AppendHeader(table.Row{"ENTITY", "LIVE", "DELETED"})
	for _, e := range entities {
		st := s.Entities[e]
		tw.AppendRow(table.Row{e, st.Live, st.Deleted})
	}
	fmt.Fprintf(w, "%s\n", tw.Render())
}

func printJournals(w io.Writer, js []*models.Journal) {
	tw := newTable()
	tw.AppendHeader(table.Row{"ID", "TITLE", "UPDATED"})
	for _, j := range js {
		tw.AppendRow(table.Row{j.ID, j.Title, formatTime(j.LastUpdated)})
	}
	fmt.Fprintf(w, "%s\n", tw.Render())
}

func printContent(w io.Writer, cs []*models.Content) {
	tw := newTable()
	tw.AppendHeader(table.Row{"ID", "TYPE", "TEXT", "MEDIA"})
	for _, c := range cs {
		tw.AppendRow(table.Row{c.ID, c.Type, preview(c.Content, 40), c.MediaRef})
	}
	fmt.Fprintf(w, "%s\n", tw.Render())
}

func preview(s string, n int) string {
	s = strings.ReplaceAll(s, "\n", " ")
	if r := []rune(s); len(r) > n {
		return string(r[:n-1]) + "…"
	}
	return s
}
