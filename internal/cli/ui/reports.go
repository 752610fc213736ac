package ui

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/conduit-lang/objectserver/internal/orm/hierarchy"
	"github.com/conduit-lang/objectserver/internal/orm/migrate"
)

// WriteSyncReport renders the catalog changes of a synchronization. Models
// without writes are omitted unless verbose is set.
func WriteSyncReport(w io.Writer, reports []*migrate.SyncReport, verbose, noColor bool) {
	table := NewTable(w, noColor, "MODEL", "ID", "ADDED", "REMOVED", "UPDATED")
	writes := 0
	for _, r := range reports {
		writes += r.Writes()
		if r.Writes() == 0 && !verbose {
			continue
		}
		id := strconv.FormatInt(r.ModelID, 10)
		if r.ModelCreated {
			id += " (new)"
		}
		table.AddRow(r.Model, id, names(r.Added), names(r.Removed), names(r.Updated))
	}

	if table.Len() > 0 {
		table.Render()
		fmt.Fprintln(w)
	}
	if writes == 0 {
		WriteSuccess(w, fmt.Sprintf("catalog up to date (%d models)", len(reports)), noColor)
		return
	}
	WriteSuccess(w, fmt.Sprintf("%d catalog rows written for %d models", writes, len(reports)), noColor)
}

// WriteViolations renders the nodes whose stored interval is wrong
func WriteViolations(w io.Writer, model string, violations []hierarchy.Violation, noColor bool) {
	if len(violations) == 0 {
		WriteSuccess(w, fmt.Sprintf("%s: tree is consistent", model), noColor)
		return
	}
	table := NewTable(w, noColor, "ID", "STORED", "EXPECTED")
	for _, v := range violations {
		table.AddRow(
			strconv.FormatInt(v.ID, 10),
			interval(v.Stored),
			interval(v.Expected),
		)
	}
	table.Render()
	fmt.Fprintln(w)
	fmt.Fprint(w, Warning(fmt.Sprintf("%s: %d nodes out of place, run 'objectserver tree rebuild %s'", model, len(violations), model), noColor))
}

func interval(i hierarchy.Interval) string {
	return fmt.Sprintf("[%d, %d]", i.Left, i.Right)
}

func names(list []string) string {
	if len(list) == 0 {
		return "-"
	}
	return strings.Join(list, ", ")
}
