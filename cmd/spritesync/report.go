package main

import (
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/fatih/color"

	"github.com/TheMichaelB/spritesync/internal/models"
	"github.com/TheMichaelB/spritesync/internal/services/sync"
)

// reporter prints pass events as a human-readable report.
type reporter struct {
	out   io.Writer
	plain bool
	phase string

	header  *color.Color
	added   *color.Color
	updated *color.Color
	deleted *color.Color
	warn    *color.Color
	failure *color.Color
	dim     *color.Color
}

func newReporter(out io.Writer, plain bool) *reporter {
	r := &reporter{
		out:     out,
		plain:   plain,
		header:  color.New(color.Bold),
		added:   color.New(color.FgGreen),
		updated: color.New(color.FgYellow),
		deleted: color.New(color.FgRed),
		warn:    color.New(color.FgYellow),
		failure: color.New(color.FgRed, color.Bold),
		dim:     color.New(color.Faint),
	}

	if plain {
		for _, c := range []*color.Color{r.header, r.added, r.updated, r.deleted, r.warn, r.failure, r.dim} {
			c.DisableColor()
		}
	}

	return r
}

// Handle is a sync.Handler.
func (r *reporter) Handle(event sync.Event) {
	switch event.Type {
	case sync.EventNothingToDo:
		r.line(r.dim, "Nothing to do, all sprites up to date")

	case sync.EventPreview:
		r.section("Preview (no files written)")
		r.printPlan(event.Plan)

	case sync.EventDeleted:
		r.section("Deleting")
		r.action(models.ClassDeleted, event.Path)

	case sync.EventDeleteWarning:
		r.section("Deleting")
		r.line(r.warn, fmt.Sprintf("! %s: %s", event.Path, event.Message))

	case sync.EventDeleteFailed:
		r.section("Deleting")
		r.line(r.failure, fmt.Sprintf("x %s", event.Path))
		r.diagnostic(event.Error)

	case sync.EventExportComplete:
		r.section("Exporting")
		r.action(event.Class, event.Path)

	case sync.EventExportFailed:
		r.section("Exporting")
		r.line(r.failure, fmt.Sprintf("x %s", event.Path))
		r.diagnostic(event.Error)
	}
}

// Summary prints the counts line for a finished pass.
func (r *reporter) Summary(report *sync.Report) {
	if report == nil || report.Plan == nil {
		return
	}

	plan := report.Plan
	parts := []string{}
	if report.Preview {
		parts = append(parts,
			r.added.Sprintf("%d to add", len(plan.Added)),
			r.updated.Sprintf("%d to update", len(plan.Updated)),
			r.deleted.Sprintf("%d to delete", len(plan.Deleted)),
		)
	} else {
		parts = append(parts,
			r.added.Sprintf("%d added", countClass(report, plan.Added)),
			r.updated.Sprintf("%d updated", countClass(report, plan.Updated)),
			r.deleted.Sprintf("%d deleted", len(report.Deleted)),
		)
	}
	parts = append(parts, fmt.Sprintf("%d unchanged", len(plan.Unchanged)))

	if n := report.Failed(); n > 0 {
		parts = append(parts, r.failure.Sprintf("%d failed", n))
	}
	if n := len(report.Warnings); n > 0 {
		parts = append(parts, r.warn.Sprintf("%d warnings", n))
	}

	r.phase = ""
	fmt.Fprintln(r.out)
	fmt.Fprintf(r.out, "%s (%s)\n", strings.Join(parts, ", "), report.Duration.Round(time.Millisecond))
}

// printPlan lists every pending action in execution order.
func (r *reporter) printPlan(plan *models.Plan) {
	if plan == nil {
		return
	}
	for _, p := range plan.Deleted {
		r.action(models.ClassDeleted, p)
	}
	for _, p := range plan.Updated {
		r.action(models.ClassUpdated, p)
	}
	for _, p := range plan.Added {
		r.action(models.ClassAdded, p)
	}
}

func (r *reporter) section(title string) {
	if r.phase == title {
		return
	}
	r.phase = title

	if r.plain {
		fmt.Fprintf(r.out, "%s:\n", title)
		return
	}
	fmt.Fprintln(r.out, r.header.Sprintf("==> %s", title))
}

func (r *reporter) action(class models.Classification, path string) {
	c := r.dim
	switch class {
	case models.ClassAdded:
		c = r.added
	case models.ClassUpdated:
		c = r.updated
	case models.ClassDeleted:
		c = r.deleted
	}
	r.line(c, fmt.Sprintf("%s %s", class.Symbol(), path))
}

func (r *reporter) diagnostic(err error) {
	if err == nil {
		return
	}

	msg := err.Error()
	var exportErr *models.ExportError
	if errors.As(err, &exportErr) && exportErr.Diagnostic != "" {
		msg = exportErr.Diagnostic
	}

	for _, l := range strings.Split(msg, "\n") {
		fmt.Fprintf(r.out, "    %s\n", l)
	}
}

func (r *reporter) line(c *color.Color, text string) {
	indent := "  "
	if r.plain {
		indent = ""
	}
	fmt.Fprintln(r.out, indent+c.Sprint(text))
}

// countClass counts exported paths from one plan class.
func countClass(report *sync.Report, class []string) int {
	want := make(map[string]bool, len(class))
	for _, p := range class {
		want[p] = true
	}

	n := 0
	for _, p := range report.Exported {
		if want[p] {
			n++
		}
	}
	return n
}
