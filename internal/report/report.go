// Package report renders benchmark timings for the commands.
package report

import (
	"io"
	"time"

	"github.com/jamiealquiza/tachymeter"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/valyala/quicktemplate"
)

type Row struct {
	Name  string
	Count int
	Avg   time.Duration
	Min   time.Duration
	P75   time.Duration
	P99   time.Duration
	Max   time.Duration
}

func FromMetrics(name string, calc *tachymeter.Metrics) Row {
	return Row{
		Name:  name,
		Count: calc.Count,
		Avg:   calc.Time.Avg,
		Min:   calc.Time.Min,
		P75:   calc.Time.P75,
		P99:   calc.Time.P99,
		Max:   calc.Time.Max,
	}
}

func Table(w io.Writer, title string, rows []Row) {
	tbl := table.NewWriter()
	tbl.SetTitle(title)
	tbl.SetOutputMirror(w)
	tbl.AppendHeader(table.Row{"benchmark", "avg", "min", "p75", "p99", "max"})
	for _, r := range rows {
		tbl.AppendRow(table.Row{r.Name, r.Avg, r.Min, r.P75, r.P99, r.Max})
	}
	tbl.Render()
}

// JSON writes {"title":...,"rows":[...]} with durations in nanoseconds.
func JSON(w io.Writer, title string, rows []Row) {
	qw := quicktemplate.AcquireWriter(w)
	defer quicktemplate.ReleaseWriter(qw)

	n := qw.N()
	n.S(`{"title":`)
	n.Q(title)
	n.S(`,"rows":[`)
	for i, r := range rows {
		if i > 0 {
			n.S(`,`)
		}
		n.S(`{"name":`)
		n.Q(r.Name)
		n.S(`,"count":`)
		n.D(r.Count)
		for _, f := range []struct {
			key string
			d   time.Duration
		}{
			{"avg", r.Avg},
			{"min", r.Min},
			{"p75", r.P75},
			{"p99", r.P99},
			{"max", r.Max},
		} {
			n.S(`,"`)
			n.S(f.key)
			n.S(`_ns":`)
			n.D(int(f.d.Nanoseconds()))
		}
		n.S(`}`)
	}
	n.S("]}\n")
}
