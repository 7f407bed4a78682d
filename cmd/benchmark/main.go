package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"runtime/pprof"
	"time"

	"github.com/delaneyj/mimic/internal/report"
	"github.com/delaneyj/mimic/mimic"
	"github.com/jamiealquiza/tachymeter"
	"github.com/urfave/cli/v3"
)

const (
	itersKey      = "iters"
	formatKey     = "format"
	cpuProfileKey = "cpuprofile"
	untrackedKey  = "untracked-reruns"
)

var (
	ww = []int{1, 10, 100, 1_000}
	hh = []int{1, 10, 100}
)

func main() {
	cmd := &cli.Command{
		Name:  "benchmark",
		Usage: "Time a write propagating through width * height chains of effects",
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:  itersKey,
				Usage: "Writes timed per configuration",
				Value: 100,
			},
			&cli.StringFlag{
				Name:  formatKey,
				Usage: "Output format, table or json",
				Value: "table",
			},
			&cli.StringFlag{
				Name:  cpuProfileKey,
				Usage: "Write a CPU profile to this file",
			},
			&cli.BoolFlag{
				Name:  untrackedKey,
				Usage: "Re-run effects without tracking",
			},
		},
		Action: benchmark,
	}
	if err := cmd.Run(context.Background(), os.Args); err != nil {
		log.Fatal(err)
	}
}

func benchmark(ctx context.Context, cmd *cli.Command) error {
	if path := cmd.String(cpuProfileKey); path != "" {
		f, err := os.Create(path)
		if err != nil {
			return fmt.Errorf("create profile: %w", err)
		}
		defer f.Close()
		if err := pprof.StartCPUProfile(f); err != nil {
			return fmt.Errorf("start profile: %w", err)
		}
		defer pprof.StopCPUProfile()
	}

	iters := int(cmd.Int(itersKey))
	var opts []mimic.Option
	title := "mimic refs"
	if cmd.Bool(untrackedKey) {
		opts = append(opts, mimic.WithUntrackedReruns())
		title += " (untracked re-runs)"
	}

	log.Printf("warming up")
	if _, err := propagate(1, 1, iters, opts); err != nil {
		return err
	}

	var rows []report.Row
	for _, w := range ww {
		for _, h := range hh {
			calc, err := propagate(w, h, iters, opts)
			if err != nil {
				return err
			}
			rows = append(rows, report.FromMetrics(fmt.Sprintf("propagate: %d * %d", w, h), calc))
		}
	}

	switch format := cmd.String(formatKey); format {
	case "table":
		report.Table(os.Stdout, title, rows)
	case "json":
		report.JSON(os.Stdout, title, rows)
	default:
		return fmt.Errorf("unknown format %q", format)
	}
	return nil
}

// propagate builds w chains of h effects, each copying its source plus one
// into the next ref, and times writes to the shared source.
func propagate(w, h, iters int, opts []mimic.Option) (*tachymeter.Metrics, error) {
	tach := tachymeter.New(&tachymeter.Config{Size: iters})

	tc := mimic.CreateTrackingContext(opts...)
	src := mimic.NewRef(tc, 1)
	for i := 0; i < w; i++ {
		last := src
		for j := 0; j < h; j++ {
			prev, next := last, mimic.NewRef(tc, 0)
			if _, err := mimic.WatchEffect(tc, func() error {
				return next.SetValue(prev.Value() + 1)
			}); err != nil {
				return nil, fmt.Errorf("build chain %d: %w", i, err)
			}
			last = next
		}

		tail := last
		if _, err := mimic.WatchEffect(tc, func() error {
			if got, want := tail.Value(), src.Peek()+h; got != want {
				return fmt.Errorf("chain tail is %d, want %d", got, want)
			}
			return nil
		}); err != nil {
			return nil, err
		}
	}

	for i := 0; i < iters; i++ {
		start := time.Now()
		if err := src.SetValue(src.Peek() + 1); err != nil {
			return nil, fmt.Errorf("propagate %d * %d: %w", w, h, err)
		}
		tach.AddTime(time.Since(start))
	}

	return tach.Calc(), nil
}
