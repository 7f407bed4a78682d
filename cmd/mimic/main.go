package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"os"
	"time"

	"github.com/delaneyj/mimic/mimic"
	"github.com/urfave/cli/v3"
)

const (
	verboseKey      = "verbose"
	untrackedKey    = "untracked-reruns"
	noCycleGuardKey = "no-cycle-guard"
)

func main() {
	cmd := &cli.Command{
		Name:  "mimic",
		Usage: "Walk through how refs and effects track each other",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:  verboseKey,
				Usage: "Log every subscription and broadcast",
			},
		},
		Commands: []*cli.Command{
			{
				Name:  "demo",
				Usage: "Run the counter and conditional-read scenarios",
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:  untrackedKey,
						Usage: "Re-run effects without tracking, fixing dependencies at the first run",
					},
					&cli.BoolFlag{
						Name:  noCycleGuardKey,
						Usage: "Allow writes to re-enter a broadcasting ref",
					},
				},
				Action: demo,
			},
			{
				Name:   "cycle",
				Usage:  "Build two effects writing each other's ref and report the rejected write",
				Action: cycle,
			},
		},
	}
	if err := cmd.Run(context.Background(), os.Args); err != nil {
		log.Fatal(err)
	}
}

func trackingContext(cmd *cli.Command) *mimic.TrackingContext {
	opts := []mimic.Option{
		mimic.WithOnError(func(from *mimic.Effect, err error) {
			log.Printf("effect %d failed: %v", from.ID(), err)
		}),
	}
	if cmd.Bool(verboseKey) {
		logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug}))
		opts = append(opts, mimic.WithLogger(logger))
	}
	if cmd.Bool(untrackedKey) {
		opts = append(opts, mimic.WithUntrackedReruns())
	}
	if cmd.Bool(noCycleGuardKey) {
		opts = append(opts, mimic.WithoutCycleGuard())
	}
	return mimic.CreateTrackingContext(opts...)
}

func demo(ctx context.Context, cmd *cli.Command) error {
	start := time.Now()
	log.Printf("Demo started")
	defer func() {
		log.Printf("Demo finished in %v", time.Since(start))
	}()

	tc := trackingContext(cmd)

	count := mimic.NewRef(tc, 1).Named("count")
	printer := mimic.NewEffect(tc, func() error {
		log.Printf("count is %d", count.Value())
		return nil
	}).Named("printer")
	if err := printer.Run(); err != nil {
		return err
	}
	for i := 2; i <= 3; i++ {
		if err := count.SetValue(i); err != nil {
			return err
		}
	}

	enabled := mimic.NewRef(tc, false).Named("enabled")
	detail := mimic.NewRef(tc, "none").Named("detail")
	viewer := mimic.NewEffect(tc, func() error {
		if enabled.Value() {
			log.Printf("viewer sees detail %q", detail.Value())
		} else {
			log.Printf("viewer is disabled")
		}
		return nil
	}).Named("viewer")
	if err := viewer.Run(); err != nil {
		return err
	}
	if err := enabled.SetValue(true); err != nil {
		return err
	}
	if err := detail.SetValue("updated"); err != nil {
		return err
	}
	log.Printf("viewer ran %d times, detail has %d subscribers", viewer.Runs(), detail.Subscribers())

	return nil
}

func cycle(ctx context.Context, cmd *cli.Command) error {
	tc := trackingContext(cmd)

	a := mimic.NewRef(tc, 0).Named("a")
	b := mimic.NewRef(tc, 0).Named("b")
	if _, err := mimic.WatchEffect(tc, func() error {
		return b.SetValue(a.Value() + 1)
	}); err != nil {
		return err
	}
	_, err := mimic.WatchEffect(tc, func() error {
		return a.SetValue(b.Value() + 1)
	})

	var cycleErr *mimic.CycleError
	if !errors.As(err, &cycleErr) {
		return fmt.Errorf("expected a write cycle, got %v", err)
	}
	log.Printf("write to %s rejected, a=%d b=%d", cycleErr.Ref, a.Peek(), b.Peek())
	return nil
}
