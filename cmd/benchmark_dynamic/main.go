package main

import (
	"context"
	"fmt"
	"log"
	"math/rand"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/delaneyj/mimic/mimic"
	"github.com/dustin/go-humanize"
	"github.com/jamiealquiza/tachymeter"
	"github.com/olekukonko/tablewriter"
	"github.com/urfave/cli/v3"
)

const (
	seedKey      = "seed"
	repeatsKey   = "repeats"
	untrackedKey = "untracked-reruns"
)

func main() {
	cmd := &cli.Command{
		Name:  "benchmark_dynamic",
		Usage: "Drive layered graphs of refs whose effects read their sources conditionally",
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:  seedKey,
				Usage: "Seed choosing which nodes read dynamically",
				Value: 0,
			},
			&cli.IntFlag{
				Name:  repeatsKey,
				Usage: "Timed repeats per config, the best is reported",
				Value: 5,
			},
			&cli.BoolFlag{
				Name:  untrackedKey,
				Usage: "Re-run effects without tracking",
			},
		},
		Action: run,
	}
	if err := cmd.Run(context.Background(), os.Args); err != nil {
		log.Fatal(err)
	}
}

type testConfig struct {
	name           string  // friendly name for the test, should be unique
	width          int     // width of dependency graph to construct
	totalLayers    int     // depth of dependency graph to construct
	staticFraction float64 // fraction of nodes that always read all their sources
	nSources       int     // number of sources each node reads
	iterations     int     // number of source writes per run
}

var testConfigs = []testConfig{
	{name: "simple component", width: 10, totalLayers: 5, staticFraction: 1, nSources: 2, iterations: 20_000},
	{name: "dynamic component", width: 10, totalLayers: 6, staticFraction: 0.75, nSources: 3, iterations: 2_000},
	{name: "wide", width: 1_000, totalLayers: 3, staticFraction: 1, nSources: 2, iterations: 1_000},
	{name: "deep", width: 5, totalLayers: 100, staticFraction: 1, nSources: 1, iterations: 2_000},
	{name: "very dynamic", width: 100, totalLayers: 4, staticFraction: 0.5, nSources: 3, iterations: 500},
}

type result struct {
	duration time.Duration
	runs     int64
	digest   uint64
	calc     *tachymeter.Metrics
}

func run(ctx context.Context, cmd *cli.Command) error {
	log.Print("Starting dynamic graph benchmark, please wait...")
	defer log.Print("Finished dynamic graph benchmark")

	seed := cmd.Int(seedKey)
	repeats := int(cmd.Int(repeatsKey))
	if repeats < 1 {
		return fmt.Errorf("repeats must be positive, got %d", repeats)
	}
	var opts []mimic.Option
	if cmd.Bool(untrackedKey) {
		opts = append(opts, mimic.WithUntrackedReruns())
	}

	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{
		"test", "size", "nSources", "static%", "nTimes",
		"time", "p99 write", "runs", "updateRate", "digest",
	})

	for _, cfg := range testConfigs {
		log.Printf("Running '%s' config", cfg.name)

		var best *result
		for i := 0; i < repeats; i++ {
			log.Printf("Running '%s' config, iteration %d/%d %d%%", cfg.name, i+1, repeats, (i+1)*100/repeats)
			res, err := runOnce(cfg, seed, opts)
			if err != nil {
				return fmt.Errorf("%s: %w", cfg.name, err)
			}
			if best != nil && best.digest != res.digest {
				return fmt.Errorf("%s: digest changed between repeats: %x != %x", cfg.name, best.digest, res.digest)
			}
			if best == nil || res.duration < best.duration {
				best = res
			}
		}

		updateRate := float64(best.runs) / (float64(best.duration) / float64(time.Millisecond))
		table.Append([]string{
			cfg.name,
			fmt.Sprintf("%dx%d", cfg.width, cfg.totalLayers),
			strconv.Itoa(cfg.nSources),
			fmt.Sprint(cfg.staticFraction),
			humanize.Comma(int64(cfg.iterations)),
			fmt.Sprint(best.duration),
			fmt.Sprint(best.calc.Time.P99),
			humanize.Comma(best.runs),
			humanize.Comma(int64(updateRate)),
			strconv.FormatUint(best.digest, 16),
		})
	}
	table.Render()
	return nil
}

type graph struct {
	sources []*mimic.Ref[int]
	leaves  []*mimic.Ref[int]
}

// runOnce builds a fresh graph, then writes sources round robin and hashes
// every leaf after each write.
func runOnce(cfg testConfig, seed int64, opts []mimic.Option) (*result, error) {
	tc := mimic.CreateTrackingContext(opts...)
	runs := new(int64)
	g, err := makeGraph(tc, cfg, rand.New(rand.NewSource(seed)), runs)
	if err != nil {
		return nil, err
	}
	*runs = 0

	tach := tachymeter.New(&tachymeter.Config{Size: cfg.iterations})
	digest := xxhash.New()
	var buf [8]byte

	start := time.Now()
	for i := 0; i < cfg.iterations; i++ {
		sourceDex := i % len(g.sources)
		writeStart := time.Now()
		if err := g.sources[sourceDex].SetValue(i + sourceDex); err != nil {
			return nil, fmt.Errorf("write source %d: %w", sourceDex, err)
		}
		tach.AddTime(time.Since(writeStart))

		for _, leaf := range g.leaves {
			v := uint64(leaf.Peek())
			for b := range buf {
				buf[b] = byte(v >> (8 * b))
			}
			digest.Write(buf[:])
		}
	}

	return &result{
		duration: time.Since(start),
		runs:     *runs,
		digest:   digest.Sum64(),
		calc:     tach.Calc(),
	}, nil
}

func makeGraph(tc *mimic.TrackingContext, cfg testConfig, random *rand.Rand, runs *int64) (*graph, error) {
	sources := make([]*mimic.Ref[int], cfg.width)
	for i := range sources {
		sources[i] = mimic.NewRef(tc, i).Named("source" + strconv.Itoa(i))
	}

	prevRow := sources
	for l := 0; l < cfg.totalLayers-1; l++ {
		row, err := makeRow(tc, cfg, l, prevRow, random, runs)
		if err != nil {
			return nil, fmt.Errorf("layer %d: %w", l, err)
		}
		prevRow = row
	}
	return &graph{sources: sources, leaves: prevRow}, nil
}

// makeRow adds one ref per node, kept up to date by an effect summing the
// node's sources. Dynamic nodes skip one source depending on the first.
func makeRow(tc *mimic.TrackingContext, cfg testConfig, layer int, sources []*mimic.Ref[int], random *rand.Rand, runs *int64) ([]*mimic.Ref[int], error) {
	row := make([]*mimic.Ref[int], len(sources))

	for myDex := range sources {
		mySources := make([]*mimic.Ref[int], 0, cfg.nSources)
		for sourceDex := 0; sourceDex < cfg.nSources; sourceDex++ {
			mySources = append(mySources, sources[(myDex+sourceDex)%len(sources)])
		}

		node := mimic.NewRef(tc, 0).Named(nodeName(layer, myDex))
		row[myDex] = node

		var fn mimic.ErrFn
		if random.Float64() < cfg.staticFraction {
			fn = func() error {
				*runs++
				sum := 0
				for _, source := range mySources {
					sum += source.Value()
				}
				return node.SetValue(sum)
			}
		} else {
			first, tail := mySources[0], mySources[1:]
			fn = func() error {
				*runs++
				sum := first.Value()
				if len(tail) > 0 {
					shouldDrop := sum&0x1 > 0
					dropDex := sum % len(tail)
					for i := range tail {
						if shouldDrop && i == dropDex {
							continue
						}
						sum += tail[i].Value()
					}
				}
				return node.SetValue(sum)
			}
		}

		if _, err := mimic.WatchEffect(tc, fn); err != nil {
			return nil, err
		}
	}

	return row, nil
}

func nodeName(layer, dex int) string {
	var sb strings.Builder
	sb.WriteString("node")
	sb.WriteString(strconv.Itoa(layer))
	sb.WriteByte('.')
	sb.WriteString(strconv.Itoa(dex))
	return sb.String()
}
