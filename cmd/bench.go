// bench.go - Streaming-Benchmark Command
// Hauptfunktionen: newBenchCmd, BenchHandler
//
// Misst Latenz pro Token und Speicherbedarf des Attention-Sink-Caches
// ueber Generierungslaeufe, die die trainierte Kontextlaenge weit
// ueberschreiten koennen.
package cmd

import (
	"fmt"
	"os"
	"slices"
	"time"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
	"golang.org/x/term"
	"gonum.org/v1/gonum/stat"

	"github.com/streamkv/streamkv/envconfig"
	"github.com/streamkv/streamkv/kvcache"
	"github.com/streamkv/streamkv/ml"
	"github.com/streamkv/streamkv/model"
	"github.com/streamkv/streamkv/runner"
)

type benchOptions struct {
	arch     string
	layers   int
	heads    int
	kvHeads  int
	headDim  int
	batch    int
	sink     int
	window   int
	tokens   int
	parallel int
	cacheTyp string
	seed     uint64
}

type benchResult struct {
	session   string
	latencies []float64
	cacheLen  int
	seen      int
	kvBytes   int64
}

func newBenchCmd() *cobra.Command {
	var opts benchOptions

	cmd := &cobra.Command{
		Use:   "bench",
		Short: "Benchmark streaming generation against the attention sink cache",
		RunE: func(cmd *cobra.Command, args []string) error {
			return BenchHandler(opts)
		},
	}

	cmd.Flags().StringVar(&opts.arch, "arch", "llama", "Architecture preset (llama, falcon, mpt, gptneox)")
	cmd.Flags().IntVar(&opts.layers, "layers", 8, "Number of transformer layers")
	cmd.Flags().IntVar(&opts.heads, "heads", 8, "Number of query heads")
	cmd.Flags().IntVar(&opts.kvHeads, "kv-heads", 0, "Number of kv heads (0 = same as --heads, falcon forces 1)")
	cmd.Flags().IntVar(&opts.headDim, "head-dim", 64, "Per-head feature dimension")
	cmd.Flags().IntVar(&opts.batch, "batch", 1, "Batch size (beams)")
	cmd.Flags().IntVar(&opts.sink, "sink", int(envconfig.SinkTokens()), "Attention sink size")
	cmd.Flags().IntVar(&opts.window, "window", int(envconfig.WindowTokens()), "Sliding window size")
	cmd.Flags().IntVar(&opts.tokens, "tokens", 4096, "Tokens to generate per session")
	cmd.Flags().IntVar(&opts.parallel, "parallel", int(envconfig.NumParallel()), "Concurrent sessions")
	cmd.Flags().StringVar(&opts.cacheTyp, "type", envconfig.KvCacheType(), "KV cache storage type (f16, f32)")
	cmd.Flags().Uint64Var(&opts.seed, "seed", 1, "Seed for the synthetic decoder")

	return cmd
}

// BenchHandler - Fuehrt den Streaming-Benchmark aus
func BenchHandler(opts benchOptions) error {
	if opts.kvHeads == 0 {
		opts.kvHeads = opts.heads
		if opts.arch == "falcon" {
			opts.kvHeads = 1
		}
	}

	layout, err := model.LayoutFor(opts.arch, opts.heads, opts.kvHeads, opts.headDim)
	if err != nil {
		return err
	}

	dtype, err := ml.ParseDType(opts.cacheTyp)
	if err != nil {
		return err
	}

	if opts.tokens <= 0 || opts.parallel <= 0 {
		return fmt.Errorf("tokens and parallel must be positive")
	}

	interactive := term.IsTerminal(int(os.Stderr.Fd()))

	results := make([]benchResult, opts.parallel)

	var g errgroup.Group
	for i := range opts.parallel {
		g.Go(func() error {
			cache, err := kvcache.NewAttentionSinkCache(opts.sink, opts.window, opts.layers, layout, dtype)
			if err != nil {
				return err
			}

			decoder := runner.NewSyntheticDecoder(layout, opts.layers, opts.batch, opts.seed+uint64(i))
			session := runner.NewSession(cache, decoder)

			latencies := make([]float64, 0, opts.tokens)
			for range opts.tokens {
				start := time.Now()
				if _, err := session.Step(); err != nil {
					return err
				}

				latencies = append(latencies, float64(time.Since(start).Microseconds()))
			}

			var bytesPerElem int64 = 4
			if dtype == ml.DTypeF16 {
				bytesPerElem = 2
			}

			results[i] = benchResult{
				session:   session.ID(),
				latencies: latencies,
				cacheLen:  cache.Len(),
				seen:      cache.SeenTokens(),
				kvBytes:   2 * int64(opts.layers) * int64(opts.batch) * int64(opts.kvHeads) * int64(cache.Len()) * int64(opts.headDim) * bytesPerElem,
			}

			if interactive {
				fmt.Fprintf(os.Stderr, "session %s: %d tokens done\n", session.ID()[:8], opts.tokens)
			}

			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return err
	}

	var data [][]string
	for _, r := range results {
		sorted := slices.Clone(r.latencies)
		slices.Sort(sorted)

		data = append(data, []string{
			r.session[:8],
			fmt.Sprintf("%d", r.seen),
			fmt.Sprintf("%d", r.cacheLen),
			humanBytes(r.kvBytes),
			fmt.Sprintf("%.1fµs", stat.Mean(r.latencies, nil)),
			fmt.Sprintf("%.1fµs", stat.Quantile(0.95, stat.Empirical, sorted, nil)),
			fmt.Sprintf("%.1fµs", stat.StdDev(r.latencies, nil)),
		})
	}

	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"SESSION", "TOKENS", "CACHE", "KV MEM", "MEAN", "P95", "STDDEV"})
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetHeaderLine(false)
	table.SetBorder(false)
	table.SetNoWhiteSpace(true)
	table.SetTablePadding("    ")
	table.AppendBulk(data)
	table.Render()

	return nil
}

func humanBytes(b int64) string {
	switch {
	case b >= 1<<30:
		return fmt.Sprintf("%.1f GiB", float64(b)/(1<<30))
	case b >= 1<<20:
		return fmt.Sprintf("%.1f MiB", float64(b)/(1<<20))
	case b >= 1<<10:
		return fmt.Sprintf("%.1f KiB", float64(b)/(1<<10))
	default:
		return fmt.Sprintf("%d B", b)
	}
}
