package main

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/quickanswer/internal/answer"
)

var (
	batchFile        string
	batchConcurrency int
)

var batchCmd = &cobra.Command{
	Use:   "batch",
	Short: "Answer one query per line and emit JSON lines",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		queries, err := readQueries(batchFile, cmd.InOrStdin())
		if err != nil {
			return err
		}

		svc, err := answer.Build(cfg)
		if err != nil {
			return err
		}
		defer func() { _ = svc.Close() }()

		concurrency := batchConcurrency
		if concurrency <= 0 {
			concurrency = cfg.Batch.Concurrency
		}
		_, err = processBatch(ctx, svc, queries, concurrency, cmd.OutOrStdout())
		return err
	},
}

func init() {
	batchCmd.Flags().StringVar(&batchFile, "file", "-", "file with one query per line (- for stdin)")
	batchCmd.Flags().IntVar(&batchConcurrency, "concurrency", 0, "queries in flight (default from config)")
	rootCmd.AddCommand(batchCmd)
}

// readQueries returns the non-blank lines of path, skipping # comments.
func readQueries(path string, stdin io.Reader) ([]string, error) {
	r := stdin
	if path != "-" && path != "" {
		f, err := os.Open(path)
		if err != nil {
			return nil, eris.Wrapf(err, "batch: open %s", path)
		}
		defer func() { _ = f.Close() }()
		r = f
	}

	var queries []string
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		queries = append(queries, line)
	}
	if err := sc.Err(); err != nil {
		return nil, eris.Wrap(err, "batch: read queries")
	}
	return queries, nil
}

// batchLine is emitted for a query that could not be run at all.
type batchLine struct {
	Query string `json:"query"`
	Error string `json:"error"`
}

type batchSummary struct {
	Answered   int
	Unanswered int
	Failed     int
}

// processBatch answers queries with at most concurrency sessions in flight and
// writes one JSON line per query in completion order. A failed query does not
// stop the batch.
func processBatch(ctx context.Context, svc asker, queries []string, concurrency int, w io.Writer) (batchSummary, error) {
	var sum batchSummary
	if len(queries) == 0 {
		zap.L().Info("batch: no queries")
		return sum, nil
	}

	zap.L().Info("batch: processing",
		zap.Int("queries", len(queries)),
		zap.Int("concurrency", concurrency),
	)

	var mu sync.Mutex
	enc := json.NewEncoder(w)
	emit := func(v any) error {
		mu.Lock()
		defer mu.Unlock()
		return enc.Encode(v)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)

	for _, q := range queries {
		g.Go(func() error {
			res, err := svc.Ask(gctx, q)
			if err != nil {
				zap.L().Warn("batch: query failed", zap.String("query", q), zap.Error(err))
				mu.Lock()
				sum.Failed++
				mu.Unlock()
				return emit(batchLine{Query: q, Error: err.Error()})
			}
			mu.Lock()
			if res.Success {
				sum.Answered++
			} else {
				sum.Unanswered++
			}
			mu.Unlock()
			return emit(res)
		})
	}

	if err := g.Wait(); err != nil {
		return sum, eris.Wrap(err, "batch: write result")
	}

	zap.L().Info("batch: complete",
		zap.Int("answered", sum.Answered),
		zap.Int("unanswered", sum.Unanswered),
		zap.Int("failed", sum.Failed),
	)
	return sum, nil
}
