package main

import (
	"context"
	"encoding/json"
	"io"
	"os/signal"
	"strings"
	"syscall"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/quickanswer/internal/answer"
	"github.com/sells-group/quickanswer/internal/model"
)

// asker is the part of answer.Service the commands use.
type asker interface {
	Ask(ctx context.Context, raw string) (model.Result, error)
	Health() map[string]string
}

var _ asker = (*answer.Service)(nil)

var askCmd = &cobra.Command{
	Use:   "ask <query>",
	Short: "Answer a single query and print the result as JSON",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		svc, err := answer.Build(cfg)
		if err != nil {
			return err
		}
		defer func() { _ = svc.Close() }()

		return runAsk(ctx, svc, strings.Join(args, " "), cmd.OutOrStdout())
	},
}

func init() {
	rootCmd.AddCommand(askCmd)
}

// runAsk writes the Result for query to w. A result without an answer is
// still printed and is not an error.
func runAsk(ctx context.Context, svc asker, query string, w io.Writer) error {
	res, err := svc.Ask(ctx, query)
	if err != nil {
		return err
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(res); err != nil {
		return eris.Wrap(err, "ask: encode result")
	}
	return nil
}
