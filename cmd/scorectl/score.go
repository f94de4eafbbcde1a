package main

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/ZanzyTHEbar/rx-fraud-scorer/internal/errors"
	"github.com/ZanzyTHEbar/rx-fraud-scorer/internal/history"
	"github.com/ZanzyTHEbar/rx-fraud-scorer/internal/scoring"
)

func newScoreCmd(opts *globalOptions) *cobra.Command {
	var (
		file   string
		record bool
	)

	cmd := &cobra.Command{
		Use:   "score",
		Short: "Score claims read as JSON from a file or stdin",
		Long: "Reads one claim object or an array of claims and writes one prediction per line. " +
			"With --record every prediction is appended to the configured history.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.load()
			if err != nil {
				return err
			}

			in := cmd.InOrStdin()
			if file != "" && file != "-" {
				f, err := os.Open(file)
				if err != nil {
					return errors.NewValidationError("cannot open claims file", err.Error())
				}
				defer f.Close()
				in = f
			}

			claims, err := readClaims(in)
			if err != nil {
				return err
			}

			sc, err := opts.train(cmd, cfg)
			if err != nil {
				return err
			}

			var store history.Store
			if record {
				store, err = history.Open(cfg.History.Backend, cfg.History.Path)
				if err != nil {
					return errors.NewConfigurationError("failed to open prediction history", err)
				}
				defer errors.SafeClose(store, "history")
			}

			return scoreClaims(cmd.Context(), sc, claims, store, cmd.OutOrStdout())
		},
	}

	cmd.Flags().StringVarP(&file, "file", "f", "", "JSON file with a claim or an array of claims (default stdin)")
	cmd.Flags().BoolVar(&record, "record", false, "Append predictions to the history log")
	return cmd
}

// readClaims accepts a single JSON object or an array of objects
func readClaims(r io.Reader) ([]scoring.ClaimRecord, error) {
	data, err := io.ReadAll(bufio.NewReader(r))
	if err != nil {
		return nil, errors.NewValidationError("cannot read claims", err.Error())
	}
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return nil, errors.NewValidationError("no claims on input")
	}

	var inputs []scoring.ClaimInput
	if data[0] == '[' {
		if err := json.Unmarshal(data, &inputs); err != nil {
			return nil, errors.NewValidationError("invalid claims array", err.Error())
		}
	} else {
		var input scoring.ClaimInput
		if err := json.Unmarshal(data, &input); err != nil {
			return nil, errors.NewValidationError("invalid claim", err.Error())
		}
		inputs = append(inputs, input)
	}

	claims := make([]scoring.ClaimRecord, 0, len(inputs))
	for i, input := range inputs {
		claim, err := input.Record()
		if err != nil {
			return nil, fmt.Errorf("claim %d: %w", i, err)
		}
		claims = append(claims, claim)
	}
	return claims, nil
}

// scoreClaims stops at the first invalid claim; earlier results are
// already written.
func scoreClaims(ctx context.Context, sc *scoring.ScoringContext, claims []scoring.ClaimRecord, store history.Store, out io.Writer) error {
	if ctx == nil {
		ctx = context.Background()
	}
	enc := json.NewEncoder(out)

	for i, claim := range claims {
		result, err := sc.Score(claim)
		if err != nil {
			return fmt.Errorf("claim %d: %w", i+1, err)
		}
		if store != nil {
			if err := store.Append(ctx, history.NewEntry(claim, result, time.Now().UTC())); err != nil {
				return errors.NewInternalError("failed to record prediction", err)
			}
		}
		if err := enc.Encode(result); err != nil {
			return err
		}
	}
	return nil
}
