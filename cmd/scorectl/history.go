package main

import (
	"encoding/json"

	"github.com/spf13/cobra"

	"github.com/ZanzyTHEbar/rx-fraud-scorer/internal/errors"
	"github.com/ZanzyTHEbar/rx-fraud-scorer/internal/history"
)

func newHistoryCmd(opts *globalOptions) *cobra.Command {
	var (
		limit   int
		patient string
		fraud   bool
	)

	cmd := &cobra.Command{
		Use:   "history",
		Short: "Print the prediction history, oldest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.load()
			if err != nil {
				return err
			}

			store, err := history.Open(cfg.History.Backend, cfg.History.Path)
			if err != nil {
				return errors.NewConfigurationError("failed to open prediction history", err)
			}
			defer errors.SafeClose(store, "history")

			entries, err := store.List(cmd.Context())
			if err != nil {
				return errors.NewInternalError("failed to read prediction history", err)
			}

			entries = filterEntries(entries, patient, fraud)
			if limit > 0 && len(entries) > limit {
				entries = entries[len(entries)-limit:]
			}

			enc := json.NewEncoder(cmd.OutOrStdout())
			for _, e := range entries {
				if err := enc.Encode(e); err != nil {
					return err
				}
			}
			return nil
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 0, "Only print the most recent n entries")
	cmd.Flags().StringVar(&patient, "patient", "", "Only print entries for this patient")
	cmd.Flags().BoolVar(&fraud, "fraud", false, "Only print entries flagged as fraud")
	return cmd
}

func filterEntries(entries []history.Entry, patient string, fraudOnly bool) []history.Entry {
	if patient == "" && !fraudOnly {
		return entries
	}
	out := entries[:0:0]
	for _, e := range entries {
		if patient != "" && e.PatientMed != patient {
			continue
		}
		if fraudOnly && !e.Fraud {
			continue
		}
		out = append(out, e)
	}
	return out
}
