package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ZanzyTHEbar/rx-fraud-scorer/internal/scoring"
)

func newSummaryCmd(opts *globalOptions) *cobra.Command {
	var out string

	cmd := &cobra.Command{
		Use:   "summary",
		Short: "Train on the dataset and print the model summary",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.load()
			if err != nil {
				return err
			}
			sc, err := opts.train(cmd, cfg)
			if err != nil {
				return err
			}

			summary := sc.Summary()
			if out != "" {
				if err := scoring.SaveSummary(out, summary); err != nil {
					return err
				}
				fmt.Fprintf(cmd.ErrOrStderr(), "wrote summary to %s\n", out)
			}

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(summary)
		},
	}

	cmd.Flags().StringVarP(&out, "out", "o", "", "Also save the summary as JSON to this file")
	return cmd
}
