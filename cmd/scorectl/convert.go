package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ZanzyTHEbar/rx-fraud-scorer/internal/dataset"
	"github.com/ZanzyTHEbar/rx-fraud-scorer/internal/errors"
)

func newConvertCmd(_ *globalOptions) *cobra.Command {
	var in, out string

	cmd := &cobra.Command{
		Use:   "convert",
		Short: "Convert a training dataset to Parquet",
		Long:  "Reads a CSV or Parquet training dataset, checks every row and writes it as Parquet.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			format, err := dataset.DetectFormat(out)
			if err != nil || format != dataset.FormatParquet {
				return errors.NewValidationError("output must be a .parquet file", out)
			}

			records, err := dataset.Load(in)
			if err != nil {
				return err
			}
			if err := dataset.WriteParquet(out, records); err != nil {
				return errors.NewInternalError("failed to write parquet dataset", err)
			}

			fmt.Fprintf(cmd.OutOrStdout(), "wrote %d rows to %s\n", len(records), out)
			return nil
		},
	}

	cmd.Flags().StringVar(&in, "in", "", "Source dataset (.csv or .parquet)")
	cmd.Flags().StringVar(&out, "out", "", "Destination .parquet file")
	_ = cmd.MarkFlagRequired("in")
	_ = cmd.MarkFlagRequired("out")
	return cmd
}
