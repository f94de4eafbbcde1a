package main

import (
	"github.com/spf13/cobra"

	"github.com/ZanzyTHEbar/rx-fraud-scorer/internal/config"
	"github.com/ZanzyTHEbar/rx-fraud-scorer/internal/dataset"
	"github.com/ZanzyTHEbar/rx-fraud-scorer/internal/monitoring"
	"github.com/ZanzyTHEbar/rx-fraud-scorer/internal/scoring"
)

// globalOptions are the persistent flags shared by every subcommand
type globalOptions struct {
	configFile     string
	dataPath       string
	historyBackend string
	historyPath    string
	logLevel       string
}

func newRootCmd() *cobra.Command {
	opts := &globalOptions{}

	cmd := &cobra.Command{
		Use:           "scorectl",
		Short:         "Offline claim scoring and history tools",
		Long:          "Trains the claim anomaly models from a dataset and scores, summarizes or converts claims without running the HTTP service.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	pf := cmd.PersistentFlags()
	pf.StringVar(&opts.configFile, "config", "", "YAML config file (defaults to CONFIG_FILE or configs/config.yaml)")
	pf.StringVar(&opts.dataPath, "data", "", "Training dataset (.csv or .parquet), overrides data.path")
	pf.StringVar(&opts.historyBackend, "history-backend", "", "History backend: csv or sqlite, overrides history.backend")
	pf.StringVar(&opts.historyPath, "history-path", "", "History file, overrides history.path")
	pf.StringVar(&opts.logLevel, "log-level", "warn", "Log level: debug, info, warn or error")

	cmd.AddCommand(
		newScoreCmd(opts),
		newSummaryCmd(opts),
		newHistoryCmd(opts),
		newConvertCmd(opts),
	)
	return cmd
}

// load resolves the configuration with the flag overrides applied
func (o *globalOptions) load() (*config.Config, error) {
	var (
		cfg *config.Config
		err error
	)
	if o.configFile != "" {
		cfg, err = config.LoadFile(o.configFile)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return nil, err
	}

	if o.dataPath != "" {
		cfg.Data.Path = o.dataPath
	}
	if o.historyBackend != "" {
		cfg.History.Backend = o.historyBackend
	}
	if o.historyPath != "" {
		cfg.History.Path = o.historyPath
	}
	return cfg, cfg.Validate()
}

// train loads the dataset and fits every model. Logs go to the command's
// stderr so stdout stays machine readable.
func (o *globalOptions) train(cmd *cobra.Command, cfg *config.Config) (*scoring.ScoringContext, error) {
	logger := monitoring.NewLoggerWithWriter(cmd.ErrOrStderr(), o.logLevel)

	records, err := dataset.Load(cfg.Data.Path)
	if err != nil {
		return nil, err
	}

	scoringOpts := cfg.ScoringOptions()
	scoringOpts.OnExtend = logger.VocabularyLogger
	return scoring.NewScoringContext(records, scoringOpts)
}
