package cmd

import (
	"github.com/spf13/cobra"

	"github.com/technocodist/aitcsm/internal/common"
	"github.com/technocodist/aitcsm/internal/common/app"
	"github.com/technocodist/aitcsm/internal/simrunner"
	"github.com/technocodist/aitcsm/internal/simrunner/configuration"
)

func runCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Runs every task in the configured input files",
		RunE:  runSimulations,
	}
	cmd.Flags().StringSlice("inputs", nil, "Glob patterns of input files, overriding the configured inputs")
	cmd.Flags().Int("parallelism", 0, "Maximum number of tasks running at once, overriding the configured value")
	cmd.Flags().String("engine", "", "Engine for input files that do not name one")
	cmd.Flags().Bool("dry-run", false, "Keep snapshots in memory instead of the configured sinks")
	return cmd
}

func runSimulations(cmd *cobra.Command, _ []string) error {
	config, err := loadConfig()
	if err != nil {
		return err
	}
	if err := applyRunFlags(cmd, &config); err != nil {
		return err
	}

	if config.MetricsPort > 0 {
		shutdownMetricServer := common.ServeMetrics(config.MetricsPort)
		defer shutdownMetricServer()
	}

	ctx := app.CreateContextWithShutdown()
	summary, err := simrunner.Run(ctx, config)
	if err != nil {
		return err
	}
	ctx.Log.Infof("Stored %d snapshots in %d batches for run %s", summary.Snapshots, summary.Batches, summary.RunID)
	return nil
}

func applyRunFlags(cmd *cobra.Command, config *configuration.SimRunnerConfig) error {
	inputs, err := cmd.Flags().GetStringSlice("inputs")
	if err != nil {
		return err
	}
	if len(inputs) > 0 {
		config.Inputs = inputs
	}
	parallelism, err := cmd.Flags().GetInt("parallelism")
	if err != nil {
		return err
	}
	if parallelism > 0 {
		config.Pipeline.DegreeOfParallelism = parallelism
	}
	engine, err := cmd.Flags().GetString("engine")
	if err != nil {
		return err
	}
	if engine != "" {
		config.Engine = engine
	}
	dryRun, err := cmd.Flags().GetBool("dry-run")
	if err != nil {
		return err
	}
	if dryRun {
		config.Sink.Types = []configuration.SinkType{configuration.SinkMemory}
	}
	return nil
}
