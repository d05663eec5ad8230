package simrunner

import (
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"

	"github.com/technocodist/aitcsm/internal/common/simcontext"
	"github.com/technocodist/aitcsm/internal/common/util"
	"github.com/technocodist/aitcsm/internal/pipeline"
	"github.com/technocodist/aitcsm/internal/pipeline/metrics"
	"github.com/technocodist/aitcsm/internal/simrunner/configuration"
)

// Run reads the configured inputs, runs them with the built-in engines and stores the snapshots in the
// configured sinks.
func Run(ctx *simcontext.Context, config configuration.SimRunnerConfig) (pipeline.Summary, error) {
	return RunWith(ctx, config, DefaultRegistry(), prometheus.DefaultRegisterer)
}

// RunWith is Run with an explicit engine registry and metrics registerer.
func RunWith(
	ctx *simcontext.Context,
	config configuration.SimRunnerConfig,
	registry *Registry,
	registerer prometheus.Registerer,
) (pipeline.Summary, error) {
	files, filePaths, err := InputFilesFromPatterns(config.Inputs)
	if err != nil {
		return pipeline.Summary{}, err
	}
	submission, err := NewSubmission(files, filePaths, config.Engine)
	if err != nil {
		return pipeline.Summary{}, err
	}
	engine, err := registry.Get(submission.Engine)
	if err != nil {
		return pipeline.Summary{}, err
	}

	runID := util.NewULID()
	ctx = simcontext.WithLogFields(ctx, logrus.Fields{"run": runID, "engine": engine.Name()})
	ctx.Log.Infof("Read %d tasks from %d input files", len(submission.Tasks), len(submission.Files))

	s, closeSink, err := NewSink(ctx, config.Sink, runID)
	if err != nil {
		return pipeline.Summary{}, err
	}
	defer func() {
		if err := closeSink(); err != nil {
			ctx.Log.WithError(err).Warn("Failed to close sink")
		}
	}()

	summary, err := engine.Run(ctx, submission.Tasks, RunOptions{
		RunID:   runID,
		Config:  config.Pipeline,
		Sink:    s,
		Metrics: metrics.NewMetrics(metrics.SimRunnerMetricsPrefix, registerer),
	})
	if err != nil {
		return summary, errors.WithMessagef(err, "run %s failed", runID)
	}
	if ctx.Err() != nil {
		ctx.Log.Warnf("Run was cancelled after %d snapshots; everything drained has been stored", summary.Snapshots)
	}
	return summary, nil
}
