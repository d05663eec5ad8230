package cmd

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/technocodist/aitcsm/internal/pipeline"
	"github.com/technocodist/aitcsm/internal/simrunner/configuration"
)

func TestEnginesCmd(t *testing.T) {
	root := RootCmd()
	out := &bytes.Buffer{}
	root.SetOut(out)
	root.SetArgs([]string{"engines"})
	require.NoError(t, root.Execute())

	assert.Equal(t,
		"drag\tdragCoefficient, gravity, initialHeight, initialVelocity, mass, resultPerSteps, steps, timeStep, trajectory, velocityPower\n"+
			"freefall\tgravity, initialHeight, initialVelocity, mass, resultPerSteps, steps, timeStep, trajectory\n"+
			"saving\tagents, initialMoney, iterations, lambda, resultPerSteps\n"+
			"wealth\tagents, initialMoney, iterations, resultPerSteps\n",
		out.String())
}

func TestApplyRunFlags(t *testing.T) {
	cmd := runCmd()
	require.NoError(t, cmd.ParseFlags([]string{"--inputs", "a/*.yaml,b/*.yaml", "--parallelism", "3", "--engine", "drag", "--dry-run"}))

	config := configuration.SimRunnerConfig{
		Inputs:   []string{"config/*.yaml"},
		Pipeline: pipeline.DefaultConfig(),
		Sink:     configuration.SinkConfig{Types: []configuration.SinkType{configuration.SinkSQLite}},
	}
	require.NoError(t, applyRunFlags(cmd, &config))
	assert.Equal(t, []string{"a/*.yaml", "b/*.yaml"}, config.Inputs)
	assert.Equal(t, 3, config.Pipeline.DegreeOfParallelism)
	assert.Equal(t, "drag", config.Engine)
	assert.Equal(t, []configuration.SinkType{configuration.SinkMemory}, config.Sink.Types)
}

func TestApplyRunFlags_Defaults(t *testing.T) {
	cmd := runCmd()
	require.NoError(t, cmd.ParseFlags(nil))
	config := configuration.SimRunnerConfig{Inputs: []string{"config/*.yaml"}, Engine: "wealth"}
	config.Pipeline.DegreeOfParallelism = 5
	require.NoError(t, applyRunFlags(cmd, &config))
	assert.Equal(t, []string{"config/*.yaml"}, config.Inputs)
	assert.Equal(t, 5, config.Pipeline.DegreeOfParallelism)
	assert.Equal(t, "wealth", config.Engine)
}
