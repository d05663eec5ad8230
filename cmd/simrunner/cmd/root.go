package cmd

import (
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/technocodist/aitcsm/internal/common"
	commonconfig "github.com/technocodist/aitcsm/internal/common/config"
	"github.com/technocodist/aitcsm/internal/common/logging"
	"github.com/technocodist/aitcsm/internal/simrunner/configuration"
)

const (
	CustomConfigLocation string = "config"
	defaultConfigPath    string = "./config/simrunner"
	envPrefix            string = "SIMRUNNER"
)

func RootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:          "simrunner",
		SilenceUsage: true,
		Short:        "Runs batches of seeded simulations and stores their snapshots",
	}

	cmd.PersistentFlags().StringSlice(
		CustomConfigLocation,
		[]string{},
		"Fully qualified path to application configuration file (for multiple config files repeat this arg or separate paths with commas)")
	_ = viper.BindPFlag(CustomConfigLocation, cmd.PersistentFlags().Lookup(CustomConfigLocation))

	cmd.AddCommand(
		runCmd(),
		enginesCmd(),
		decodeCmd(),
	)

	return cmd
}

func loadConfig() (configuration.SimRunnerConfig, error) {
	var config configuration.SimRunnerConfig
	userSpecifiedConfigs := viper.GetStringSlice(CustomConfigLocation)

	if _, err := common.LoadConfig(&config, defaultConfigPath, userSpecifiedConfigs, envPrefix); err != nil {
		return config, err
	}
	if err := logging.Apply(config.Logging); err != nil {
		return config, err
	}
	err := config.Validate()
	if err != nil {
		commonconfig.LogValidationErrors(err)
	}
	return config, err
}
