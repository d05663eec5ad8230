package cmd

import (
	"github.com/spf13/cobra"

	"github.com/technocodist/aitcsm/internal/common/logging"
	"github.com/technocodist/aitcsm/internal/common/simcontext"
	"github.com/technocodist/aitcsm/internal/simrunner"
)

func decodeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "decode",
		Short: "Prints stored snapshots with their series decoded",
		RunE:  decodeSnapshots,
	}
	cmd.Flags().String("sqlite", "", "Path of a sqlite database written by the sqlite sink")
	cmd.Flags().String("run", "", "Run to print from the sqlite database, defaults to the most recent")
	cmd.Flags().String("file", "", "Path of a file written by the file sink")
	return cmd
}

func decodeSnapshots(cmd *cobra.Command, _ []string) error {
	logging.ConfigureCommandLineLogging()
	var source simrunner.DecodeSource
	var err error
	if source.SQLitePath, err = cmd.Flags().GetString("sqlite"); err != nil {
		return err
	}
	if source.RunID, err = cmd.Flags().GetString("run"); err != nil {
		return err
	}
	if source.File, err = cmd.Flags().GetString("file"); err != nil {
		return err
	}

	ctx := simcontext.Background()
	n, err := simrunner.Decode(ctx, source, cmd.OutOrStdout())
	if err != nil {
		return err
	}
	ctx.Log.Debugf("Decoded %d snapshots", n)
	return nil
}
