package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/technocodist/aitcsm/internal/simrunner"
)

func enginesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "engines",
		Short: "Lists the available engines and their parameters",
		RunE: func(cmd *cobra.Command, _ []string) error {
			registry := simrunner.DefaultRegistry()
			for _, name := range registry.Names() {
				engine, err := registry.Get(name)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\n", name, strings.Join(engine.Parameters(), ", "))
			}
			return nil
		},
	}
	return cmd
}
