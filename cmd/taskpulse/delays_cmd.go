package main

import (
	"github.com/spf13/cobra"

	"github.com/iota-uz/taskpulse/modules/taskanalytics/presentation/mappers"
)

func newDelaysCmd(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "delays",
		Short: "List overdue tasks as JSON lines, most overdue first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := openRuntime(g)
			if err != nil {
				return err
			}
			defer rt.close()

			engine, err := rt.loadedEngine(cmd.Context(), nil)
			if err != nil {
				return err
			}
			defer engine.Close()

			now := rt.now()
			for _, d := range engine.DelayedTasks() {
				if err := writeJSONLine(cmd.OutOrStdout(), mappers.TaskToViewModel(d.Task, now)); err != nil {
					return err
				}
			}
			return nil
		},
	}
}
