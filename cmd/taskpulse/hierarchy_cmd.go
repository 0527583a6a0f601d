package main

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/iota-uz/taskpulse/modules/taskanalytics/presentation/mappers"
	"github.com/iota-uz/taskpulse/modules/taskanalytics/presentation/viewmodels"
)

func newHierarchyCmd(g *globalFlags) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "hierarchy",
		Short: "Print the manager hierarchy with per-manager task rollups",
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

			nodes := mappers.ManagerNodesToViewModels(engine.GetHierarchy(), rt.now())
			if asJSON {
				return writeJSONLine(cmd.OutOrStdout(), nodes)
			}
			return printHierarchy(cmd.OutOrStdout(), nodes)
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the hierarchy as a single JSON document")
	return cmd
}

func printHierarchy(w io.Writer, nodes []viewmodels.ManagerNode) error {
	for _, n := range nodes {
		s := n.Stats
		if _, err := fmt.Fprintf(w, "%s %s  total=%d pending=%d completed=%d delayed=%d performance=%d%%\n",
			n.Manager.EmpID, n.Manager.Name, s.Total, s.Pending, s.Completed, s.Delayed, s.Performance); err != nil {
			return err
		}
		for _, e := range n.Employees {
			if _, err := fmt.Fprintf(w, "  %s %s (%s)\n", e.EmpID, e.Name, e.Role); err != nil {
				return err
			}
		}
	}
	return nil
}
