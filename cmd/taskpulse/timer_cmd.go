package main

import (
	"errors"
	"time"

	"github.com/spf13/cobra"

	"github.com/iota-uz/taskpulse/modules/taskanalytics/domain/timer"
	"github.com/iota-uz/taskpulse/modules/taskanalytics/services"
)

type intervalLine struct {
	ID        int64      `json:"id"`
	TaskID    int64      `json:"task_id"`
	UserID    int64      `json:"user_id"`
	StartTime time.Time  `json:"start_time"`
	EndTime   *time.Time `json:"end_time"`
}

func newTimerCmd(g *globalFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "timer",
		Short: "Start, stop or check the viewer's timer on a task",
	}
	cmd.AddCommand(newTimerActionCmd(g, "start", "Start a timer; refused while one is already running", func(cmd *cobra.Command, e *services.Engine, taskID int64) error {
		iv, err := e.StartTimer(cmd.Context(), taskID)
		if err != nil {
			return serviceExitCode(err)
		}
		return writeJSONLine(cmd.OutOrStdout(), toIntervalLine(iv))
	}))
	cmd.AddCommand(newTimerActionCmd(g, "stop", "Stop the running timer", func(cmd *cobra.Command, e *services.Engine, taskID int64) error {
		iv, err := e.StopTimer(cmd.Context(), taskID)
		if err != nil {
			return serviceExitCode(err)
		}
		return writeJSONLine(cmd.OutOrStdout(), toIntervalLine(iv))
	}))
	cmd.AddCommand(newTimerActionCmd(g, "can-start", "Report whether a timer may be started", func(cmd *cobra.Command, e *services.Engine, taskID int64) error {
		return writeJSONLine(cmd.OutOrStdout(), map[string]any{
			"task_id":   taskID,
			"viewer_id": e.ViewerID(),
			"can_start": e.CanStartTimer(taskID, e.ViewerID()),
		})
	}))
	return cmd
}

func newTimerActionCmd(g *globalFlags, use, short string, run func(*cobra.Command, *services.Engine, int64) error) *cobra.Command {
	var taskID int64
	cmd := &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if taskID <= 0 {
				return withCode(exitConfig, errors.New("--task is required"))
			}
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
			return run(cmd, engine, taskID)
		},
	}
	cmd.Flags().Int64Var(&taskID, "task", 0, "task id")
	return cmd
}

func toIntervalLine(iv timer.Interval) intervalLine {
	return intervalLine{ID: iv.ID, TaskID: iv.TaskID, UserID: iv.UserID, StartTime: iv.StartTime, EndTime: iv.EndTime}
}
