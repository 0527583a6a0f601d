package main

import (
	"errors"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/iota-uz/taskpulse/modules/taskanalytics/domain/events"
	"github.com/iota-uz/taskpulse/modules/taskanalytics/presentation/controllers"
	"github.com/iota-uz/taskpulse/modules/taskanalytics/presentation/mappers"
	"github.com/iota-uz/taskpulse/modules/taskanalytics/presentation/viewmodels"
	"github.com/iota-uz/taskpulse/modules/taskanalytics/services"
	"github.com/iota-uz/taskpulse/pkg/eventbus"
)

func newWatchCmd(g *globalFlags) *cobra.Command {
	var (
		taskIDs []int64
		count   int
	)
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Poll live durations of the given tasks and print them as JSON lines",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(taskIDs) == 0 {
				return withCode(exitConfig, errors.New("--task is required"))
			}
			rt, err := openRuntime(g)
			if err != nil {
				return err
			}
			defer rt.close()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			bus := eventbus.NewEventPublisher(rt.logger)
			engine, err := rt.loadedEngine(ctx, bus)
			if err != nil {
				return err
			}
			defer engine.Close()

			var (
				mu       sync.Mutex
				refreshes int
				done     = make(chan struct{})
				once     sync.Once
			)
			finish := func() { once.Do(func() { close(done) }) }
			emit := func(msg viewmodels.StreamMessage) {
				mu.Lock()
				defer mu.Unlock()
				if err := writeJSONLine(cmd.OutOrStdout(), msg); err != nil {
					rt.logger.WithError(err).Error("watch: write failed")
				}
			}

			bus.Subscribe(func(e *events.DurationsRefreshedEvent) {
				entries := make([]viewmodels.Duration, 0, len(e.Entries))
				for _, s := range e.Entries {
					entries = append(entries, mappers.SnapshotToViewModel(s))
				}
				emit(viewmodels.StreamMessage{Type: controllers.MessageDurations, Seq: e.Seq, Entries: entries})

				mu.Lock()
				refreshes++
				reached := count > 0 && refreshes >= count
				mu.Unlock()
				if reached {
					finish()
				}
			})
			bus.Subscribe(func(e *events.DurationPurgedEvent) {
				emit(viewmodels.StreamMessage{Type: controllers.MessagePurged, TaskID: e.TaskID, Reason: e.Reason})
			})
			bus.Subscribe(func(e *events.SchedulerStateChangedEvent) {
				if e.To == string(services.StateIdle) {
					finish()
				}
			})

			engine.SetVisibleIDs(taskIDs)
			engine.Start(ctx)
			if engine.Scheduler().State() == services.StateIdle {
				return errors.New("nothing to watch: every task is completed")
			}

			select {
			case <-ctx.Done():
			case <-done:
			}
			return nil
		},
	}
	cmd.Flags().Int64SliceVar(&taskIDs, "task", nil, "task ids to watch (repeatable or comma separated)")
	cmd.Flags().IntVar(&count, "count", 0, "stop after this many refreshes (0 runs until interrupted)")
	return cmd
}
