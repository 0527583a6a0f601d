package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"slices"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/iota-uz/taskpulse/modules/taskanalytics/presentation/controllers"
	"github.com/iota-uz/taskpulse/pkg/eventbus"
	"github.com/iota-uz/taskpulse/pkg/httpapi"
	"github.com/iota-uz/taskpulse/pkg/logging"
	"github.com/iota-uz/taskpulse/pkg/metrics"
	"github.com/iota-uz/taskpulse/pkg/middleware"
	"github.com/iota-uz/taskpulse/pkg/server"
	"github.com/iota-uz/taskpulse/pkg/ws"
)

func newServeCmd(g *globalFlags) *cobra.Command {
	var refresh time.Duration
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the analytics HTTP API and the live duration websocket",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := openRuntime(g)
			if err != nil {
				return err
			}
			defer rt.close()
			conf, logger := rt.conf, rt.logger

			if conf.OpenTelemetry.Enabled {
				cleanup := logging.SetupTracing(cmd.Context(), conf.OpenTelemetry.ServiceName, conf.OpenTelemetry.TempoURL)
				defer cleanup()
				logger.Info("OpenTelemetry tracing enabled, exporting to Tempo at " + conf.OpenTelemetry.TempoURL)
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			bus := eventbus.NewEventPublisher(logger)
			engine, err := rt.loadedEngine(ctx, bus)
			if err != nil {
				return err
			}
			engine.Start(ctx)
			defer engine.Close()

			origins := conf.AllowedOrigins()
			hub := ws.NewHub(&ws.HubOptions{
				Logger: logger.WithField("component", "ws"),
				CheckOrigin: func(r *http.Request) bool {
					origin := r.Header.Get("Origin")
					return origin == "" || slices.Contains(origins, origin)
				},
			})
			defer hub.Close()

			stream := controllers.NewDurationStream(hub, logger.WithField("component", "stream"))
			stream.Attach(bus)
			defer stream.Detach(bus)

			ctrls := []server.Controller{controllers.NewTaskAnalyticsController(engine)}
			if conf.Prometheus.Enabled {
				ctrls = append(ctrls, metrics.NewPrometheusController(conf.Prometheus.Path))
			}
			srv := server.NewHTTPServer(
				ctrls,
				[]mux.MiddlewareFunc{
					middleware.WithLogger(logger, middleware.LoggerOptions{RequestIDHeader: conf.RequestIDHeader}),
					middleware.Cors(origins...),
				},
				http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
					_ = httpapi.WriteError(w, http.StatusNotFound, "NOT_FOUND", "route not found", nil)
				}),
				http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
					_ = httpapi.WriteError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "method not allowed", nil)
				}),
			)
			srv.Streams["/ws"] = hub

			eg, egCtx := errgroup.WithContext(ctx)
			eg.Go(func() error {
				logger.Infof("Listening on: %s", conf.SocketAddress)
				return srv.Start(conf.SocketAddress)
			})
			eg.Go(func() error {
				<-egCtx.Done()
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
				defer cancel()
				return srv.Shutdown(shutdownCtx)
			})
			if refresh > 0 {
				eg.Go(func() error {
					ticker := time.NewTicker(refresh)
					defer ticker.Stop()
					for {
						select {
						case <-egCtx.Done():
							return nil
						case <-ticker.C:
							refreshCtx, cancel := context.WithTimeout(egCtx, conf.TaskAPI.Timeout)
							// Refresh keeps the previous snapshot and logs on failure.
							_ = engine.Refresh(refreshCtx)
							cancel()
						}
					}
				})
			}
			return eg.Wait()
		},
	}
	cmd.Flags().DurationVar(&refresh, "refresh", 30*time.Second, "reload roster and tasks at this interval (0 disables)")
	return cmd
}
