package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/signalsfoundry/realm/internal/command"
	"github.com/signalsfoundry/realm/internal/logging"
	"github.com/signalsfoundry/realm/internal/observability"
	"github.com/signalsfoundry/realm/model"
	"github.com/spf13/cobra"
)

func newRunCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "run SCRIPT...",
		Short: "Execute command scripts against an empty realm",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) (err error) {
			s, err := newSession(cmd, flags)
			if err != nil {
				return err
			}
			defer func() { err = errors.Join(err, s.close(cmd.Context())) }()

			in := command.New(s.realm, s.out, s.log)
			for _, path := range args {
				if err := in.RunFile(cmd.Context(), path); err != nil {
					return err
				}
			}
			return nil
		},
	}
}

func newLoadCmd(flags *globalFlags) *cobra.Command {
	var queries []string
	cmd := &cobra.Command{
		Use:   "load SCENARIO",
		Short: "Load a JSON or YAML scenario and run queries against it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) (err error) {
			s, err := newSession(cmd, flags)
			if err != nil {
				return err
			}
			defer func() { err = errors.Join(err, s.close(cmd.Context())) }()

			sc, err := s.loadScenario(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			fmt.Fprintf(s.out, "loaded %d towns, %d vassalships, %d roads\n",
				len(sc.TownIDs), len(sc.Vassalships), len(sc.Roads))

			in := command.New(s.realm, s.out, s.log)
			for _, q := range queries {
				if err := in.Exec(cmd.Context(), q); err != nil {
					return err
				}
			}
			return nil
		},
	}
	cmd.Flags().StringArrayVarP(&queries, "query", "q", nil, "command to run after loading (repeatable)")
	return cmd
}

func newRouteCmd(flags *globalFlags) *cobra.Command {
	var mode string
	cmd := &cobra.Command{
		Use:   "route SCENARIO FROM TO",
		Short: "Find a route between two towns of a scenario",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) (err error) {
			ctx := cmd.Context()
			s, err := newSession(cmd, flags)
			if err != nil {
				return err
			}
			defer func() { err = errors.Join(err, s.close(ctx)) }()

			if _, err := s.loadScenario(ctx, args[0]); err != nil {
				return err
			}

			from, to := args[1], args[2]
			var route []string
			switch strings.ToLower(mode) {
			case "least":
				route = s.realm.LeastTownsRoute(ctx, from, to)
			case "shortest":
				route = s.realm.ShortestRoute(ctx, from, to)
			default:
				return fmt.Errorf("unknown route mode %q (want least or shortest)", mode)
			}

			switch {
			case len(route) == 1 && route[0] == model.NoTownID:
				return fmt.Errorf("unknown town in %s -> %s", from, to)
			case len(route) == 0:
				fmt.Fprintf(s.out, "no route from %s to %s\n", from, to)
			default:
				fmt.Fprintf(s.out, "%s (length %d)\n", strings.Join(route, " -> "), s.realm.RouteLength(route))
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&mode, "mode", "shortest", "route kind: least or shortest")
	return cmd
}

func newServeCmd(flags *globalFlags) *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "serve SCENARIO",
		Short: "Load a scenario and serve its Prometheus metrics until interrupted",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) (err error) {
			ctx := cmd.Context()
			s, err := newSession(cmd, flags)
			if err != nil {
				return err
			}
			defer func() { err = errors.Join(err, s.close(ctx)) }()

			if _, err := s.loadScenario(ctx, args[0]); err != nil {
				return err
			}

			lis, err := net.Listen("tcp", addr)
			if err != nil {
				return fmt.Errorf("listen for metrics: %w", err)
			}
			srv := serveMetrics(ctx, lis, s.collector, s.log)

			<-ctx.Done()
			s.log.Info(context.Background(), "shutting down metrics server")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", ":9090", "HTTP address for Prometheus /metrics")
	return cmd
}

func serveMetrics(ctx context.Context, lis net.Listener, collector *observability.RealmCollector, log logging.Logger) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", collector.Handler())

	srv := &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		if err := srv.Serve(lis); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Warn(context.Background(), "metrics server exited", logging.Err(err))
		}
	}()

	log.Info(ctx, "serving Prometheus metrics", logging.String("addr", lis.Addr().String()))
	return srv
}
