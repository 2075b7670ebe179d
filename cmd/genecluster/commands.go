package main

import (
	"context"
	"encoding/json"
	"errors"
	"expvar"
	"fmt"
	"io"
	"net"
	"net/http"
	"text/tabwriter"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"genecluster/internal/adapters/clusters"
)

const shutdownTimeout = 10 * time.Second

func newServeCmd(opts *rootOptions) *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Build the index and serve the HTTP API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			a, err := bootstrap(ctx, opts, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer a.close()
			svc, err := a.startService(ctx)
			if err != nil {
				return err
			}
			if addr != "" {
				a.cfg.HTTP.Addr = addr
			}
			svc.Start()

			ln, err := net.Listen("tcp", a.cfg.HTTP.Addr)
			if err != nil {
				return fmt.Errorf("listen %s: %w", a.cfg.HTTP.Addr, err)
			}
			return serve(ctx, a, ln)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (overrides http.addr)")
	return cmd
}

func newServeMux(a *app) *http.ServeMux {
	mux := http.NewServeMux()
	mux.Handle("/", clusters.NewHandler(a.service))
	if a.cfg.HTTP.Metrics {
		mux.Handle("GET /metrics", promhttp.HandlerFor(a.registry, promhttp.HandlerOpts{}))
		mux.Handle("GET /debug/vars", expvar.Handler())
	}
	return mux
}

// serve runs the HTTP server on ln until ctx is cancelled.
func serve(ctx context.Context, a *app, ln net.Listener) error {
	srv := &http.Server{
		Handler:           newServeMux(a),
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() { errCh <- srv.Serve(ln) }()
	a.logger.Info("listening", "addr", ln.Addr().String(), "metrics", a.cfg.HTTP.Metrics)

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	a.logger.Info("server stopped")
	return nil
}

func newQueryCmd(opts *rootOptions) *cobra.Command {
	var maxEntries int
	cmd := &cobra.Command{
		Use:   "query <name>",
		Short: "Find clusters whose genes match a symbol, alias or stable id",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := bootstrap(ctx, opts, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer a.close()
			svc, err := a.startService(ctx)
			if err != nil {
				return err
			}
			res, err := svc.GetClusters(ctx, args[0], maxEntries)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), res)
		},
	}
	cmd.Flags().IntVar(&maxEntries, "max", 0, "partial match limit (defaults to query.max_match_entries)")
	return cmd
}

func newClusterCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "cluster <id>",
		Short: "Print one cluster by id",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := bootstrap(ctx, opts, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer a.close()
			svc, err := a.startService(ctx)
			if err != nil {
				return err
			}
			c, ok, err := svc.GetClusterByID(ctx, args[0])
			if err != nil {
				return err
			}
			if !ok {
				return fmt.Errorf("cluster %s not found", args[0])
			}
			return printJSON(cmd.OutOrStdout(), c)
		},
	}
}

func newCacheCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cache",
		Short: "Inspect or clear cached annotation downloads",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List cached annotation files",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			a, err := bootstrap(ctx, opts, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer a.close()
			files, err := a.loader.CachedFiles(ctx)
			if err != nil {
				return err
			}
			maxAge := a.loader.Options().MaxAge
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "KEY\tSIZE\tMODIFIED\tSTALE")
			for _, f := range files {
				stale := time.Since(f.LastModified) >= maxAge
				fmt.Fprintf(tw, "%s\t%d\t%s\t%t\n", f.Key, f.Size, f.LastModified.UTC().Format(time.RFC3339), stale)
			}
			return tw.Flush()
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "purge [species...]",
		Short: "Delete cached annotation files so the next build refetches them",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := bootstrap(ctx, opts, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer a.close()
			species, err := a.species(args)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			for _, sp := range species {
				removed, err := a.loader.Purge(ctx, sp)
				if err != nil {
					return fmt.Errorf("purge %s: %w", sp.Name, err)
				}
				state := "not cached"
				if removed {
					state = "purged"
				}
				fmt.Fprintf(out, "%s\t%s\t%s\n", sp.Name, a.loader.CacheKey(sp), state)
			}
			return nil
		},
	})
	return cmd
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
