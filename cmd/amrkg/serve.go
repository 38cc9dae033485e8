package main

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"amrkg/internal/server"
	"amrkg/predictor"
)

func newServeCmd(a *app) *cobra.Command {
	var (
		addr  string
		watch bool
	)
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve predictions over HTTP",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			if !a.verbose {
				gin.SetMode(gin.ReleaseMode)
			}
			kind, err := a.cfg.Kind()
			if err != nil {
				return err
			}
			loader, err := a.loader(ctx)
			if err != nil {
				return err
			}
			gen, err := a.generator()
			if err != nil {
				return err
			}
			cache := predictor.NewArtifactCache(loader, a.logger)
			defer cache.Purge()
			pipeline, err := predictor.NewPipeline(cache, gen, a.logger)
			if err != nil {
				return err
			}

			if watch {
				if a.cfg.Artifacts.Backend != predictor.BackendFile {
					a.logger.Warn("--watch only applies to the file backend", zap.String("backend", a.cfg.Artifacts.Backend))
				} else {
					watcher, err := predictor.NewArtifactWatcher(a.cfg.Artifacts.Dir, cache, a.logger)
					if err != nil {
						return err
					}
					if err := watcher.Start(ctx); err != nil {
						watcher.Stop()
						return err
					}
					defer watcher.Stop()
				}
			}

			if addr == "" {
				addr = a.cfg.Server.Addr
			}
			srv, err := server.New(pipeline, cache, loader.Store(), server.Options{
				Addr:        addr,
				Fingerprint: kind,
				Model:       a.cfg.Model,
			}, a.logger)
			if err != nil {
				return err
			}
			return srv.Run(ctx)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "Listen address (default from config, :8080)")
	cmd.Flags().BoolVar(&watch, "watch", false, "Invalidate cached models when files in the model directory change")
	return cmd
}
