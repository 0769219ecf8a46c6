package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"prizmagent/internal/bus"
	"prizmagent/internal/channel"
	"prizmagent/internal/config"
	"prizmagent/internal/provider"
	"prizmagent/internal/sched"
)

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the server (web + websocket + agent loop + scheduler)",
		Long:  "Starts all enabled surfaces and the agent loop. Press Ctrl+C to stop.",
		RunE:  runServe,
	}
}

func runServe(cmd *cobra.Command, args []string) error {
	cfgPath := resolveConfigPath()
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	setLogLevel(cfg)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	messageBus := bus.New(100, logger)

	e, err := buildEngine(ctx, cfg)
	if err != nil {
		return err
	}
	defer e.Close()

	provFactory := provider.NewFactory(cfg, logger)
	prov, err := provFactory.Default()
	if err != nil {
		return fmt.Errorf("provider: %w", err)
	}
	if err := prov.Healthy(ctx); err != nil {
		logger.Warn("default provider unhealthy at startup", "provider", prov.Name(), "err", err)
	} else {
		logger.Info("provider healthy", "provider", prov.Name())
	}

	loop := newAgentLoop(cfg, e, prov, messageBus)
	go loop.Run(ctx)

	if cfg.Cron.Enabled {
		scheduler := sched.New(sched.Config{
			Invoker:    e.invoker,
			InvokeOpts: e.opts,
			Logger:     logger,
		})
		for _, task := range cfg.Cron.Tasks {
			if err := scheduler.Register(task); err != nil {
				logger.Warn("cron task not registered", "id", task.ID, "err", err)
			}
		}
		go scheduler.Start(ctx)
	}

	var webCh *channel.Web
	if cfg.Server.Web.Enabled {
		webCh = channel.NewWeb(channel.WebConfig{
			Host:       cfg.Server.Web.Host,
			Port:       cfg.Server.Web.Port,
			Logger:     logger,
			Config:     cfg,
			ConfigPath: cfgPath,
			Version:    version,
			Tools:      e.tools,
			Chains:     e.chains,
			Invoker:    e.invoker,
			InvokeOpts: e.opts,
		})
		go func() {
			if err := webCh.Start(ctx, messageBus); err != nil {
				logger.Error("web channel error", "err", err)
			}
		}()
	}

	if cfg.Server.WebSocket.Enabled {
		wsCh := channel.NewWebSocketChannel(channel.WSConfig{
			Logger:     logger,
			Invoker:    e.invoker,
			InvokeOpts: e.opts,
		})
		go func() {
			if err := wsCh.Start(ctx, messageBus); err != nil {
				logger.Error("websocket channel error", "err", err)
			}
		}()
	}

	logger.Info("server started. Press Ctrl+C to stop.")

	<-ctx.Done()
	logger.Info("shutting down...")

	const shutdownTimeout = 10 * time.Second
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()

	var shutdownErr error
	done := make(chan struct{})
	go func() {
		defer close(done)
		if webCh != nil {
			webCh.Stop()
		}
		messageBus.Close()
	}()

	select {
	case <-done:
		logger.Info("shutdown complete")
	case <-shutdownCtx.Done():
		logger.Warn("shutdown timed out, forcing exit")
		shutdownErr = fmt.Errorf("shutdown timed out")
	}

	return shutdownErr
}
