// Command nodemesh-server runs one NodeMesh cluster node.
//
// The node joins the peers named in its configuration, serves RPC and
// chunked transfers to them, and exposes health and metrics over HTTP when
// enabled. Log level, RPC timeout and disconnect thresholds are reloaded
// when the configuration file changes.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/yndnr/nodemesh-go/internal/infra/buildinfo"
	"github.com/yndnr/nodemesh-go/internal/infra/confloader"
	"github.com/yndnr/nodemesh-go/internal/infra/shutdown"
	"github.com/yndnr/nodemesh-go/internal/server/config"
	"github.com/yndnr/nodemesh-go/internal/server/node"
	"github.com/yndnr/nodemesh-go/internal/telemetry/logger"
)

const shutdownTimeout = 30 * time.Second

func main() {
	if err := app().Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func app() *cli.App {
	return &cli.App{
		Name:    "nodemesh-server",
		Usage:   "run a NodeMesh cluster node",
		Version: buildinfo.String(),
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "path to the YAML configuration file",
				EnvVars: []string{"NODEMESH_CONFIG"},
			},
		},
		Commands: []*cli.Command{
			{
				Name:  "version",
				Usage: "print build information",
				Action: func(c *cli.Context) error {
					fmt.Fprintln(c.App.Writer, "nodemesh-server "+buildinfo.String())
					return nil
				},
			},
		},
		Action: serve,
	}
}

func serve(c *cli.Context) error {
	path := c.String("config")
	cfg, err := loadConfig(path)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	log, err := logger.New(logger.Config{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
		Output: os.Stdout,
	})
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	slog.SetDefault(log)

	info := buildinfo.Get()
	log.Info("starting nodemesh-server",
		"version", info.Version,
		"commit", info.Commit,
		"config", path)
	log.Debug("effective configuration", "config", config.Sanitize(cfg))

	n, err := node.New(cfg, log)
	if err != nil {
		return fmt.Errorf("create node: %w", err)
	}

	ctx, cancel := context.WithCancel(c.Context)
	defer cancel()

	handler := shutdown.NewHandler(shutdownTimeout, shutdown.WithLogger(log))
	handler.OnShutdown("node", n.Shutdown)

	if err := n.Start(ctx); err != nil {
		return fmt.Errorf("start node: %w", err)
	}
	log.Info("node started",
		"unique_id", n.UniqueID(),
		"addrs", n.Addrs())

	if path != "" {
		stop, err := watchConfig(path, n, log)
		if err != nil {
			log.Warn("config reload disabled", "error", err)
		} else {
			handler.OnShutdown("config-watcher", func(context.Context) error { return stop() })
		}
	}

	if err := handler.Wait(ctx); err != nil {
		log.Error("shutdown error", "error", err)
		return err
	}
	log.Info("node stopped")
	return nil
}

// loadConfig merges defaults, the optional file and the environment, then
// verifies the result.
func loadConfig(path string) (*config.ServerConfig, error) {
	cfg := config.Default()

	var opts []confloader.Option
	if path != "" {
		opts = append(opts, confloader.WithConfigFile(path))
	}
	if err := confloader.NewLoader(opts...).Load(cfg); err != nil {
		return nil, err
	}
	if err := config.Verify(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func watchConfig(path string, n *node.Node, log *slog.Logger) (func() error, error) {
	w, err := confloader.NewWatcher(confloader.WithWatcherLogger(log))
	if err != nil {
		return nil, err
	}
	if err := w.Watch(path); err != nil {
		_ = w.Stop()
		return nil, err
	}
	w.OnChange(func(string) {
		cfg, err := loadConfig(path)
		if err != nil {
			log.Warn("ignoring config change", "path", path, "error", err)
			return
		}
		if err := n.ApplyConfig(cfg); err != nil {
			log.Warn("config change rejected", "path", path, "error", err)
		}
	})
	w.StartAsync()
	return w.Stop, nil
}
