package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/alecthomas/kong"

	"git.home.luguber.info/inful/sitebuilder/internal/build"
	"git.home.luguber.info/inful/sitebuilder/internal/config"
	"git.home.luguber.info/inful/sitebuilder/internal/extension"
	"git.home.luguber.info/inful/sitebuilder/internal/logfields"
	"git.home.luguber.info/inful/sitebuilder/internal/plugin"
	"git.home.luguber.info/inful/sitebuilder/internal/version"
)

var CLI struct {
	Config  string `short:"c" help:"Configuration file path" default:"site.yaml"`
	Verbose bool   `short:"v" help:"Enable verbose logging"`

	Build struct {
		Force bool `short:"f" help:"Rebuild every page, ignoring the incremental caches"`
	} `cmd:"" help:"Build the site"`

	Init struct {
		Force bool `help:"Overwrite existing configuration file"`
	} `cmd:"" help:"Initialize a new configuration file"`

	Watch struct {
		Interval string `help:"Periodic full rebuild interval (e.g. 30m); empty disables" default:""`
	} `cmd:"" help:"Watch sources and rebuild on change"`

	Check struct{} `cmd:"" help:"Compile all templates and report problems without building"`

	Plugins struct{} `cmd:"" help:"List available plugins and their load order"`

	Version struct{} `cmd:"" help:"Print version information"`
}

func main() {
	ctx := kong.Parse(&CLI)

	logLevel := slog.LevelInfo
	if CLI.Verbose {
		logLevel = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel,
	}))
	slog.SetDefault(logger)

	var err error
	switch ctx.Command() {
	case "build":
		err = runBuild(logger)
	case "init":
		err = config.Init(CLI.Config, CLI.Init.Force)
	case "watch":
		err = runWatch(logger)
	case "check":
		err = runCheck(logger)
	case "plugins":
		err = runPlugins(logger)
	case "version":
		fmt.Printf("sitebuilder %s (commit %s, built %s)\n",
			version.Version, version.GitCommit, version.BuildTime)
	default:
		err = fmt.Errorf("unknown command: %s", ctx.Command())
	}
	if err != nil {
		logger.Error("command failed", logfields.Error(err))
		os.Exit(1)
	}
}

// newService assembles a build service with extensions loaded.
func newService(cfg *config.Config, logger *slog.Logger) (*build.DefaultBuildService, func(), error) {
	engine, err := extension.NewEngine(cfg, ".", logger)
	if err != nil {
		return nil, nil, err
	}
	if err := engine.LoadPlugins(cfg.Plugins.Dir, cfg.Plugins.Enabled); err != nil {
		engine.Close()
		return nil, nil, err
	}

	svc := build.NewBuildService(logger).WithHooks(engine)

	cleanup := engine.Close
	if cfg.Events.NATSURL != "" {
		sink, err := build.NewNATSSink(cfg.Events.NATSURL, cfg.Events.Subject, logger)
		if err != nil {
			logger.Warn("event publisher unavailable", logfields.Error(err))
		} else {
			svc.WithEventSink(build.MultiSink{&build.LogSink{Logger: logger}, sink})
			cleanup = func() {
				sink.Close()
				engine.Close()
			}
		}
	}
	return svc, cleanup, nil
}

func runBuild(logger *slog.Logger) error {
	cfg, err := config.Load(CLI.Config)
	if err != nil {
		return err
	}
	svc, cleanup, err := newService(cfg, logger)
	if err != nil {
		return err
	}
	defer cleanup()

	result, err := svc.Run(context.Background(), build.BuildRequest{
		Config:  cfg,
		Options: build.BuildOptions{Force: CLI.Build.Force, Verbose: CLI.Verbose},
	})
	if err != nil {
		return err
	}
	if !result.Status.IsSuccess() {
		return fmt.Errorf("build finished with status %s", result.Status)
	}
	return nil
}

func runPlugins(logger *slog.Logger) error {
	cfg, err := config.Load(CLI.Config)
	if err != nil {
		return err
	}

	available, err := plugin.ListAvailable(cfg.Plugins.Dir)
	if err != nil {
		return err
	}
	enabled := make(map[string]bool, len(cfg.Plugins.Enabled))
	for _, name := range cfg.Plugins.Enabled {
		enabled[name] = true
	}

	fmt.Println("Available plugins:")
	for _, name := range available {
		marker := " "
		if enabled[name] {
			marker = "*"
		}
		fmt.Printf("  [%s] %s\n", marker, name)
	}

	if len(cfg.Plugins.Enabled) == 0 {
		return nil
	}
	descriptors, err := plugin.LoadEnabled(cfg.Plugins.Dir, cfg.Plugins.Enabled)
	if err != nil {
		return err
	}
	order, err := plugin.ResolveLoadOrder(descriptors, cfg.Plugins.Enabled)
	if err != nil {
		return err
	}
	fmt.Println("Load order:")
	for i, name := range order {
		fmt.Printf("  %d. %s %s\n", i+1, name, descriptors[name].Version)
	}
	return nil
}
