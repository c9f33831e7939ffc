package app

import (
	"context"
	"fmt"
	"io"

	"go.uber.org/fx"

	"bundlectl/internal/clierrors"
	"bundlectl/internal/config"
	"bundlectl/internal/download"
	"bundlectl/internal/logx"
	"bundlectl/internal/paths"
	"bundlectl/internal/procrun"
	"bundlectl/internal/toolcache"
	"bundlectl/internal/tools"
)

// Options are the command-line inputs that shape the object graph.
type Options struct {
	ConfigPath string
	Debug      bool
	// Console receives log output. Defaults to stderr.
	Console io.Writer
}

// Env is the wired set of services a command works with.
type Env struct {
	Config    config.Config
	Layout    paths.Layout
	Logger    logx.Logger
	Cache     *toolcache.DirCache
	Client    *download.Client
	Installer *tools.Installer
	Runner    *procrun.Runner
	Registry  *clierrors.Registry
	Matchers  []procrun.Matcher

	app *fx.App
}

// Module provides every service in Env.
var Module = fx.Options(
	fx.Provide(
		loadConfig,
		resolveLayout,
		newLogger,
		newCache,
		newClient,
		newInstaller,
		procrun.New,
		newRegistry,
		newMatchers,
	),
)

// Build constructs and starts the object graph. Close must be called to flush
// logs.
func Build(ctx context.Context, opts Options) (*Env, error) {
	env := &Env{}
	app := fx.New(
		fx.NopLogger,
		fx.Supply(opts),
		Module,
		fx.Populate(
			&env.Config,
			&env.Layout,
			&env.Logger,
			&env.Cache,
			&env.Client,
			&env.Installer,
			&env.Runner,
			&env.Registry,
			&env.Matchers,
		),
	)
	if err := app.Err(); err != nil {
		return nil, err
	}
	if err := app.Start(ctx); err != nil {
		return nil, fmt.Errorf("start: %w", err)
	}
	env.app = app
	return env, nil
}

// Close runs shutdown hooks.
func (e *Env) Close(ctx context.Context) error {
	if e == nil || e.app == nil {
		return nil
	}
	return e.app.Stop(ctx)
}

func loadConfig(opts Options) (config.Config, error) {
	cfg, err := config.Load(opts.ConfigPath)
	if err != nil {
		return config.Config{}, err
	}
	if err := cfg.ApplyEnv(config.NewViper()); err != nil {
		return config.Config{}, err
	}
	if opts.Debug {
		cfg.LogLevel = "debug"
	}
	if err := cfg.Validate(); err != nil {
		return config.Config{}, err
	}
	return cfg, nil
}

func resolveLayout(cfg config.Config) (paths.Layout, error) {
	layout, err := paths.Resolve(cfg.CacheDir, cfg.TempDir, cfg.LogDir)
	if err != nil {
		return paths.Layout{}, err
	}
	if err := layout.Ensure(); err != nil {
		return paths.Layout{}, err
	}
	return layout, nil
}

func newLogger(lc fx.Lifecycle, opts Options, cfg config.Config, layout paths.Layout) (logx.Logger, error) {
	logger, closer, err := logx.New(logx.Options{
		Level:   cfg.LogLevel,
		LogDir:  layout.LogsDir,
		Console: opts.Console,
	})
	if err != nil {
		return nil, err
	}
	lc.Append(fx.Hook{
		OnStop: func(context.Context) error { return closer.Close() },
	})
	return logger, nil
}

func newCache(layout paths.Layout, logger logx.Logger) *toolcache.DirCache {
	return toolcache.New(layout.CacheRoot, logger)
}

func newClient(cfg config.Config, logger logx.Logger) *download.Client {
	return download.NewClient(download.ClientConfig{
		UserAgent: cfg.UserAgent,
		Logger:    logger,
	})
}

func newInstaller(cache *toolcache.DirCache, client *download.Client, logger logx.Logger, cfg config.Config, layout paths.Layout) *tools.Installer {
	return tools.NewInstaller(cache, client, logger, InstallerConfig(cfg, layout))
}

// InstallerConfig derives installer settings from the configuration.
func InstallerConfig(cfg config.Config, layout paths.Layout) tools.Config {
	return tools.Config{
		ToolName:       cfg.ToolName,
		TempRoot:       layout.TempRoot,
		ReleaseBaseURL: cfg.ReleaseBaseURL,
		StreamExtract:  cfg.StreamExtract,
		StreamFallback: cfg.StreamFallback,
		MinimumVersion: cfg.MinimumVersion,
	}
}

func newRegistry(cfg config.Config) (*clierrors.Registry, error) {
	return cfg.Registry()
}

func newMatchers(cfg config.Config) ([]procrun.Matcher, error) {
	return cfg.ProcessMatchers()
}
