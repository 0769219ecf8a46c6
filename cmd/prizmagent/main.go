package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"prizmagent/internal/agent"
	"prizmagent/internal/bus"
	"prizmagent/internal/chain"
	"prizmagent/internal/channel"
	"prizmagent/internal/config"
	"prizmagent/internal/domain"
	"prizmagent/internal/invoke"
	"prizmagent/internal/provider"
	"prizmagent/internal/session"
	"prizmagent/internal/tool"
)

var (
	version    = "0.1.0"
	logger     *slog.Logger
	configPath string // overridable via --config flag
)

func main() {
	// .env in the working directory supplies ${VAR} references in config.
	_ = godotenv.Load()

	logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))

	root := &cobra.Command{
		Use:   "prizmagent",
		Short: "prizmagent: tool-invoking AI agent",
		Long:  "prizmagent runs LLM tool calls and chains with caching, sessions, and web/websocket/CLI surfaces.",
	}

	root.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to config.json (default: ~/.prizmagent/config.json)")

	root.AddCommand(initCmd())
	root.AddCommand(wizardCmd())
	root.AddCommand(chatCmd())
	root.AddCommand(serveCmd())
	root.AddCommand(invokeCmd())
	root.AddCommand(toolsCmd())
	root.AddCommand(chainsCmd())
	root.AddCommand(statusCmd())
	root.AddCommand(configCmd())
	root.AddCommand(doctorCmd())
	root.AddCommand(backupCmd())
	root.AddCommand(restoreCmd())
	root.AddCommand(installDaemonCmd())
	root.AddCommand(uninstallDaemonCmd())
	root.AddCommand(versionCmd())

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

// resolveConfigPath returns the config path from --config flag or default.
func resolveConfigPath() string {
	if configPath != "" {
		return configPath
	}
	return config.DefaultConfigPath()
}

func loadConfigOrDefaults() *config.Config {
	cfgPath := resolveConfigPath()
	cfg, err := config.Load(cfgPath)
	if err != nil {
		logger.Warn("config not found, using defaults", "path", cfgPath, "err", err)
		return config.Defaults()
	}
	return cfg
}

func setLogLevel(cfg *config.Config) {
	level := slog.LevelInfo
	switch cfg.General.LogLevel {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}
	logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

// engine bundles the pieces every run mode shares: registries, cache,
// session store, and the invoker on top of them.
type engine struct {
	tools   *tool.Registry
	chains  *chain.Registry
	cache   invoke.ResultCache
	store   *session.Store
	invoker *invoke.Invoker
	opts    invoke.Options
}

func buildEngine(ctx context.Context, cfg *config.Config) (*engine, error) {
	e := &engine{
		tools:  tool.NewRegistry(logger),
		chains: chain.NewRegistry(logger),
	}

	registerTools(e.tools)
	chain.RegisterBuiltins(e.tools, e.chains, logger)
	if cfg.Chains.Dir != "" {
		if err := chain.LoadDirectory(cfg.Chains.Dir, e.tools, e.chains, logger); err != nil {
			logger.Warn("chain directory not loaded", "dir", cfg.Chains.Dir, "err", err)
		}
	}

	switch cfg.Cache.Backend {
	case "redis":
		e.cache = invoke.NewRedisCache(cfg.Cache.RedisAddr, cfg.Cache.RedisPassword, cfg.Cache.RedisDB, logger)
	default:
		e.cache = invoke.NewMemoryCache()
	}

	var recorder invoke.Recorder
	if cfg.Session.Enabled {
		store, err := session.NewStore(cfg.Session.DBPath, logger)
		if err != nil {
			return nil, fmt.Errorf("session store: %w", err)
		}
		if err := store.Prune(ctx, cfg.Session.RetentionDays); err != nil {
			logger.Warn("session prune failed", "err", err)
		}
		e.store = store
		recorder = store
	}

	e.invoker = invoke.New(invoke.Config{
		Tools:    e.tools,
		Chains:   e.chains,
		Cache:    e.cache,
		Recorder: recorder,
		Logger:   logger,
	})
	e.opts = invoke.Options{
		UseCache: cfg.Invoke.UseCache,
		CacheTTL: time.Duration(cfg.Cache.DefaultTTLSeconds) * time.Second,
		Timeout:  time.Duration(cfg.Invoke.TimeoutSeconds) * time.Second,
	}
	return e, nil
}

func (e *engine) Close() {
	if e.store != nil {
		e.store.Close()
	}
}

// registerTools registers the built-in tool set.
func registerTools(reg *tool.Registry) {
	reg.MustRegister(tool.NewCalculatorTool())
	reg.MustRegister(tool.NewDateTimeTool())
	reg.MustRegister(tool.NewWebSearchTool())
	reg.MustRegister(tool.NewWebFetchTool())
}

func initCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Initialize config and data directories",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfgDir := config.DefaultConfigDir()
			cfgPath := config.DefaultConfigPath()
			if err := os.MkdirAll(cfgDir, 0o755); err != nil {
				return err
			}
			cfg := config.Defaults()
			if err := config.Save(cfgPath, cfg); err != nil {
				return err
			}
			if cfg.Chains.Dir != "" {
				if err := os.MkdirAll(cfg.Chains.Dir, 0o755); err != nil {
					return err
				}
			}
			logger.Info("initialized", "config", cfgPath, "chains", cfg.Chains.Dir)
			return nil
		},
	}
}

func chatCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "chat",
		Short: "Start interactive chat (CLI)",
		RunE:  runChat,
	}
}

func runChat(cmd *cobra.Command, args []string) error {
	cfg := loadConfigOrDefaults()
	setLogLevel(cfg)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	messageBus := bus.New(100, logger)
	defer messageBus.Close()

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

	loop := newAgentLoop(cfg, e, prov, messageBus)
	go loop.Run(ctx)

	cliCh := channel.NewCLI(channel.CLIConfig{
		Logger: logger,
		Tools:  e.tools,
		Chains: e.chains,
	})
	return cliCh.Start(ctx, messageBus)
}

func newAgentLoop(cfg *config.Config, e *engine, prov domain.Provider, messageBus domain.MessageBus) *agent.Loop {
	filter := agent.NewToolFilter(cfg.Tools.Allow, cfg.Tools.Deny)
	prompt := agent.NewPromptBuilder(e.tools, e.chains, filter, cfg.General.SystemPromptExtra)
	return agent.NewLoop(agent.LoopConfig{
		Provider:      prov,
		Invoker:       e.invoker,
		Prompt:        prompt,
		Filter:        filter,
		Store:         e.store,
		Bus:           messageBus,
		Logger:        logger,
		MaxIterations: cfg.General.MaxIterations,
		Concurrency:   cfg.General.MaxConcurrentMessages,
		InvokeOpts:    e.opts,
	})
}

func domainContext(channelName string) *domain.InvocationContext {
	return domain.NewInvocationContext(uuid.NewString(), channelName, channelName)
}

func invokeCmd() *cobra.Command {
	var target string
	var argsJSON string

	cmd := &cobra.Command{
		Use:   "invoke [call expression]",
		Short: "Run a single tool or chain and print the outcome",
		Long:  `Runs one invocation directly, e.g. prizmagent invoke 'search(query="cats")' or prizmagent invoke --target calculator --args '{"expression":"2+2"}'.`,
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, cliArgs []string) error {
			cfg := loadConfigOrDefaults()
			setLogLevel(cfg)

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			e, err := buildEngine(ctx, cfg)
			if err != nil {
				return err
			}
			defer e.Close()

			req := invoke.Request{Target: target}
			if len(cliArgs) == 1 {
				req.Raw = cliArgs[0]
			}
			if argsJSON != "" {
				if err := json.Unmarshal([]byte(argsJSON), &req.Args); err != nil {
					return fmt.Errorf("parse --args: %w", err)
				}
			}
			if req.Target == "" && req.Raw == "" {
				return fmt.Errorf("a call expression or --target is required")
			}

			ic := domainContext("cli-invoke")
			outcome := e.invoker.Invoke(ctx, req, ic, e.opts)

			out := map[string]any{
				"status":     string(outcome.Status),
				"target":     outcome.Target,
				"cached":     outcome.Cached,
				"elapsed_ms": outcome.Elapsed.Milliseconds(),
			}
			if outcome.Result != "" {
				out["result"] = outcome.Result
			}
			if outcome.Failure != nil {
				out["error"] = outcome.Failure.Error()
				out["error_kind"] = string(outcome.Failure.Kind)
			}
			data, _ := json.MarshalIndent(out, "", "  ")
			fmt.Println(string(data))

			if outcome.Failed() {
				e.Close()
				os.Exit(1)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&target, "target", "", "tool or chain name")
	cmd.Flags().StringVar(&argsJSON, "args", "", "arguments as a JSON object")
	return cmd
}

func toolsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "tools",
		Short: "List registered tools",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := loadConfigOrDefaults()
			e, err := buildEngine(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer e.Close()
			for _, def := range e.tools.List() {
				fmt.Printf("%-20s %s\n", def.Name, def.Description)
			}
			return nil
		},
	}
}

func chainsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "chains",
		Short: "List registered chains",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := loadConfigOrDefaults()
			e, err := buildEngine(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer e.Close()
			for _, def := range e.chains.List() {
				fmt.Printf("%-20s %s\n", def.Name, def.Description)
			}
			return nil
		},
	}
}

func statusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show system status",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfgPath := resolveConfigPath()
			cfg, err := config.Load(cfgPath)
			if err != nil {
				logger.Info("config", "path", cfgPath, "loaded", false)
				cfg = config.Defaults()
			} else {
				logger.Info("config", "path", cfgPath, "loaded", true)
			}
			ctx := context.Background()
			factory := provider.NewFactory(cfg, logger)
			prov, err := factory.Default()
			if err != nil {
				logger.Info("provider", "configured", false, "err", err)
				return nil
			}
			if err := prov.Healthy(ctx); err != nil {
				logger.Info("provider", "name", prov.Name(), "healthy", false, "err", err)
			} else {
				logger.Info("provider", "name", prov.Name(), "healthy", true)
			}
			return nil
		},
	}
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("prizmagent v%s\n", version)
		},
	}
}

func configCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "View and modify configuration",
		Long:  "Get, set, and list configuration values. Changes are saved to the config file.",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "get [path]",
		Short: "Get a config value (e.g. general.defaultProvider)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfgPath := resolveConfigPath()
			cfg, err := config.Load(cfgPath)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			val, err := config.GetByPath(cfg, args[0])
			if err != nil {
				return err
			}
			data, _ := json.MarshalIndent(val, "", "  ")
			fmt.Println(string(data))
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "set [path] [value]",
		Short: "Set a config value (e.g. cache.backend redis)",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfgPath := resolveConfigPath()
			cfg, err := config.Load(cfgPath)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			if err := config.SetByPath(cfg, args[0], args[1]); err != nil {
				return fmt.Errorf("set value: %w", err)
			}
			if err := config.Validate(cfg); err != nil {
				return fmt.Errorf("validate: %w", err)
			}
			if err := config.Save(cfgPath, cfg); err != nil {
				return fmt.Errorf("save config: %w", err)
			}
			logger.Info("config updated", "path", args[0], "value", args[1], "file", cfgPath)
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List all config values",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfgPath := resolveConfigPath()
			cfg, err := config.Load(cfgPath)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			sanitized := config.Sanitize(cfg)
			data, _ := json.MarshalIndent(sanitized, "", "  ")
			fmt.Println(string(data))
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "path",
		Short: "Show config file path",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Println(resolveConfigPath())
		},
	})

	return cmd
}
