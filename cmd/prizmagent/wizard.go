package main

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"prizmagent/internal/config"
)

// providerMeta describes a provider option for the wizard. All entries speak
// the OpenAI chat-completions dialect.
type providerMeta struct {
	Name         string
	NeedsKey     bool
	EnvVar       string
	APIBase      string
	DefaultModel string
}

var knownProviders = []providerMeta{
	{Name: "openai", NeedsKey: true, EnvVar: "OPENAI_API_KEY", APIBase: "https://api.openai.com/v1", DefaultModel: "gpt-4o-mini"},
	{Name: "openrouter", NeedsKey: true, EnvVar: "OPENROUTER_API_KEY", APIBase: "https://openrouter.ai/api/v1", DefaultModel: "openai/gpt-4o-mini"},
	{Name: "groq", NeedsKey: true, EnvVar: "GROQ_API_KEY", APIBase: "https://api.groq.com/openai/v1", DefaultModel: "llama-3.3-70b-versatile"},
	{Name: "deepseek", NeedsKey: true, EnvVar: "DEEPSEEK_API_KEY", APIBase: "https://api.deepseek.com/v1", DefaultModel: "deepseek-chat"},
	{Name: "local", NeedsKey: false, APIBase: "http://localhost:11434/v1", DefaultModel: "llama3.1:8b"},
}

func wizardCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "wizard",
		Short: "Interactive setup: provider → cache → surfaces → save config",
		Long:  "Guides you through the default LLM provider (and API key if needed), the result cache backend, and the enabled surfaces (CLI/Web/WebSocket). Writes config to the path used by --config or default.",
		RunE:  runWizard,
	}
}

func runWizard(cmd *cobra.Command, args []string) error {
	cfgPath := resolveConfigPath()
	cfg, err := config.Load(cfgPath)
	if err != nil {
		cfg = config.Defaults()
	}
	ensureKnownProviders(cfg)

	reader := bufio.NewReader(os.Stdin)
	prompt := func(def string) (string, error) {
		if def != "" {
			fmt.Fprintf(os.Stdout, " [%s]: ", def)
		} else {
			fmt.Fprint(os.Stdout, ": ")
		}
		line, err := reader.ReadString('\n')
		if err != nil {
			return "", err
		}
		s := strings.TrimSpace(line)
		if s == "" && def != "" {
			return def, nil
		}
		return s, nil
	}

	// Step 1: Provider
	fmt.Println("\n--- Step 1: Default LLM provider ---")
	for i, p := range knownProviders {
		fmt.Fprintf(os.Stdout, "  %d) %s", i+1, p.Name)
		if p.NeedsKey {
			fmt.Fprintf(os.Stdout, " (set %s)", p.EnvVar)
		}
		fmt.Println()
	}
	fmt.Fprint(os.Stdout, "Choose provider (1-"+fmt.Sprint(len(knownProviders))+")")
	defNum := "1"
	for i, p := range knownProviders {
		if p.Name == cfg.General.DefaultProvider {
			defNum = fmt.Sprint(i + 1)
			break
		}
	}
	choice, err := prompt(defNum)
	if err != nil {
		return err
	}
	var idx int
	if n, _ := fmt.Sscanf(choice, "%d", &idx); n != 1 || idx < 1 || idx > len(knownProviders) {
		idx = 1
	}
	prov := knownProviders[idx-1]
	cfg.General.DefaultProvider = prov.Name

	p := cfg.Providers[prov.Name]
	p.Enabled = true
	p.APIBase = prov.APIBase
	if p.DefaultModel == "" {
		p.DefaultModel = prov.DefaultModel
	}
	cfg.Providers[prov.Name] = p

	if prov.NeedsKey {
		fmt.Fprintf(os.Stdout, "API key: paste key or env var (e.g. ${%s})", prov.EnvVar)
		key, err := prompt("${" + prov.EnvVar + "}")
		if err != nil {
			return err
		}
		if key != "" {
			p := cfg.Providers[prov.Name]
			p.APIKey = key
			cfg.Providers[prov.Name] = p
		}
	}
	// Only the chosen provider stays enabled.
	for name := range cfg.Providers {
		if name != prov.Name {
			p := cfg.Providers[name]
			p.Enabled = false
			cfg.Providers[name] = p
		}
	}
	fmt.Fprintf(os.Stdout, "  Using provider: %s\n", prov.Name)

	// Step 2: Result cache
	fmt.Println("\n--- Step 2: Result cache ---")
	fmt.Println("  1) memory - in-process, per run")
	fmt.Println("  2) redis  - shared, survives restarts")
	fmt.Fprint(os.Stdout, "Choose backend (1-2)")
	defCache := "1"
	if cfg.Cache.Backend == "redis" {
		defCache = "2"
	}
	cacheChoice, err := prompt(defCache)
	if err != nil {
		return err
	}
	if cacheChoice == "2" {
		cfg.Cache.Backend = "redis"
		fmt.Fprint(os.Stdout, "Redis address")
		addr, err := prompt(valueOr(cfg.Cache.RedisAddr, "localhost:6379"))
		if err != nil {
			return err
		}
		cfg.Cache.RedisAddr = addr
	} else {
		cfg.Cache.Backend = "memory"
	}
	fmt.Fprintf(os.Stdout, "  Using cache: %s\n", cfg.Cache.Backend)

	// Step 3: Surfaces
	fmt.Println("\n--- Step 3: Surfaces ---")
	fmt.Println("  1) cli       - interactive terminal chat")
	fmt.Println("  2) web       - browser UI and JSON API")
	fmt.Println("  3) websocket - realtime clients")
	fmt.Fprint(os.Stdout, "Choose surface (1-3)")
	surfChoice, err := prompt("1")
	if err != nil {
		return err
	}
	cfg.Server.CLI.Enabled = surfChoice == "1" || surfChoice == ""
	cfg.Server.Web.Enabled = surfChoice == "2"
	cfg.Server.WebSocket.Enabled = surfChoice == "3"

	// Save
	cfgDir := filepath.Dir(cfgPath)
	if err := os.MkdirAll(cfgDir, 0o755); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}
	if err := config.Validate(cfg); err != nil {
		return fmt.Errorf("config validation: %w", err)
	}
	if err := config.Save(cfgPath, cfg); err != nil {
		return err
	}
	fmt.Fprintf(os.Stdout, "\nConfig saved to %s\n", cfgPath)
	fmt.Println("Next: run 'prizmagent chat' for CLI, or 'prizmagent serve' for Web/WebSocket.")
	return nil
}

func valueOr(v, def string) string {
	if v != "" {
		return v
	}
	return def
}

// ensureKnownProviders seeds the provider map so SetByPath and the wizard
// have entries to work with.
func ensureKnownProviders(cfg *config.Config) {
	if cfg.Providers == nil {
		cfg.Providers = make(map[string]config.ProviderConfig)
	}
	for _, p := range knownProviders {
		if _, ok := cfg.Providers[p.Name]; !ok {
			cfg.Providers[p.Name] = config.ProviderConfig{
				Enabled:      p.Name == cfg.General.DefaultProvider,
				APIBase:      p.APIBase,
				DefaultModel: p.DefaultModel,
			}
		}
	}
}
