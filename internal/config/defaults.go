package config

func Defaults() *Config {
	return &Config{
		General: GeneralConfig{
			LogLevel:              "info",
			DefaultProvider:       "openai",
			MaxIterations:         10,
			MaxConcurrentMessages: 5,
		},
		Providers: map[string]ProviderConfig{
			"openai": {
				Enabled:      true,
				APIBase:      "https://api.openai.com/v1",
				DefaultModel: "gpt-4o-mini",
			},
		},
		Server: ServerConfig{
			Web: WebConfig{
				Enabled: false,
				Host:    "127.0.0.1",
				Port:    8080,
			},
			WebSocket: WSConfig{
				Enabled: true,
			},
			CLI: CLIConfig{
				Enabled: true,
			},
		},
		Invoke: InvokeConfig{
			TimeoutSeconds: 60,
			UseCache:       true,
		},
		Cache: CacheConfig{
			Backend:           "memory",
			DefaultTTLSeconds: 300,
		},
		Session: SessionConfig{
			Enabled:                   true,
			DBPath:                    "~/.prizmagent/sessions.db",
			MaxHistoryPerConversation: 100,
			RetentionDays:             365,
		},
		Chains: ChainsConfig{
			Dir: "~/.prizmagent/chains",
		},
		Tools: ToolsConfig{
			Web: WebToolConfig{
				SearchProvider: "duckduckgo",
				FetchTimeoutS:  20,
			},
		},
		Cron: CronConfig{
			Enabled: false,
		},
		Metrics: MetricsConfig{
			Enabled:  true,
			Endpoint: "/metrics",
		},
	}
}
