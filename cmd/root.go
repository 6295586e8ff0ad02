package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/apexion-ai/reactagent/internal/compaction"
	"github.com/apexion-ai/reactagent/internal/config"
	"github.com/apexion-ai/reactagent/internal/logging"
	"github.com/apexion-ai/reactagent/internal/metrics"
	"github.com/apexion-ai/reactagent/internal/provider"
	"github.com/apexion-ai/reactagent/internal/session"
	"github.com/apexion-ai/reactagent/internal/tokens"
)

var (
	cfgFile       string
	modelFlag     string
	providerFlag  string
	thresholdFlag float64
	logLevelFlag  string
	metricsAddr   string
	tokenizerFlag string

	// Package-level version info, set by Execute().
	appVersion string
	appCommit  string
	appDate    string
)

// Execute is the main entry point called from main.go.
func Execute(version, commit, date string) {
	appVersion = version
	appCommit = commit
	appDate = date

	rootCmd := newRootCmd()
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "reactagent",
		Short: "Terminal chat agent with automatic context compaction",
		Long: "reactagent keeps a conversation with a language model and compacts the\n" +
			"history before it outgrows the model's context window.",
		// Running reactagent with no subcommand starts chat mode.
		RunE: func(cmd *cobra.Command, args []string) error {
			return runChat(cmd)
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	pf := rootCmd.PersistentFlags()
	pf.StringVarP(&cfgFile, "config", "c", "", "config file path (default ~/.config/reactagent/config.yaml)")
	pf.StringVarP(&modelFlag, "model", "m", "", "override model")
	pf.StringVarP(&providerFlag, "provider", "p", "", "override provider")
	pf.Float64Var(&thresholdFlag, "threshold", 0, "compaction threshold as a fraction of the context window (1 disables)")
	pf.StringVar(&logLevelFlag, "log-level", "", "log level: debug, info, warn, error")
	pf.StringVar(&metricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address")
	pf.StringVar(&tokenizerFlag, "tokenizer", "", "token counter: estimate or tiktoken")

	rootCmd.AddCommand(newRunCmd())
	rootCmd.AddCommand(newPlanCmd())
	rootCmd.AddCommand(newVersionCmd(appVersion, appCommit, appDate))
	rootCmd.AddCommand(newInitCmd())
	return rootCmd
}

// initConfig loads configuration and applies CLI flag overrides.
func initConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	applyFlags(cmd, cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyFlags(cmd *cobra.Command, cfg *config.Config) {
	if providerFlag != "" {
		cfg.Provider = providerFlag
	}
	if modelFlag != "" {
		cfg.Model = modelFlag
	}
	if cmd != nil && cmd.Flags().Changed("threshold") {
		cfg.ChatCompression.ContextPercentageThreshold = thresholdFlag
	}
	if logLevelFlag != "" {
		cfg.Log.Level = logLevelFlag
	}
	if metricsAddr != "" {
		cfg.Metrics.Addr = metricsAddr
	}
	if tokenizerFlag != "" {
		cfg.Tokenizer = tokenizerFlag
	}
}

// buildProvider creates a Provider instance based on configuration.
func buildProvider(cfg *config.Config) (provider.Provider, error) {
	name := cfg.Provider
	pc := cfg.GetProviderConfig(name)
	model := cfg.ActiveModel()

	apiKey := pc.APIKey
	if apiKey == "" && name == "ollama" {
		// Ollama ignores the key but the client requires one.
		apiKey = "ollama"
	}
	if apiKey == "" {
		return nil, fmt.Errorf(
			"API key not configured for provider %q.\n"+
				"Set it via:\n"+
				"  - config file: providers.%s.api_key\n"+
				"  - environment: LLM_API_KEY\n"+
				"  - run: reactagent init",
			name, name,
		)
	}

	switch name {
	case "anthropic":
		return provider.NewAnthropicProvider(apiKey, model), nil
	default:
		// All other providers use the OpenAI-compatible API.
		baseURL := pc.BaseURL
		if baseURL == "" {
			u, ok := config.KnownProviderBaseURLs[name]
			if !ok {
				return nil, fmt.Errorf("unknown provider %q; set providers.%s.base_url in config", name, name)
			}
			baseURL = u
		}
		return provider.NewOpenAIProvider(apiKey, baseURL, model), nil
	}
}

// buildAccountant picks the token counter and the context window table.
func buildAccountant(cfg *config.Config, model string) *tokens.Accountant {
	var counter tokens.Counter = tokens.EstimateCounter{}
	if cfg.Tokenizer == "tiktoken" {
		counter = tokens.NewTiktokenCounter(model)
	}
	return tokens.NewAccountant(counter, tokens.NewLimits(cfg.Provider, cfg.ModelLimitOverrides()))
}

// app is everything a command needs to talk to the model.
type app struct {
	cfg        *config.Config
	logger     *zap.Logger
	metrics    *metrics.Collector
	provider   provider.Provider
	accountant *tokens.Accountant
	session    *session.Session
}

func newApp(cmd *cobra.Command) (*app, error) {
	cfg, err := initConfig(cmd)
	if err != nil {
		return nil, err
	}
	p, err := buildProvider(cfg)
	if err != nil {
		return nil, err
	}
	return assemble(cfg, p), nil
}

// assemble wires the session around an already-built provider.
func assemble(cfg *config.Config, p provider.Provider) *app {
	logger := logging.New(cfg.Log)
	collector := metrics.NewCollector("reactagent", logger)
	if addr := cfg.Metrics.Addr; addr != "" {
		go func() {
			if err := collector.Serve(addr); err != nil {
				logger.Error("metrics server stopped", zap.String("addr", addr), zap.Error(err))
			}
		}()
	}

	model := cfg.ActiveModel()
	if model == "" {
		model = p.DefaultModel()
	}
	acc := buildAccountant(cfg, model)
	planner := compaction.NewPlanner(acc, logger, collector)

	sess := session.New(session.Options{
		Provider:          p,
		Planner:           planner,
		Compactor:         &session.LLMCompactor{Provider: p, Model: cfg.SummaryModel},
		Model:             model,
		Threshold:         cfg.ChatCompression.ContextPercentageThreshold,
		SystemPrompt:      cfg.SystemPrompt,
		Temperature:       cfg.Temperature,
		CompactOnOverflow: cfg.ChatCompression.ForceOnOverflow,
		Logger:            logger,
		Metrics:           collector,
	})
	logger.Debug("session started",
		zap.String("session", sess.ID),
		zap.String("provider", p.Name()),
		zap.String("model", model),
		zap.String("tokenizer", acc.CounterName()))

	return &app{
		cfg:        cfg,
		logger:     logger,
		metrics:    collector,
		provider:   p,
		accountant: acc,
		session:    sess,
	}
}

func (a *app) close() { _ = a.logger.Sync() }

// contextUsage returns the curated history's token count and the model's
// context window; zeros when either is unknown.
func (a *app) contextUsage() (used, total int) {
	used, err := a.accountant.CountTokens(a.session.History())
	if err != nil {
		used = 0
	}
	total, err = a.accountant.TokenLimit(a.session.Model())
	if err != nil {
		total = 0
	}
	return used, total
}
