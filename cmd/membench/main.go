package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"membench"
	"membench/internal/config"
	"membench/internal/generator"
	"membench/internal/logging"
	"membench/internal/runner"
)

func main() {
	_ = godotenv.Load()

	var (
		debug      bool
		configPath string
	)

	if err := logging.Configure(logging.LevelWarn); err != nil {
		_, _ = os.Stderr.WriteString("configure logger: " + err.Error() + "\n")
		os.Exit(1)
	}

	root := &cobra.Command{
		Use:           "membench",
		Short:         "Benchmark harness for pluggable memory backends",
		SilenceErrors: true,
		SilenceUsage:  true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			level := logging.LevelWarn
			if debug {
				level = logging.LevelDebug
			}
			return logging.Configure(level)
		},
	}
	root.PersistentFlags().BoolVar(&debug, "debug", false, "Enable debug logging")
	root.PersistentFlags().StringVar(&configPath, "config", "", "Config file path (default membench.yaml)")

	root.AddCommand(runCmd(&configPath))
	root.AddCommand(suiteCmd(&configPath))
	root.AddCommand(scenariosCmd())
	root.AddCommand(adaptersCmd())
	root.AddCommand(resultsCmd(&configPath))

	if err := root.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

// loadStack builds the config, generator and scenario runner shared by
// the run and suite commands.
func loadStack(configPath string) (*config.Config, *runner.ScenarioRunner, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, err
	}
	gen, err := newGenerator(cfg)
	if err != nil {
		return nil, nil, err
	}
	r := runner.NewScenarioRunner(cfg, gen, runner.NewAdapterFactory(cfg))
	return cfg, r, nil
}

func newGenerator(cfg *config.Config) (membench.Generator, error) {
	return generator.New(generator.Config{
		Provider:    cfg.LLM.Provider,
		Model:       cfg.LLM.Model,
		Temperature: cfg.LLM.Temperature,
		MaxTokens:   cfg.LLM.MaxTokens,
		APIKey:      cfg.LLM.APIKey,
		BaseURL:     cfg.LLM.BaseURL,
	})
}
