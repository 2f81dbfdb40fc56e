package main

import (
	"fmt"
	"slices"

	"github.com/spf13/cobra"

	"membench/cmd/membench/ui"
	"membench/internal/runner"
	"membench/internal/scenario"
)

func suiteCmd(configPath *string) *cobra.Command {
	var (
		trials       int
		outputDir    string
		scenarioSel  []string
		adapterSel   []string
		skipBaseline bool
	)

	cmd := &cobra.Command{
		Use:   "suite",
		Short: "Run every scenario/adapter combination and persist the results",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, r, err := loadStack(*configPath)
			if err != nil {
				return err
			}

			adapters := adapterSel
			if len(adapters) == 0 {
				adapters = runner.AdapterNames()
			}
			if skipBaseline {
				adapters = slices.DeleteFunc(slices.Clone(adapters), func(s string) bool {
					return s == "baseline"
				})
			}

			var current string
			opts := runner.SuiteOptions{
				Scenarios: scenarioSel,
				Adapters:  adapters,
				Trials:    trials,
				OutputDir: outputDir,
				Progress: func(scenarioName, adapterName string) {
					combo := scenarioName + "/" + adapterName
					if combo != current {
						if current != "" {
							fmt.Println()
						}
						current = combo
						fmt.Print(ui.InfoMsg("%s ", ui.Bold(combo)))
					}
					fmt.Print(ui.Muted("."))
				},
			}

			suiteRunner := runner.NewSuiteRunner(cfg, r)
			suite, err := suiteRunner.Run(cmd.Context(), opts)
			if current != "" {
				fmt.Println()
			}
			if err != nil {
				return err
			}

			rows := make([][]string, 0, len(suite.Results))
			for _, res := range suite.Results {
				status := ui.Muted("n/a")
				if errVal, ok := res.Aggregate["error"]; ok {
					status = ui.WarnStyle.Render(fmt.Sprint(errVal))
				} else if rate, ok := res.Aggregate["success_rate"].(float64); ok {
					status = ui.Rate(rate)
				}
				rows = append(rows, []string{
					res.ScenarioName,
					res.AdapterName,
					fmt.Sprint(len(res.Trials)),
					status,
				})
			}
			fmt.Println(ui.Table([]string{"scenario", "adapter", "trials", "outcome"}, rows))
			fmt.Println(ui.SuccessMsg("%d results persisted", len(suite.Results)))
			return nil
		},
	}
	cmd.Flags().IntVar(&trials, "trials", 0, "Trials per combination (default from config)")
	cmd.Flags().StringVarP(&outputDir, "output", "o", "", "Output directory (default from config)")
	cmd.Flags().StringSliceVar(&scenarioSel, "scenarios", nil, "Scenarios to run (default all)")
	cmd.Flags().StringSliceVar(&adapterSel, "adapters", nil, "Adapters to run (default all)")
	cmd.Flags().BoolVar(&skipBaseline, "skip-baseline", false, "Skip the in-process baseline adapter")
	return cmd
}

func scenariosCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "scenarios",
		Short: "List available scenarios",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			rows := make([][]string, 0, len(scenario.Names()))
			for _, name := range scenario.Names() {
				sc, err := scenario.New(name)
				if err != nil {
					return err
				}
				rows = append(rows, []string{name, sc.Guarantee(), sc.Description()})
			}
			fmt.Println(ui.Table([]string{"scenario", "guarantee", "description"}, rows))
			return nil
		},
	}
}

func adaptersCmd() *cobra.Command {
	descriptions := map[string]string{
		"baseline":   "in-process event log, no containers",
		"chronicle":  "event-sourced memory backend with replay and provenance",
		"vector_rag": "vector similarity store without temporal semantics",
	}
	return &cobra.Command{
		Use:   "adapters",
		Short: "List available adapters",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			rows := make([][]string, 0, len(runner.AdapterNames()))
			for _, name := range runner.AdapterNames() {
				rows = append(rows, []string{name, descriptions[name]})
			}
			fmt.Println(ui.Table([]string{"adapter", "description"}, rows))
			return nil
		},
	}
}
