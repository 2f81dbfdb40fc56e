package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"membench"
	"membench/cmd/membench/ui"
	"membench/internal/results"
)

func runCmd(configPath *string) *cobra.Command {
	var (
		trials    int
		outputDir string
	)

	cmd := &cobra.Command{
		Use:   "run <scenario> <adapter>",
		Short: "Run one scenario against one adapter",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			scenarioName, adapterName := args[0], args[1]

			cfg, r, err := loadStack(*configPath)
			if err != nil {
				return err
			}
			if trials <= 0 {
				trials = cfg.Defaults.Trials
			}

			fmt.Println(ui.InfoMsg("running %s on %s (%d trials)",
				ui.Bold(scenarioName), ui.Bold(adapterName), trials))

			done := 0
			res, err := r.Run(cmd.Context(), scenarioName, adapterName, trials, func() {
				done++
				fmt.Print(ui.Muted("."))
			})
			fmt.Println()
			if err != nil {
				return err
			}

			fmt.Print(renderResult(res))

			if outputDir != "" {
				writer, err := results.NewWriter(outputDir)
				if err != nil {
					return err
				}
				defer writer.Close()
				if err := writer.WriteScenarioResult(res); err != nil {
					return err
				}
				fmt.Println(ui.SuccessMsg("result written to %s", outputDir))
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&trials, "trials", 0, "Trial count (default from config)")
	cmd.Flags().StringVarP(&outputDir, "output", "o", "", "Persist the result under this directory")
	return cmd
}

func renderResult(res membench.ScenarioResult) string {
	if errVal, ok := res.Aggregate["error"]; ok {
		return ui.WarnMsg("%s/%s: %v", res.ScenarioName, res.AdapterName, errVal) + "\n"
	}

	pairs := []ui.Pair{
		ui.KV("scenario", res.ScenarioName),
		ui.KV("adapter", res.AdapterName),
		ui.KV("trials", fmt.Sprint(len(res.Trials))),
	}
	if rate, ok := res.Aggregate["success_rate"].(float64); ok {
		pairs = append(pairs, ui.KV("success rate", ui.Rate(rate)))
	}
	if timing, ok := res.Aggregate["mean_timing_ms"].(float64); ok {
		pairs = append(pairs, ui.KV("mean timing", fmt.Sprintf("%.1fms", timing)))
	}
	if errs, ok := res.Aggregate["error_count"].(int); ok && errs > 0 {
		pairs = append(pairs, ui.KV("errors", ui.ErrorStyle.Render(fmt.Sprint(errs))))
	}
	return ui.KeyValues("  ", pairs...)
}
