package main

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"membench/cmd/membench/ui"
	"membench/internal/config"
	"membench/internal/results"
)

func resultsCmd(configPath *string) *cobra.Command {
	var outputDir string

	cmd := &cobra.Command{
		Use:   "results",
		Short: "Show recorded runs and their per-combination outcomes",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if outputDir == "" {
				cfg, err := config.Load(*configPath)
				if err != nil {
					return err
				}
				outputDir = cfg.Defaults.OutputDir
			}

			index, err := results.OpenIndex(filepath.Join(outputDir, "index.db"))
			if err != nil {
				return err
			}
			defer index.Close()

			runs, err := index.Runs()
			if err != nil {
				return err
			}
			if len(runs) == 0 {
				fmt.Println(ui.WarnMsg("no recorded runs under %s", outputDir))
				return nil
			}

			runRows := make([][]string, 0, len(runs))
			for _, run := range runs {
				completed := run.CompletedAt
				if completed == "" {
					completed = ui.WarnStyle.Render("incomplete")
				}
				runRows = append(runRows, []string{
					run.ID, run.StartedAt, completed, fmt.Sprint(run.ResultCount),
				})
			}
			fmt.Println(ui.Table([]string{"run", "started", "completed", "results"}, runRows))

			latest := runs[0]
			rows, err := index.Results(latest.ID)
			if err != nil {
				return err
			}
			if len(rows) == 0 {
				return nil
			}

			fmt.Println(ui.InfoMsg("latest run %s", ui.Bold(latest.ID)))
			resultRows := make([][]string, 0, len(rows))
			for _, row := range rows {
				rate := ui.Muted("n/a")
				if row.SuccessRate.Valid {
					rate = ui.Rate(row.SuccessRate.Float64)
				}
				resultRows = append(resultRows, []string{
					row.Scenario, row.Adapter, fmt.Sprint(row.Trials), rate,
				})
			}
			fmt.Println(ui.Table([]string{"scenario", "adapter", "trials", "success"}, resultRows))
			return nil
		},
	}
	cmd.Flags().StringVarP(&outputDir, "output", "o", "", "Run directory (default from config)")
	return cmd
}
