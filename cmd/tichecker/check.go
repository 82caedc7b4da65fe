package main

import (
	"fmt"
	"strings"

	"github.com/ngaut/log"
	"github.com/spf13/cobra"

	"github.com/pingcap/tichecker/pkg/history"
	"github.com/pingcap/tichecker/pkg/logappend"
	"github.com/pingcap/tichecker/pkg/logger"
	"github.com/pingcap/tichecker/pkg/report"
	"github.com/pingcap/tichecker/pkg/txn"
)

var (
	configFlag string
)

func newCheckCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "check <history-file>",
		Short:   "Analyze a recorded history for consistency anomalies",
		Example: "tichecker check --config check.toml history.log",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			logger.InitGlobalLogger()
			cfg := Init()
			if configFlag != "" {
				if err := cfg.Load(configFlag); err != nil {
					return err
				}
			}

			h, err := history.ReadHistory(args[0])
			if err != nil {
				return err
			}
			h = history.CompleteOperations(h)
			log.Infof("loaded %d operations from %s", len(h), args[0])

			result, err := logappend.Check(logappend.CheckOpts{
				Opts: txn.Opts{
					ConsistencyModels: cfg.ConsistencyModels,
					Anomalies:         cfg.Anomalies,
					AllowedAnomalies:  cfg.AllowedAnomalies,
				},
				Analyzers: cfg.Analyzers,
				Directory: cfg.OutputDir,
				Workers:   cfg.Workers,
			}, h)
			if err != nil {
				return err
			}

			printResult(result)
			if cfg.Latencies {
				fmt.Println(report.Latencies(h).Render())
			}
			if !result.Valid && !result.IsUnknown {
				return fmt.Errorf("history is not consistent: %s",
					strings.Join(result.DisallowedAnomalyTypes, ", "))
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&configFlag, "config", "c", "", "path to the check config (toml)")
	return cmd
}

func printResult(result txn.CheckResult) {
	switch {
	case result.Valid:
		fmt.Println("valid: true")
	case result.IsUnknown:
		fmt.Println("valid: unknown")
	default:
		fmt.Println("valid: false")
	}
	if len(result.AnomalyTypes) > 0 {
		fmt.Printf("anomaly types: %s\n", strings.Join(result.AnomalyTypes, ", "))
	}
	if len(result.DisallowedAnomalyTypes) > 0 {
		fmt.Printf("disallowed: %s\n", strings.Join(result.DisallowedAnomalyTypes, ", "))
	}
	for _, typ := range result.AnomalyTypes {
		for _, anomaly := range result.Anomalies[typ] {
			fmt.Printf("  %s\n", anomaly.String())
		}
	}
	for i, explanation := range result.CycleExplanations {
		fmt.Printf("cycle %d:\n%s\n", i, explanation)
	}
	if len(result.Not) > 0 {
		fmt.Printf("not: %s\n", strings.Join(result.Not, ", "))
	}
	if len(result.AlsoNot) > 0 {
		fmt.Printf("also not: %s\n", strings.Join(result.AlsoNot, ", "))
	}
}
