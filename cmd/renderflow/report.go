package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"time"

	renderflow "github.com/BaSui01/renderflow"
	"github.com/BaSui01/renderflow/audit"
	"github.com/BaSui01/renderflow/types"
)

// =============================================================================
// 📊 report 命令
// =============================================================================

func runReport(args []string) {
	fs := flag.NewFlagSet("report", flag.ExitOnError)
	configPath := fs.String("config", "", "Path to config file")
	runID := fs.String("run", "", "Run ID to look up")
	asJSON := fs.Bool("json", false, "Print the stored report as JSON")
	fs.Parse(args)

	if *runID == "" {
		fmt.Fprintln(os.Stderr, "Usage: renderflow report --run <run-id> [options]")
		os.Exit(1)
	}

	cfg := loadConfig(*configPath)
	logger := initLogger(cfg.Log)
	defer logger.Sync()

	store, err := audit.NewTrailStore(renderflow.BuildStoreConfig(cfg.Audit), logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to open trail store: %v\n", err)
		os.Exit(1)
	}
	defer store.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	report, err := store.Report(ctx, *runID)
	if err != nil {
		if errors.Is(err, audit.ErrRunNotFound) {
			fmt.Fprintf(os.Stderr, "No report found for run %s\n", *runID)
		} else {
			fmt.Fprintf(os.Stderr, "Failed to load report: %v\n", err)
		}
		os.Exit(1)
	}

	if *asJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(report); err != nil {
			fmt.Fprintf(os.Stderr, "Failed to encode report: %v\n", err)
			os.Exit(1)
		}
		return
	}
	printReport(os.Stdout, report)
}

// =============================================================================
// 🖨️ 报告输出
// =============================================================================

// printReport 以人读格式输出运行报告。金额按美元显示两位小数，
// 精确到微美元的原始值走 --json。
func printReport(w io.Writer, report *types.RunReport) {
	fmt.Fprintf(w, "\nRun %s\n", report.RunID)
	fmt.Fprintf(w, "  Requested:  %d\n", report.TotalRequested)
	fmt.Fprintf(w, "  Generated:  %d\n", report.Generated)
	fmt.Fprintf(w, "  Failed:     %d\n", report.Failed)
	fmt.Fprintf(w, "  Skipped:    %d\n", report.Skipped)
	fmt.Fprintf(w, "  Total cost: $%.2f\n", report.TotalCost.Dollars())
	fmt.Fprintf(w, "  Elapsed:    %.1fs\n", report.ElapsedSeconds)
	fmt.Fprintf(w, "  Success:    %.1f%%\n", report.SuccessRatePercent)

	if report.Halted {
		fmt.Fprintf(w, "  HALTED:     %s\n", report.HaltReason)
	}

	if len(report.Failures) > 0 {
		fmt.Fprintf(w, "\nFailures:\n")
		for _, f := range report.Failures {
			fmt.Fprintf(w, "  - %s: %s\n", f.RequestID, f.Reason)
		}
	}

	if len(report.Artifacts) > 0 {
		fmt.Fprintf(w, "\nArtifacts:\n")
		for _, a := range report.Artifacts {
			fmt.Fprintf(w, "  - %-28s %-13s $%.2f  %s\n",
				a.Filename, a.AssetType, a.ActualCost.Dollars(), a.Reference)
		}
	}
}
