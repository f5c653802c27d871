package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"sort"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	renderflow "github.com/BaSui01/renderflow"
	"github.com/BaSui01/renderflow/compose"
	"github.com/BaSui01/renderflow/config"
	"github.com/BaSui01/renderflow/gate"
	"github.com/BaSui01/renderflow/internal/server"
	"github.com/BaSui01/renderflow/internal/telemetry"
	"github.com/BaSui01/renderflow/types"
)

// =============================================================================
// 🚀 run 命令
// =============================================================================

type runOptions struct {
	manifestPath string
	resumeFrom   string
	runID        string
	yes          bool
	dryRun       bool
}

func runRun(args []string) {
	fs := flag.NewFlagSet("run", flag.ExitOnError)
	configPath := fs.String("config", "", "Path to config file")
	manifestPath := fs.String("manifest", "", "Path to the generation manifest (YAML or JSON)")
	resumeFrom := fs.String("resume", "", "Run ID to resume from")
	runID := fs.String("run-id", "", "Fix the run ID instead of generating one")
	outputDir := fs.String("output", "", "Decode inline artifacts into this directory")
	yes := fs.Bool("yes", false, "Approve the run without asking")
	dryRun := fs.Bool("dry-run", false, "Screen and plan only; nothing is rendered or billed")
	fs.Parse(args)

	if *manifestPath == "" {
		fmt.Fprintln(os.Stderr, "Usage: renderflow run --manifest <path> [options]")
		os.Exit(1)
	}

	cfg := loadConfig(*configPath)
	if *outputDir != "" {
		cfg.Render.OutputDir = *outputDir
	}

	// 退出码从这里带出来，保证 defer 的清理都执行完。
	os.Exit(executeRun(cfg, runOptions{
		manifestPath: *manifestPath,
		resumeFrom:   *resumeFrom,
		runID:        *runID,
		yes:          *yes,
		dryRun:       *dryRun,
	}))
}

func executeRun(cfg *config.Config, opts runOptions) int {
	logger := initLogger(cfg.Log)
	defer logger.Sync()

	requests, err := loadManifest(opts.manifestPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load manifest: %v\n", err)
		return 1
	}
	if len(requests) == 0 {
		fmt.Fprintf(os.Stderr, "Manifest %s contains no requests\n", opts.manifestPath)
		return 1
	}

	if opts.dryRun {
		return dryRunPlan(cfg, requests, logger, os.Stdout)
	}

	logger.Info("Starting RenderFlow run",
		zap.String("version", Version),
		zap.String("manifest", opts.manifestPath),
		zap.Int("requests", len(requests)))

	// Initialize OpenTelemetry
	otelProviders, err := telemetry.Init(cfg.Telemetry, logger)
	if err != nil {
		logger.Warn("failed to initialize telemetry", zap.Error(err))
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := otelProviders.Shutdown(shutdownCtx); err != nil {
			logger.Warn("telemetry shutdown failed", zap.Error(err))
		}
	}()

	// 长跑期间暴露抓取端点，未配置监听地址时不开。
	if cfg.Metrics.Enabled && cfg.Metrics.ListenAddr != "" {
		if scrape := startScrapeServer(cfg.Metrics.ListenAddr, logger); scrape != nil {
			defer func() {
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				_ = scrape.Shutdown(shutdownCtx)
			}()
		}
	}

	var approver gate.Approver
	if opts.yes {
		approver = gate.NewAutoApprover(0)
	} else {
		approver = consoleApprover(os.Stdin, os.Stdout)
	}

	extra := []renderflow.Option{renderflow.WithApprover(approver)}
	if opts.runID != "" {
		extra = append(extra, renderflow.WithRunID(opts.runID))
	}
	if opts.resumeFrom != "" {
		extra = append(extra, renderflow.WithResumeFrom(opts.resumeFrom))
	}
	if tracer := otelProviders.Tracer("renderflow/engine"); tracer != nil {
		extra = append(extra, renderflow.WithTracer(tracer))
	}

	eng, err := renderflow.FromConfig(cfg, logger, extra...)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to build engine: %v\n", err)
		return 1
	}
	defer eng.Close()

	// Ctrl-C 取消运行；已预留的请求照常结算，报告如实落库。
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	report, runErr := eng.Run(ctx, requests)
	code := exitCodeFor(report, runErr)

	if runErr != nil {
		if code == 2 {
			fmt.Fprintf(os.Stderr, "Run denied at admission: %v\n", runErr)
		} else {
			fmt.Fprintf(os.Stderr, "Run failed: %v\n", runErr)
		}
	}
	if report != nil {
		printReport(os.Stdout, report)
	}
	return code
}

// startScrapeServer 暴露 /metrics、/healthz 与 /version。启动失败
// 只降级告警，运行本身照常进行。
func startScrapeServer(addr string, logger *zap.Logger) *server.Manager {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	mux.HandleFunc("/version", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `{"version":%q,"build_time":%q,"git_commit":%q}`, Version, BuildTime, GitCommit)
	})

	serverCfg := server.DefaultConfig()
	serverCfg.Addr = addr
	mgr := server.NewManager(mux, serverCfg, logger)
	if err := mgr.Start(); err != nil {
		logger.Warn("scrape endpoint unavailable", zap.Error(err))
		return nil
	}
	return mgr
}

// exitCodeFor 把运行结局折算成进程退出码：准入拒绝 2，部分失败
// 或基础设施错误 1，全部成功 0。
func exitCodeFor(report *types.RunReport, err error) int {
	if err != nil {
		switch types.GetErrorCode(err) {
		case types.ErrValidation, types.ErrCeilingExceeded,
			types.ErrApprovalRejected, types.ErrApprovalTimeout:
			return 2
		default:
			return 1
		}
	}
	if report != nil && (report.Failed > 0 || report.Halted) {
		return 1
	}
	return 0
}

// =============================================================================
// 🔍 dry-run 计划
// =============================================================================

// dryRunPlan 只执行准入筛查与批次编排，不构建引擎、不出图、不花钱。
func dryRunPlan(cfg *config.Config, requests []types.GenerationRequest, logger *zap.Logger, out io.Writer) int {
	ec := renderflow.BuildEngineConfig(cfg)
	// 试运行不该卡在确认上，阈值清零。
	ec.Gate.ConfirmationThreshold = 0

	admission, err := gate.NewGate(ec.Gate, nil, logger).Screen(context.Background(), requests)

	fmt.Fprintln(out, "Dry run: nothing will be rendered or billed.")
	fmt.Fprintln(out)
	fmt.Fprintf(out, "Requests: %d total, %d valid, %d rejected\n",
		len(requests), len(admission.Valid), len(admission.Rejected))
	for _, rej := range admission.Rejected {
		fmt.Fprintf(out, "  rejected %s: %s\n", rej.Request.ID, rej.Reason)
	}

	if err != nil {
		fmt.Fprintf(out, "\nAdmission would be denied: %v\n", err)
		return 2
	}
	if !admission.Admitted {
		fmt.Fprintf(out, "\nAdmission would be denied: %s\n", admission.Reason)
		return 2
	}

	batches := compose.NewComposer(ec.Compose, logger).Compose(admission.Valid)
	fmt.Fprintf(out, "\nPlan: %d batch(es)\n", len(batches))
	for _, b := range batches {
		fmt.Fprintf(out, "  %-20s %-13s %3d item(s)  $%.2f\n",
			b.ID, b.AssetType, len(b.Requests), b.DeclaredCost.Dollars())
	}

	fmt.Fprintf(out, "\nEstimated cost:     $%.2f (budget $%.2f)\n",
		admission.EstimatedCost.Dollars(), cfg.Run.TotalBudget)
	if admission.EstimatedCost > types.AmountFromDollars(cfg.Run.TotalBudget) {
		fmt.Fprintln(out, "WARNING: estimate exceeds the total budget; the run would halt early.")
	}
	fmt.Fprintf(out, "Estimated duration: %s\n", admission.EstimatedDuration.Round(time.Second))
	return 0
}

// =============================================================================
// ✅ 终端确认
// =============================================================================

// consoleApprover 在终端上答复确认单：打印成本摘要后读取 y/N。
// 读取在独立 goroutine 中进行，等待上限由闸门传入的 ctx 控制。
func consoleApprover(in io.Reader, out io.Writer) gate.ApproverFunc {
	reader := bufio.NewReader(in)
	return func(ctx context.Context, ticket gate.Ticket) (*gate.Decision, error) {
		fmt.Fprintf(out, "\nThis run needs approval:\n")
		fmt.Fprintf(out, "  Items:              %d\n", ticket.ValidCount)
		for _, at := range sortedAssetTypes(ticket.CountsByType) {
			fmt.Fprintf(out, "    %-16s  %d\n", at, ticket.CountsByType[at])
		}
		fmt.Fprintf(out, "  Estimated cost:     $%.2f\n", ticket.EstimatedCost.Dollars())
		fmt.Fprintf(out, "  Estimated duration: %s\n", ticket.EstimatedDuration.Round(time.Second))
		fmt.Fprintf(out, "Proceed? [y/N]: ")

		answerCh := make(chan string, 1)
		go func() {
			line, err := reader.ReadString('\n')
			if err != nil {
				answerCh <- ""
				return
			}
			answerCh <- strings.ToLower(strings.TrimSpace(line))
		}()

		select {
		case <-ctx.Done():
			fmt.Fprintln(out)
			return nil, ctx.Err()
		case answer := <-answerCh:
			decision := &gate.Decision{DecidedBy: "console", Timestamp: time.Now()}
			if answer == "y" || answer == "yes" {
				decision.Approved = true
			} else {
				decision.Reason = "declined at console"
			}
			return decision, nil
		}
	}
}

func sortedAssetTypes(counts map[types.AssetType]int) []types.AssetType {
	out := make([]types.AssetType, 0, len(counts))
	for at := range counts {
		out = append(out, at)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
