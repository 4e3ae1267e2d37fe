// File: cmd/analyze.go
package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	jsoniter "github.com/json-iterator/go"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/xkilldash9x/lumen-cli/api/schemas"
	"github.com/xkilldash9x/lumen-cli/internal/analyzer"
	"github.com/xkilldash9x/lumen-cli/internal/browserpool"
	"github.com/xkilldash9x/lumen-cli/internal/config"
	"github.com/xkilldash9x/lumen-cli/internal/grading"
	"github.com/xkilldash9x/lumen-cli/internal/lighthouse"
	"github.com/xkilldash9x/lumen-cli/internal/observability"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// components bundles the long-lived pieces an analysis run needs so they can
// be torn down together.
type components struct {
	pool     *browserpool.Pool
	pipeline *analyzer.Pipeline
	logger   *zap.Logger
}

func (c *components) Close() {
	if err := c.pool.Close(); err != nil {
		c.logger.Warn("Error closing browser pool.", zap.Error(err))
	}
}

// newAnalyzeCmd creates and configures the `analyze` command.
func newAnalyzeCmd() *cobra.Command {
	analyzeCmd := &cobra.Command{
		Use:   "analyze [urls...]",
		Short: "Audits the UX and load performance of the given websites",
		Long: `Analyze runs the full audit pipeline for each URL: a Lighthouse
performance audit, full-page desktop and mobile screenshots, and a
vision-model grading against a fixed UX checklist.`,
		Args: cobra.MinimumNArgs(1),
		PreRunE: func(cmd *cobra.Command, args []string) error {
			// Bind flags to their viper keys so CLI values override the
			// config file and environment.
			if err := viper.BindPFlag("analysis.save_screenshots", cmd.Flags().Lookup("save-screenshots")); err != nil {
				return err
			}
			if err := viper.BindPFlag("analysis.concurrency", cmd.Flags().Lookup("concurrency")); err != nil {
				return err
			}
			return viper.BindPFlags(cmd.Flags())
		},
		RunE: runAnalyze,
	}

	analyzeCmd.Flags().Bool("save-screenshots", false, "keep the captured screenshots on disk")
	analyzeCmd.Flags().Bool("json", false, "emit results as JSON instead of text")
	analyzeCmd.Flags().Int("concurrency", 2, "number of URLs analyzed in parallel")
	return analyzeCmd
}

func runAnalyze(cmd *cobra.Command, args []string) error {
	logger := observability.GetLogger()

	cfg, err := config.NewConfigFromViper(viper.GetViper())
	if err != nil {
		return err
	}

	// Make the run interruptible: Ctrl-C cancels in-flight analyses and the
	// deferred Close still tears the pool down.
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	comps, err := initializeComponents(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer comps.Close()

	urls := make([]string, len(args))
	for i, arg := range args {
		urls[i] = normalizeURL(arg)
	}

	results := make([]schemas.AnalysisResult, len(urls))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(cfg.Analysis.Concurrency)
	for i, url := range urls {
		i, url := i, url
		g.Go(func() error {
			result, err := comps.pipeline.Analyze(gctx, url)
			if err != nil {
				return fmt.Errorf("analysis of %s failed: %w", url, err)
			}
			results[i] = result
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if viper.GetBool("json") {
		return writeJSON(out, results)
	}
	for _, result := range results {
		printResult(out, result)
	}
	return nil
}

// initializeComponents builds and starts the pool, audit client, grader, and
// pipeline.
func initializeComponents(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*components, error) {
	launcher := browserpool.NewPlaywrightLauncher(cfg.Pool, logger)
	pool := browserpool.New(cfg.Pool, launcher, logger)
	if err := pool.Start(ctx); err != nil {
		return nil, err
	}

	audit := lighthouse.NewClient(cfg.Lighthouse, logger)

	if cfg.Grading.APIKey == "" {
		cfg.Grading.APIKey = apiKeyFromEnv(cfg.Grading.Provider)
	}
	grader, err := grading.NewGrader(cfg.Grading, logger)
	if err != nil {
		if closeErr := pool.Close(); closeErr != nil {
			logger.Warn("Error closing browser pool.", zap.Error(closeErr))
		}
		return nil, err
	}

	return &components{
		pool:     pool,
		pipeline: analyzer.New(cfg, pool, audit, grader, logger),
		logger:   logger,
	}, nil
}

// apiKeyFromEnv falls back to the conventional provider env vars when the
// config carries no key.
func apiKeyFromEnv(provider string) string {
	switch provider {
	case "openai":
		return os.Getenv("OPENAI_API_KEY")
	case "gemini":
		return os.Getenv("GEMINI_API_KEY")
	default:
		return ""
	}
}

// normalizeURL defaults bare hostnames to https.
func normalizeURL(raw string) string {
	if strings.HasPrefix(raw, "http://") || strings.HasPrefix(raw, "https://") {
		return raw
	}
	return "https://" + raw
}

func writeJSON(w io.Writer, results []schemas.AnalysisResult) error {
	// A single target keeps the original flat object shape.
	var payload interface{} = results
	if len(results) == 1 {
		payload = results[0]
	}
	data, err := json.MarshalIndent(payload, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal results: %w", err)
	}
	_, err = fmt.Fprintln(w, string(data))
	return err
}

func printResult(w io.Writer, result schemas.AnalysisResult) {
	fmt.Fprintf(w, "\n🔍 %s\n", result.URL)
	fmt.Fprintf(w, "⏱️  Load time: %.2fs\n", result.LoadTimeSeconds)

	if result.Lighthouse.Available {
		fmt.Fprint(w, "⚡ Lighthouse:")
		if result.Lighthouse.PerformanceScore != nil {
			fmt.Fprintf(w, " performance %.0f/100", *result.Lighthouse.PerformanceScore)
		}
		if result.Lighthouse.FCPSeconds != nil {
			fmt.Fprintf(w, ", FCP %.1fs", *result.Lighthouse.FCPSeconds)
		}
		if result.Lighthouse.LCPSeconds != nil {
			fmt.Fprintf(w, ", LCP %.1fs", *result.Lighthouse.LCPSeconds)
		}
		fmt.Fprintln(w)
	} else {
		fmt.Fprintln(w, "⚡ Lighthouse: not available")
	}

	if len(result.Issues) == 0 {
		fmt.Fprintln(w, "✅ No issues found")
	} else {
		fmt.Fprintf(w, "❗ Issues (%d):\n", len(result.Issues))
		for _, issue := range result.Issues {
			fmt.Fprintf(w, "  %s\n", issue)
		}
	}

	if result.Screenshots.Desktop != "" {
		fmt.Fprintf(w, "📸 Screenshots: %s, %s\n", result.Screenshots.Desktop, result.Screenshots.Mobile)
	}
}
