package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/olegiv/go-logger"

	"github.com/olegiv/meterlog-analyzer-go/internal/ai"
	"github.com/olegiv/meterlog-analyzer-go/internal/config"
	"github.com/olegiv/meterlog-analyzer-go/internal/logging"
	"github.com/olegiv/meterlog-analyzer-go/internal/meter"
	"github.com/olegiv/meterlog-analyzer-go/internal/notification"
	"github.com/olegiv/meterlog-analyzer-go/internal/report"
	"github.com/olegiv/meterlog-analyzer-go/internal/storage"
)

const (
	exitSuccess = 0
	exitFailure = 1
)

// Version information - injected at build time via ldflags
var (
	version   = "dev"
	buildTime = "unknown"
	gitCommit = "unknown"
)

func main() {
	os.Exit(run())
}

func run() int {
	cli := config.ParseCLI()

	if cli.ShowHelp {
		config.PrintUsage()
		return exitSuccess
	}

	if cli.ShowVersion {
		fmt.Printf("meterlog-analyzer %s\n", version)
		if gitCommit != "unknown" {
			fmt.Printf("  commit: %s\n", gitCommit)
		}
		if buildTime != "unknown" {
			fmt.Printf("  built:  %s\n", buildTime)
		}
		return exitSuccess
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigChan
		cancel()
	}()

	cfg, err := config.LoadWithCLI(cli)
	if err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "Configuration error: %v\n", err)
		return exitFailure
	}

	baseLog := logger.New(logger.Config{
		Level:      cfg.LogLevel,
		LogDir:     cfg.AppLogDir,
		MaxSizeMB:  10,
		MaxBackups: 5,
		Console:    true,
	})
	log := logging.NewSecure(baseLog)
	defer func() {
		if err := log.Close(); err != nil {
			_, _ = fmt.Fprintf(os.Stderr, "Failed to close logger: %v\n", err)
		}
	}()

	log.Info().
		Str("version", version).
		Str("directory", cfg.InputDirectory).
		Str("report_mode", string(cfg.ReportMode)).
		Msg("Starting Meter Log Analyzer")

	if err := runAnalyzer(ctx, cfg, log, os.Stdout); err != nil {
		log.Error().Err(err).Msg("Analysis failed")
		return exitFailure
	}

	log.Info().Msg("Analysis completed successfully")
	return exitSuccess
}

func runAnalyzer(ctx context.Context, cfg *config.Config, log *logging.SecureLogger, out io.Writer) error {
	startTime := time.Now()

	rep, text, err := buildReport(cfg, log, out)
	if err != nil {
		return err
	}

	var store *storage.Storage
	if cfg.EnableExport {
		store, err = exportReport(ctx, cfg, log, rep)
		if err != nil {
			return err
		}
		defer func() {
			if err := store.Close(); err != nil {
				log.Warn().Err(err).Msg("Failed to close database")
			}
		}()
	}

	var (
		review *ai.Review
		stats  *ai.Stats
	)
	if cfg.EnableAIReview {
		review, stats, err = reviewReport(ctx, cfg, log, text)
		if err != nil {
			// The report is already delivered; a failed review only drops the commentary
			log.Warn().Err(err).Msg("AI review failed, continuing without it")
		} else if store != nil {
			if err := store.SaveReview(ctx, rep.RunID, review.Status, review); err != nil {
				log.Warn().Err(err).Msg("Failed to save review to database")
			}
		}
	}

	if cfg.EnableTelegram {
		if err := notify(cfg, log, rep, review, stats); err != nil {
			return err
		}
	}

	log.Info().
		Float64("total_duration_s", time.Since(startTime).Seconds()).
		Msg("All operations completed successfully")

	return nil
}

// buildReport loads the log directory, computes the report and delivers it
// according to the configured mode. It returns the report and its text.
func buildReport(cfg *config.Config, log *logging.SecureLogger, out io.Writer) (*report.Report, string, error) {
	log.Info().Str("directory", cfg.InputDirectory).Msg("Loading meter logs...")

	loader := meter.NewLoader(cfg.MaxFileSizeMB, cfg.ReportFilename)
	files, err := loader.LoadDirectory(cfg.InputDirectory)
	if err != nil {
		return nil, "", err
	}

	for _, f := range files {
		if !f.OK() {
			log.Warn().Str("file", f.Path).Err(f.Err).Msg("Skipping log file")
			continue
		}
		log.Debug().
			Str("file", f.Path).
			Int("records", len(f.Records)).
			Int("skipped_lines", f.Skipped).
			Msg("Loaded log file")
	}

	ds, err := meter.Merge(files)
	if err != nil {
		if errors.Is(err, meter.ErrEmptyDataset) {
			return nil, "", fmt.Errorf("no usable data in %s: %w", cfg.InputDirectory, err)
		}
		return nil, "", err
	}

	start, end := ds.TimeRange()
	log.Info().
		Int("records", ds.Len()).
		Int("files", len(ds.Accepted())).
		Int("rejected", len(ds.Rejected())).
		Time("start", start).
		Time("end", end).
		Msg("Dataset merged")

	rep := report.NewAssembler(cfg.OutlierPreviewLimit).Assemble(ds, cfg.InputDirectory)
	logFindings(log, rep)

	text := report.Render(rep)
	saved, err := report.NewSink(out, cfg.InputDirectory, cfg.ReportFilename).Deliver(cfg.ReportMode, text)
	if err != nil {
		return nil, "", err
	}
	if saved != "" {
		log.Info().Str("path", saved).Msg("Report saved")
	}

	return rep, text, nil
}

func logFindings(log *logging.SecureLogger, rep *report.Report) {
	for _, s := range rep.Outliers {
		log.Info().
			Str("field", string(s.Field)).
			Int("outliers", s.Total).
			Float64("lower", s.Bounds.Lower).
			Float64("upper", s.Bounds.Upper).
			Msg("Outlier detection")
	}

	for _, d := range rep.Daily {
		if d.ResetSuspected() {
			log.Warn().
				Str("date", d.Date.Format("2006-01-02")).
				Int("resets", d.CounterResets).
				Msg("Energy counter decreased, kWh estimate may be understated")
		}
	}

	log.Info().Float64("total_kwh", rep.TotalKWh()).Msg("Energy estimate")
}

func exportReport(ctx context.Context, cfg *config.Config, log *logging.SecureLogger, rep *report.Report) (*storage.Storage, error) {
	store, err := storage.New(cfg.ExportPath)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}

	if err := store.ExportRun(ctx, rep); err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("failed to export run: %w", err)
	}

	logExportStatistics(log, store, cfg.ExportPath)

	return store, nil
}

// statisticsReader reports row counts of an export
type statisticsReader interface {
	GetStatistics() (map[string]int, error)
}

func logExportStatistics(log *logging.SecureLogger, store statisticsReader, path string) {
	counts, err := store.GetStatistics()
	if err != nil {
		log.Warn().Err(err).Str("path", path).Msg("Failed to read export statistics")
		return
	}

	log.Info().
		Str("path", path).
		Interface("rows", counts).
		Msg("Run exported")
}

// createProvider builds the configured LLM provider
func createProvider(cfg *config.Config) (ai.Provider, error) {
	return ai.NewProvider(ai.ProviderConfig{
		Type:           ai.ProviderType(cfg.LLMProvider),
		APIKey:         cfg.AnthropicAPIKey,
		BaseURL:        cfg.GetLLMBaseURL(),
		Model:          cfg.GetLLMModel(),
		ProxyURL:       cfg.GetProxyURL(true),
		TimeoutSeconds: cfg.AITimeoutSeconds,
		MaxTokens:      cfg.AIMaxTokens,
	})
}

func reviewReport(ctx context.Context, cfg *config.Config, log *logging.SecureLogger, text string) (*ai.Review, *ai.Stats, error) {
	provider, err := createProvider(cfg)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialize LLM provider: %w", err)
	}

	if checker, ok := provider.(ai.ConnectionChecker); ok {
		if err := checker.CheckConnection(ctx); err != nil {
			return nil, nil, err
		}
	}

	text = preprocessReport(cfg, log, text)

	log.Info().
		Str("provider", provider.GetProviderName()).
		Str("model", cfg.GetLLMModel()).
		Msg("Requesting AI review...")

	review, stats, err := provider.Review(ctx, ai.GetSystemPrompt(), ai.GetUserPrompt(text))
	if err != nil {
		return nil, nil, err
	}

	log.Info().
		Str("status", review.Status).
		Int("anomalies", len(review.Anomalies)).
		Int("recommendations", len(review.Recommendations)).
		Float64("cost_usd", stats.CostUSD).
		Float64("duration_s", stats.DurationSeconds).
		Msg("AI review completed")

	log.Debug().
		Int("input_tokens", stats.InputTokens).
		Int("output_tokens", stats.OutputTokens).
		Int("cache_creation_tokens", stats.CacheCreationTokens).
		Int("cache_read_tokens", stats.CacheReadTokens).
		Msg("Token usage details")

	return review, stats, nil
}

// preprocessReport compresses the report text when it exceeds the token budget
func preprocessReport(cfg *config.Config, log *logging.SecureLogger, text string) string {
	if !cfg.EnablePreprocessing {
		return text
	}

	preprocessor := ai.NewPreprocessor(cfg.MaxPreprocessingTokens)
	if !preprocessor.ShouldProcess(text) {
		return text
	}

	processed := preprocessor.Process(text)
	log.Info().
		Int("original_tokens", ai.EstimateTokens(text)).
		Int("processed_tokens", ai.EstimateTokens(processed)).
		Msg("Report text preprocessed for review")

	return processed
}

func notify(cfg *config.Config, log *logging.SecureLogger, rep *report.Report, review *ai.Review, stats *ai.Stats) error {
	client, err := notification.NewTelegramClient(cfg.TelegramBotToken, cfg.TelegramArchiveChannel, cfg.TelegramAlertsChannel)
	if err != nil {
		return fmt.Errorf("failed to initialize Telegram client: %w", err)
	}
	defer func() {
		if err := client.Close(); err != nil {
			log.Warn().Err(err).Msg("Failed to close Telegram client")
		}
	}()

	if name, ok := client.GetBotInfo()["username"].(string); ok {
		log.Info().Str("username", name).Msg("Telegram bot initialized")
	}

	if err := client.SendReport(rep, review, stats); err != nil {
		return fmt.Errorf("failed to send Telegram notification: %w", err)
	}

	if cfg.HasAlertsChannel() && notification.ShouldAlert(rep, review) {
		log.Info().Msg("Alert notification sent (run needs attention)")
	}

	return nil
}
