package config

import (
	"crypto/subtle"
	"flag"
	"fmt"
	"os"
	"regexp"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/olegiv/meterlog-analyzer-go/internal/report"
)

// CLIOptions holds command-line argument overrides
type CLIOptions struct {
	Directory   string // -dir: directory with DDMMYYYY.txt meter logs
	ReportMode  string // -report-mode: display, save, both, none
	Export      bool   // -export: write the run to the SQLite export
	Review      bool   // -review: request an AI review of the report
	Notify      bool   // -notify: send the report digest to Telegram
	ShowHelp    bool   // -help: show usage
	ShowVersion bool   // -version: show version
}

// ParseCLI parses command-line arguments and returns CLIOptions
func ParseCLI() *CLIOptions {
	opts := &CLIOptions{}

	flag.StringVar(&opts.Directory, "dir", "", "Directory containing DDMMYYYY.txt meter logs (overrides METER_LOG_DIR)")
	flag.StringVar(&opts.ReportMode, "report-mode", "", "Report delivery: display, save, both, none (overrides REPORT_MODE)")
	flag.BoolVar(&opts.Export, "export", false, "Export the run to SQLite (same as ENABLE_EXPORT=true)")
	flag.BoolVar(&opts.Review, "review", false, "Request an AI review of the report (same as ENABLE_AI_REVIEW=true)")
	flag.BoolVar(&opts.Notify, "notify", false, "Send the report digest to Telegram (same as ENABLE_TELEGRAM=true)")
	flag.BoolVar(&opts.ShowHelp, "help", false, "Show usage information")
	flag.BoolVar(&opts.ShowVersion, "version", false, "Show version information")

	flag.Usage = func() {
		_, _ = fmt.Fprintf(os.Stderr, "Meter Log Analyzer - statistics, daily energy and outliers from power-meter logs\n\n")
		_, _ = fmt.Fprintf(os.Stderr, "Usage: %s [options]\n\n", os.Args[0])
		_, _ = fmt.Fprintf(os.Stderr, "Options:\n")
		flag.PrintDefaults()
		_, _ = fmt.Fprintf(os.Stderr, "\nExamples:\n")
		_, _ = fmt.Fprintf(os.Stderr, "  %s -dir ./logs\n", os.Args[0])
		_, _ = fmt.Fprintf(os.Stderr, "  %s -dir ./logs -report-mode both\n", os.Args[0])
		_, _ = fmt.Fprintf(os.Stderr, "  %s -dir ./logs -report-mode none -export -notify\n", os.Args[0])
		_, _ = fmt.Fprintf(os.Stderr, "\nEnvironment variables can be set in .env file or exported directly.\n")
		_, _ = fmt.Fprintf(os.Stderr, "CLI arguments override environment variables.\n")
	}

	flag.Parse()

	return opts
}

// PrintUsage prints the command-line usage information
func PrintUsage() {
	flag.Usage()
}

// Config holds all application configuration
type Config struct {
	// Input
	InputDirectory string
	MaxFileSizeMB  int

	// Report
	ReportMode          report.Mode
	ReportFilename      string
	OutlierPreviewLimit int

	// Application
	LogLevel  string
	AppLogDir string

	// SQLite export
	EnableExport bool
	ExportPath   string

	// AI review
	EnableAIReview bool
	LLMProvider    string // "anthropic" (default), "ollama" or "lmstudio"

	AnthropicAPIKey string
	ClaudeModel     string

	OllamaBaseURL string // e.g., "http://localhost:11434"
	OllamaModel   string // e.g., "llama3.3:latest"

	LMStudioBaseURL string // e.g., "http://localhost:1234"
	LMStudioModel   string

	AITimeoutSeconds int
	AIMaxTokens      int

	// Preprocessing of the report text before review
	EnablePreprocessing    bool
	MaxPreprocessingTokens int

	// Telegram
	EnableTelegram         bool
	TelegramBotToken       string
	TelegramArchiveChannel int64
	TelegramAlertsChannel  int64 // Optional

	// Proxy
	HTTPProxy  string
	HTTPSProxy string
}

var telegramTokenRegex = regexp.MustCompile(`^\d+:[A-Za-z0-9_-]+$`)

// Load loads configuration from .env file and environment variables
// Priority: .env file > OS environment variables
// For CLI overrides, use LoadWithCLI instead
func Load() (*Config, error) {
	return LoadWithCLI(nil)
}

// LoadWithCLI loads configuration with CLI argument overrides
// Priority: CLI args > .env file > OS environment variables
func LoadWithCLI(cli *CLIOptions) (*Config, error) {
	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// godotenv.Load() sets OS env vars from .env, which viper will then read
	_ = godotenv.Load()

	setDefaults()

	config := &Config{
		InputDirectory:      viper.GetString("METER_LOG_DIR"),
		MaxFileSizeMB:       viper.GetInt("MAX_FILE_SIZE_MB"),
		ReportMode:          report.Mode(strings.ToLower(viper.GetString("REPORT_MODE"))),
		ReportFilename:      viper.GetString("REPORT_FILENAME"),
		OutlierPreviewLimit: viper.GetInt("OUTLIER_PREVIEW_LIMIT"),

		LogLevel:  viper.GetString("LOG_LEVEL"),
		AppLogDir: viper.GetString("APP_LOG_DIR"),

		EnableExport: viper.GetBool("ENABLE_EXPORT"),
		ExportPath:   viper.GetString("EXPORT_PATH"),

		EnableAIReview:   viper.GetBool("ENABLE_AI_REVIEW"),
		LLMProvider:      viper.GetString("LLM_PROVIDER"),
		AnthropicAPIKey:  viper.GetString("ANTHROPIC_API_KEY"),
		ClaudeModel:      viper.GetString("CLAUDE_MODEL"),
		OllamaBaseURL:    viper.GetString("OLLAMA_BASE_URL"),
		OllamaModel:      viper.GetString("OLLAMA_MODEL"),
		LMStudioBaseURL:  viper.GetString("LMSTUDIO_BASE_URL"),
		LMStudioModel:    viper.GetString("LMSTUDIO_MODEL"),
		AITimeoutSeconds: viper.GetInt("AI_TIMEOUT_SECONDS"),
		AIMaxTokens:      viper.GetInt("AI_MAX_TOKENS"),

		EnablePreprocessing:    viper.GetBool("ENABLE_PREPROCESSING"),
		MaxPreprocessingTokens: viper.GetInt("MAX_PREPROCESSING_TOKENS"),

		EnableTelegram:         viper.GetBool("ENABLE_TELEGRAM"),
		TelegramBotToken:       viper.GetString("TELEGRAM_BOT_TOKEN"),
		TelegramArchiveChannel: viper.GetInt64("TELEGRAM_CHANNEL_ARCHIVE_ID"),
		TelegramAlertsChannel:  viper.GetInt64("TELEGRAM_CHANNEL_ALERTS_ID"),

		HTTPProxy:  viper.GetString("HTTP_PROXY"),
		HTTPSProxy: viper.GetString("HTTPS_PROXY"),
	}

	config.applyCLI(cli)

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return config, nil
}

// applyCLI applies command-line overrides (highest priority). Boolean flags can only
// switch a feature on.
func (c *Config) applyCLI(cli *CLIOptions) {
	if cli == nil {
		return
	}
	if cli.Directory != "" {
		c.InputDirectory = cli.Directory
	}
	if cli.ReportMode != "" {
		c.ReportMode = report.Mode(strings.ToLower(cli.ReportMode))
	}
	if cli.Export {
		c.EnableExport = true
	}
	if cli.Review {
		c.EnableAIReview = true
	}
	if cli.Notify {
		c.EnableTelegram = true
	}
}

// setDefaults sets default configuration values
func setDefaults() {
	viper.SetDefault("METER_LOG_DIR", "logs")
	viper.SetDefault("MAX_FILE_SIZE_MB", 50)
	viper.SetDefault("REPORT_MODE", string(report.ModeDisplay))
	viper.SetDefault("REPORT_FILENAME", report.DefaultFilename)
	viper.SetDefault("OUTLIER_PREVIEW_LIMIT", report.DefaultPreviewLimit)

	viper.SetDefault("LOG_LEVEL", "info")
	viper.SetDefault("APP_LOG_DIR", "./data/log")

	viper.SetDefault("ENABLE_EXPORT", false)
	viper.SetDefault("EXPORT_PATH", "./data/meter.db")

	viper.SetDefault("ENABLE_AI_REVIEW", false)
	viper.SetDefault("LLM_PROVIDER", "anthropic")
	viper.SetDefault("CLAUDE_MODEL", "claude-sonnet-4-5-20250929")
	viper.SetDefault("OLLAMA_BASE_URL", "http://localhost:11434")
	viper.SetDefault("OLLAMA_MODEL", "llama3.3:latest")
	viper.SetDefault("LMSTUDIO_BASE_URL", "http://localhost:1234")
	viper.SetDefault("LMSTUDIO_MODEL", "local-model")
	viper.SetDefault("AI_TIMEOUT_SECONDS", 120)
	viper.SetDefault("AI_MAX_TOKENS", 4000)
	viper.SetDefault("ENABLE_PREPROCESSING", true)
	viper.SetDefault("MAX_PREPROCESSING_TOKENS", 100000)

	viper.SetDefault("ENABLE_TELEGRAM", false)
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if strings.TrimSpace(c.InputDirectory) == "" {
		return fmt.Errorf("METER_LOG_DIR is required")
	}

	if _, err := report.ParseMode(string(c.ReportMode)); err != nil {
		return fmt.Errorf("REPORT_MODE must be one of: %s (got: %s)",
			strings.Join(report.ValidModes(), ", "), c.ReportMode)
	}

	if c.ReportFilename == "" || strings.ContainsAny(c.ReportFilename, `/\`) {
		return fmt.Errorf("REPORT_FILENAME must be a plain file name")
	}

	if c.OutlierPreviewLimit < 1 || c.OutlierPreviewLimit > 1000 {
		return fmt.Errorf("OUTLIER_PREVIEW_LIMIT must be between 1 and 1000")
	}

	if c.MaxFileSizeMB < 1 || c.MaxFileSizeMB > 1024 {
		return fmt.Errorf("MAX_FILE_SIZE_MB must be between 1 and 1024")
	}

	validLogLevels := map[string]bool{
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
	}
	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		return fmt.Errorf("LOG_LEVEL must be one of: debug, info, warn, error")
	}

	if c.EnableExport && c.ExportPath == "" {
		return fmt.Errorf("EXPORT_PATH is required when ENABLE_EXPORT=true")
	}

	if c.EnableAIReview {
		if err := c.validateLLMProvider(); err != nil {
			return err
		}
		if c.AITimeoutSeconds < 30 || c.AITimeoutSeconds > 600 {
			return fmt.Errorf("AI_TIMEOUT_SECONDS must be between 30 and 600")
		}
		if c.AIMaxTokens < 1000 || c.AIMaxTokens > 16000 {
			return fmt.Errorf("AI_MAX_TOKENS must be between 1000 and 16000")
		}
		if c.EnablePreprocessing && c.MaxPreprocessingTokens < 1000 {
			return fmt.Errorf("MAX_PREPROCESSING_TOKENS must be at least 1000")
		}
	}

	if c.EnableTelegram {
		if err := c.validateTelegram(); err != nil {
			return err
		}
	}

	return nil
}

// validateTelegram validates the bot token and channel IDs
func (c *Config) validateTelegram() error {
	if c.TelegramBotToken == "" {
		return fmt.Errorf("TELEGRAM_BOT_TOKEN is required when ENABLE_TELEGRAM=true")
	}
	if !telegramTokenRegex.MatchString(c.TelegramBotToken) {
		return fmt.Errorf("TELEGRAM_BOT_TOKEN has invalid format (expected: 'number:token')")
	}

	if c.TelegramArchiveChannel == 0 {
		return fmt.Errorf("TELEGRAM_CHANNEL_ARCHIVE_ID is required when ENABLE_TELEGRAM=true")
	}
	if c.TelegramArchiveChannel > -100 {
		return fmt.Errorf("TELEGRAM_CHANNEL_ARCHIVE_ID must be a supergroup/channel ID (starts with -100)")
	}

	if c.TelegramAlertsChannel != 0 && c.TelegramAlertsChannel > -100 {
		return fmt.Errorf("TELEGRAM_CHANNEL_ALERTS_ID must be a supergroup/channel ID (starts with -100)")
	}

	return nil
}

// HasAlertsChannel returns true if alerts channel is configured
func (c *Config) HasAlertsChannel() bool {
	return c.TelegramAlertsChannel != 0
}

// GetProxyURL returns the appropriate proxy URL for HTTP/HTTPS requests
func (c *Config) GetProxyURL(isHTTPS bool) string {
	if isHTTPS && c.HTTPSProxy != "" {
		return c.HTTPSProxy
	}
	if c.HTTPProxy != "" {
		return c.HTTPProxy
	}
	return ""
}

// constantTimePrefixMatch checks if s starts with prefix using constant-time comparison.
// Returns false if s is shorter than prefix.
func constantTimePrefixMatch(s, prefix string) bool {
	if len(s) < len(prefix) {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(s[:len(prefix)]), []byte(prefix)) == 1
}

// validateLLMProvider validates LLM provider configuration
func (c *Config) validateLLMProvider() error {
	switch c.LLMProvider {
	case "anthropic":
		if c.AnthropicAPIKey == "" {
			return fmt.Errorf("ANTHROPIC_API_KEY is required when LLM_PROVIDER=anthropic")
		}
		if !constantTimePrefixMatch(c.AnthropicAPIKey, "sk-ant-") {
			return fmt.Errorf("ANTHROPIC_API_KEY must start with 'sk-ant-'")
		}
		if c.ClaudeModel == "" {
			return fmt.Errorf("CLAUDE_MODEL is required when LLM_PROVIDER=anthropic")
		}

	case "ollama":
		if c.OllamaModel == "" {
			return fmt.Errorf("OLLAMA_MODEL is required when LLM_PROVIDER=ollama")
		}
		if err := validateBaseURL("OLLAMA_BASE_URL", c.OllamaBaseURL); err != nil {
			return err
		}

	case "lmstudio":
		// Model is optional for LM Studio (the loaded model answers)
		if err := validateBaseURL("LMSTUDIO_BASE_URL", c.LMStudioBaseURL); err != nil {
			return err
		}

	default:
		return fmt.Errorf("LLM_PROVIDER must be 'anthropic', 'ollama', or 'lmstudio' (got: %s)", c.LLMProvider)
	}

	return nil
}

func validateBaseURL(key, url string) error {
	if url == "" {
		return fmt.Errorf("%s is required", key)
	}
	if !strings.HasPrefix(url, "http://") && !strings.HasPrefix(url, "https://") {
		return fmt.Errorf("%s must start with 'http://' or 'https://'", key)
	}
	return nil
}

// GetLLMModel returns the model name for the current LLM provider
func (c *Config) GetLLMModel() string {
	switch c.LLMProvider {
	case "ollama":
		return c.OllamaModel
	case "lmstudio":
		return c.LMStudioModel
	default:
		return c.ClaudeModel
	}
}

// GetLLMBaseURL returns the server URL of a local LLM provider, or "" for Anthropic
func (c *Config) GetLLMBaseURL() string {
	switch c.LLMProvider {
	case "ollama":
		return c.OllamaBaseURL
	case "lmstudio":
		return c.LMStudioBaseURL
	default:
		return ""
	}
}
