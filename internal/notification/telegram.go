package notification

import (
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"
	"time"
	"unicode/utf8"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/olegiv/meterlog-analyzer-go/internal/ai"
	internalerrors "github.com/olegiv/meterlog-analyzer-go/internal/errors"
	"github.com/olegiv/meterlog-analyzer-go/internal/report"
)

const (
	maxMessageLength = 4096
	// minMessageInterval is the minimum time between messages to avoid Telegram rate limits
	minMessageInterval = 1 * time.Second
	maxRetries         = 3
	// baseRetryDelay doubles on each attempt
	baseRetryDelay = 2 * time.Second
	// maxDailyLines caps the per-day energy list in a digest
	maxDailyLines = 14
)

// sender is the part of the bot API used for delivery.
type sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// TelegramClient posts report digests to Telegram channels
type TelegramClient struct {
	bot             *tgbotapi.BotAPI
	sender          sender
	archiveChannel  int64
	alertsChannel   int64
	hostname        string
	lastMessageTime time.Time
	sleep           func(time.Duration)
}

// NewTelegramClient creates a new Telegram client
func NewTelegramClient(botToken string, archiveChannel, alertsChannel int64) (*TelegramClient, error) {
	bot, err := tgbotapi.NewBotAPI(botToken)
	if err != nil {
		return nil, internalerrors.Wrapf(err, "failed to create Telegram bot")
	}

	hostname, err := os.Hostname()
	if err != nil {
		hostname = "unknown"
	}

	return &TelegramClient{
		bot:            bot,
		sender:         bot,
		archiveChannel: archiveChannel,
		alertsChannel:  alertsChannel,
		hostname:       hostname,
		sleep:          time.Sleep,
	}, nil
}

// SendReport posts the report digest to the archive channel and, when the run
// found anomalies or the review asks for attention, to the alerts channel.
// review and stats may be nil.
func (t *TelegramClient) SendReport(r *report.Report, review *ai.Review, stats *ai.Stats) error {
	message := t.formatMessage(r, review, stats)

	if err := t.sendToChannel(t.archiveChannel, message); err != nil {
		return fmt.Errorf("failed to send to archive channel: %w", err)
	}

	if t.alertsChannel != 0 && ShouldAlert(r, review) {
		if err := t.sendToChannel(t.alertsChannel, message); err != nil {
			return fmt.Errorf("failed to send to alerts channel: %w", err)
		}
	}

	return nil
}

// ShouldAlert reports whether a run belongs in the alerts channel.
func ShouldAlert(r *report.Report, review *ai.Review) bool {
	return r.HasAnomalies() || (review != nil && ai.ShouldTriggerAlert(review.Status))
}

func (t *TelegramClient) formatMessage(r *report.Report, review *ai.Review, stats *ai.Stats) string {
	const listItem = "%d\\. %s\n"

	var msg strings.Builder

	msg.WriteString("⚡ *Power Meter Report*\n")
	fmt.Fprintf(&msg, "🖥 Host\\: %s\n", escapeMarkdown(t.hostname))
	fmt.Fprintf(&msg, "🆔 Run\\: %s\n", escapeMarkdown(r.RunID))
	fmt.Fprintf(&msg, "📅 Generated\\: %s\n", escapeMarkdown(r.GeneratedAt.Format("2006-01-02 15:04:05 MST")))
	if review != nil {
		fmt.Fprintf(&msg, "%s *Status\\:* %s\n", ai.GetStatusEmoji(review.Status), escapeMarkdown(review.Status))
	}
	msg.WriteString("\n")

	msg.WriteString("📋 *Dataset*\n")
	fmt.Fprintf(&msg, "• Records\\: %d\n", r.Records)
	fmt.Fprintf(&msg, "• Files\\: %d accepted, %d rejected\n", len(r.Accepted), len(r.Rejected))
	if r.Records > 0 {
		fmt.Fprintf(&msg, "• Period\\: %s\n", escapeMarkdown(fmt.Sprintf("%s to %s (%s)",
			r.Start.Format("2006-01-02 15:04"), r.End.Format("2006-01-02 15:04"), report.FormatDuration(r))))
	}
	msg.WriteString("\n")

	fmt.Fprintf(&msg, "🔋 *Energy* \\(%s kWh total\\)\n", escapeMarkdown(fmt.Sprintf("%.3f", r.TotalKWh())))
	for i, d := range r.Daily {
		if i == maxDailyLines {
			fmt.Fprintf(&msg, "• %s\n", escapeMarkdown(fmt.Sprintf("... %d more day(s)", len(r.Daily)-maxDailyLines)))
			break
		}
		line := fmt.Sprintf("%s: %.3f kWh", d.Date.Format("2006-01-02"), d.KWhEstimate)
		if d.ResetSuspected() {
			line += " (counter reset)"
		}
		fmt.Fprintf(&msg, "• %s\n", escapeMarkdown(line))
	}
	msg.WriteString("\n")

	fmt.Fprintf(&msg, "📈 *Outliers* \\(%d\\)\n", r.OutlierTotal())
	for _, s := range r.Outliers {
		line := fmt.Sprintf("%s: %d outside [%.3f, %.3f]", s.Label, s.Total, s.Bounds.Lower, s.Bounds.Upper)
		fmt.Fprintf(&msg, "• %s\n", escapeMarkdown(line))
	}
	msg.WriteString("\n")

	if len(r.Rejected) > 0 {
		fmt.Fprintf(&msg, "🚫 *Rejected Files* \\(%d\\)\n", len(r.Rejected))
		for i, f := range r.Rejected {
			fmt.Fprintf(&msg, listItem, i+1, escapeMarkdown(f.File+": "+f.Error))
		}
		msg.WriteString("\n")
	}

	if review != nil {
		writeReview(&msg, review, listItem)
	}

	if stats != nil {
		msg.WriteString("🤖 *Review Stats*\n")
		fmt.Fprintf(&msg, "• Model\\: %s\n", escapeMarkdown(stats.Provider+" "+stats.Model))
		fmt.Fprintf(&msg, "• Tokens\\: %d in, %d out\n", stats.InputTokens, stats.OutputTokens)
		fmt.Fprintf(&msg, "• Cost\\: %s\n", escapeMarkdown(fmt.Sprintf("$%.4f", stats.CostUSD)))
		fmt.Fprintf(&msg, "• Duration\\: %s\n", escapeMarkdown(fmt.Sprintf("%.2fs", stats.DurationSeconds)))
	}

	return msg.String()
}

func writeReview(msg *strings.Builder, review *ai.Review, listItem string) {
	msg.WriteString("📊 *Summary*\n")
	msg.WriteString(escapeMarkdown(review.Summary))
	msg.WriteString("\n\n")

	lists := []struct {
		title string
		items []string
	}{
		{"🔴 *Anomalies*", review.Anomalies},
		{"🔎 *Observations*", review.Observations},
		{"💡 *Recommendations*", review.Recommendations},
	}
	for _, l := range lists {
		if len(l.items) == 0 {
			continue
		}
		fmt.Fprintf(msg, "%s \\(%d\\)\n", l.title, len(l.items))
		for i, item := range l.items {
			fmt.Fprintf(msg, listItem, i+1, escapeMarkdown(item))
		}
		msg.WriteString("\n")
	}

	if len(review.Metrics) > 0 {
		keys := make([]string, 0, len(review.Metrics))
		for k := range review.Metrics {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		msg.WriteString("📐 *Key Metrics*\n")
		for _, k := range keys {
			fmt.Fprintf(msg, "• %s\\: %s\n", escapeMarkdown(k), escapeMarkdown(fmt.Sprintf("%v", review.Metrics[k])))
		}
		msg.WriteString("\n")
	}
}

// sendToChannel sends a message to a Telegram channel with rate limiting
func (t *TelegramClient) sendToChannel(channelID int64, message string) error {
	for _, part := range splitMessage(message) {
		t.waitForRateLimit()

		msgConfig := tgbotapi.NewMessage(channelID, part)
		msgConfig.ParseMode = tgbotapi.ModeMarkdownV2

		if err := t.sendWithRetry(msgConfig); err != nil {
			return err
		}

		t.lastMessageTime = time.Now()
	}

	return nil
}

// waitForRateLimit ensures minimum interval between messages
func (t *TelegramClient) waitForRateLimit() {
	if t.lastMessageTime.IsZero() {
		return
	}

	if elapsed := time.Since(t.lastMessageTime); elapsed < minMessageInterval {
		t.sleep(minMessageInterval - elapsed)
	}
}

// sendWithRetry sends a message with exponential backoff retry
func (t *TelegramClient) sendWithRetry(msgConfig tgbotapi.MessageConfig) error {
	var lastErr error

	for attempt := 1; attempt <= maxRetries; attempt++ {
		_, err := t.sender.Send(msgConfig)
		if err == nil {
			return nil
		}

		lastErr = err
		if attempt == maxRetries {
			break
		}

		if isRateLimitError(err) {
			t.sleep(time.Duration(extractRetryAfter(err)) * time.Second)
			continue
		}

		t.sleep(baseRetryDelay * time.Duration(1<<(attempt-1))) // 2s, 4s
	}

	return internalerrors.Wrapf(lastErr, "failed to send message after %d retries", maxRetries)
}

// isRateLimitError checks if the error is a Telegram rate limit error (429)
func isRateLimitError(err error) bool {
	if err == nil {
		return false
	}
	errStr := err.Error()
	return strings.Contains(errStr, "429") || strings.Contains(errStr, "Too Many Requests")
}

// extractRetryAfter returns the retry_after seconds from a rate limit error,
// or 30 when the error carries none.
func extractRetryAfter(err error) int {
	if err == nil {
		return 0
	}

	var tgErr *tgbotapi.Error
	if errors.As(err, &tgErr) && tgErr.RetryAfter > 0 {
		return tgErr.RetryAfter
	}

	// e.g. "Too Many Requests: retry after 30"
	errStr := err.Error()
	if idx := strings.Index(strings.ToLower(errStr), "retry after "); idx != -1 {
		var seconds int
		if _, err := fmt.Sscanf(errStr[idx+len("retry after "):], "%d", &seconds); err == nil {
			return seconds
		}
	}

	return 30
}

// splitMessage splits a long message on line boundaries
func splitMessage(message string) []string {
	if len(message) <= maxMessageLength {
		return []string{message}
	}

	var messages []string
	var current strings.Builder

	for _, line := range strings.Split(message, "\n") {
		if current.Len()+len(line)+1 > maxMessageLength {
			if current.Len() > 0 {
				messages = append(messages, current.String())
				current.Reset()
			}

			if len(line) > maxMessageLength {
				messages = append(messages, splitLine(line, maxMessageLength)...)
				continue
			}
		}

		current.WriteString(line)
		current.WriteString("\n")
	}

	if current.Len() > 0 {
		messages = append(messages, current.String())
	}

	return messages
}

// splitLine cuts a line into chunks of at most limit bytes. Cuts fall on rune
// boundaries and never between a backslash and the character it escapes.
func splitLine(line string, limit int) []string {
	var chunks []string
	for len(line) > limit {
		end := limit
		for end > 0 && !utf8.RuneStart(line[end]) {
			end--
		}
		if trailingBackslashes(line[:end])%2 == 1 {
			end--
		}
		if end <= 0 {
			// a single rune wider than limit
			_, size := utf8.DecodeRuneInString(line)
			end = size
		}
		chunks = append(chunks, line[:end])
		line = line[end:]
	}
	if line != "" {
		chunks = append(chunks, line)
	}
	return chunks
}

func trailingBackslashes(s string) int {
	n := 0
	for i := len(s) - 1; i >= 0 && s[i] == '\\'; i-- {
		n++
	}
	return n
}

// markdownEscaper escapes the MarkdownV2 special characters.
// See https://core.telegram.org/bots/api#markdownv2-style
var markdownEscaper = func() *strings.Replacer {
	var pairs []string
	for _, c := range []string{"\\", "_", "*", "[", "]", "(", ")", "~", "`", ">", "#", "+", "-", "=", "|", "{", "}", ".", "!", ":"} {
		pairs = append(pairs, c, "\\"+c)
	}
	return strings.NewReplacer(pairs...)
}()

func escapeMarkdown(text string) string {
	return markdownEscaper.Replace(text)
}

// GetBotInfo returns information about the bot
func (t *TelegramClient) GetBotInfo() map[string]any {
	info := map[string]any{
		"archive_channel": t.archiveChannel,
		"alerts_channel":  t.alertsChannel,
		"hostname":        t.hostname,
	}
	if t.bot != nil {
		info["username"] = t.bot.Self.UserName
	}
	return info
}

// Close closes the Telegram client
func (t *TelegramClient) Close() error {
	if t.bot != nil {
		t.bot.StopReceivingUpdates()
	}
	return nil
}
