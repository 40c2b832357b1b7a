package alerting

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// TelegramSink 通过 Telegram Bot API 推送消息。
type TelegramSink struct {
	botToken string
	chatID   string
	baseURL  string
	client   *http.Client
	logger   zerolog.Logger
}

// NewTelegramSink 构造 Telegram 告警通道。
func NewTelegramSink(botToken, chatID, baseURL string, timeout time.Duration, logger zerolog.Logger) *TelegramSink {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if baseURL == "" {
		baseURL = "https://api.telegram.org"
	}

	return &TelegramSink{
		botToken: botToken,
		chatID:   chatID,
		baseURL:  strings.TrimRight(baseURL, "/"),
		client:   &http.Client{Timeout: timeout},
		logger:   logger.With().Str("component", "alert_telegram").Logger(),
	}
}

func (s *TelegramSink) Name() string { return "telegram" }

// Send 调用 sendMessage API 推送文本。
func (s *TelegramSink) Send(ctx context.Context, alert Alert) error {
	payload := map[string]string{
		"chat_id": s.chatID,
		"text":    renderMessage(alert),
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal telegram payload: %w", err)
	}

	url := fmt.Sprintf("%s/bot%s/sendMessage", s.baseURL, s.botToken)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create telegram request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("send telegram request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("telegram 响应码异常: %d", resp.StatusCode)
	}

	var result struct {
		OK bool `json:"ok"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err == nil {
		if !result.OK {
			return fmt.Errorf("telegram 返回 ok=false")
		}
	}

	s.logger.Info().
		Str("pool", alert.Pool).
		Str("kind", string(alert.Kind)).
		Msg("告警已发送 (Telegram)")
	return nil
}

func renderMessage(alert Alert) string {
	builder := strings.Builder{}
	builder.WriteString(fmt.Sprintf("[Hokusai %s]\n", strings.ToUpper(string(alert.Priority))))
	builder.WriteString(fmt.Sprintf("Pool: %s\n", alert.Pool))
	builder.WriteString(fmt.Sprintf("Kind: %s\n", alert.Kind))
	builder.WriteString(fmt.Sprintf("Phase: %s\n", alert.Phase))
	builder.WriteString(fmt.Sprintf("Time: %s UTC\n", alert.Timestamp.UTC().Format(time.RFC3339)))
	builder.WriteString(fmt.Sprintf("Block: %d\n", alert.BlockHeight))
	builder.WriteString(alert.Message)
	builder.WriteString("\n")

	switch p := alert.Payload.(type) {
	case DeltaPayload:
		builder.WriteString(fmt.Sprintf("%s: %s -> %s (%s%% over %s)\n",
			p.Metric, p.From.StringFixed(6), p.To.StringFixed(6), p.ChangePct.StringFixed(2), p.Window))
	case ThresholdPayload:
		builder.WriteString(fmt.Sprintf("%s: %s (threshold %s)\n",
			p.Metric, p.Value.StringFixed(6), p.Threshold.StringFixed(6)))
	case InvariantPayload:
		builder.WriteString(fmt.Sprintf("Ratio: expected %s, actual %s (deviation %s%%, tolerance %s%%)\n",
			p.ExpectedRatio.StringFixed(6), p.ActualRatio.StringFixed(6),
			p.DeviationPct.StringFixed(2), p.TolerancePct.StringFixed(2)))
	case TransitionPayload:
		builder.WriteString(fmt.Sprintf("Transition: %s -> %s (via %s, reserve %s)\n",
			p.From, p.To, p.Source, p.Reserve.StringFixed(6)))
	case PausedPayload:
		builder.WriteString(fmt.Sprintf("Paused since: %s UTC (%s)\n",
			p.Since.UTC().Format(time.RFC3339), p.For))
	}
	return builder.String()
}

var _ Sink = (*TelegramSink)(nil)
