package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// TelegramConfig holds Bot API credentials and tuning.
type TelegramConfig struct {
	APIURL  string        `mapstructure:"api_url"`
	Token   string        `mapstructure:"token"`
	ChatID  string        `mapstructure:"chat_id"`
	Timeout time.Duration `mapstructure:"timeout"`
}

// Telegram delivers messages through the Bot API: sendMessage for the
// text, then sendPhoto as a multipart upload when an image is attached.
// A token-bucket limiter keeps bursts under the Bot API's per-chat cap.
type Telegram struct {
	cfg     TelegramConfig
	client  *http.Client
	limiter *rate.Limiter
	logger  *zap.Logger
}

// NewTelegram validates the config and returns a Telegram notifier.
func NewTelegram(cfg TelegramConfig, logger *zap.Logger) (*Telegram, error) {
	if cfg.Token == "" || cfg.ChatID == "" {
		return nil, fmt.Errorf("telegram notifier: token and chat_id are required")
	}
	if cfg.APIURL == "" {
		cfg.APIURL = "https://api.telegram.org"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	return &Telegram{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.Timeout},
		// Bot API allows ~1 msg/s per chat sustained.
		limiter: rate.NewLimiter(rate.Limit(1), 3),
		logger:  logger,
	}, nil
}

func (t *Telegram) Name() string { return "telegram" }

// Notify sends the message text, then the attached image if any. A text
// delivery failure aborts the send; an image failure is logged and the
// message still counts as delivered.
func (t *Telegram) Notify(ctx context.Context, msg Message) error {
	if err := t.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("telegram rate limit wait: %w", err)
	}

	if err := t.sendMessage(ctx, msg.Text); err != nil {
		return err
	}

	if msg.ImagePath != "" {
		if err := t.sendPhoto(ctx, msg.ImagePath); err != nil {
			t.logger.Warn("telegram photo delivery failed",
				zap.String("image", msg.ImagePath),
				zap.Error(err),
			)
		}
	}

	return nil
}

func (t *Telegram) sendMessage(ctx context.Context, text string) error {
	form := url.Values{}
	form.Set("chat_id", t.cfg.ChatID)
	form.Set("text", text)

	endpoint := fmt.Sprintf("%s/bot%s/sendMessage", t.cfg.APIURL, t.cfg.Token)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("telegram sendMessage: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	return t.do(req, "sendMessage")
}

func (t *Telegram) sendPhoto(ctx context.Context, imagePath string) error {
	f, err := os.Open(imagePath)
	if err != nil {
		return fmt.Errorf("telegram sendPhoto open: %w", err)
	}
	defer f.Close()

	var body strings.Builder
	w := multipart.NewWriter(&body)
	if err := w.WriteField("chat_id", t.cfg.ChatID); err != nil {
		return fmt.Errorf("telegram sendPhoto: %w", err)
	}
	part, err := w.CreateFormFile("photo", filepath.Base(imagePath))
	if err != nil {
		return fmt.Errorf("telegram sendPhoto: %w", err)
	}
	if _, err := io.Copy(part, f); err != nil {
		return fmt.Errorf("telegram sendPhoto read: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("telegram sendPhoto: %w", err)
	}

	endpoint := fmt.Sprintf("%s/bot%s/sendPhoto", t.cfg.APIURL, t.cfg.Token)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(body.String()))
	if err != nil {
		return fmt.Errorf("telegram sendPhoto: %w", err)
	}
	req.Header.Set("Content-Type", w.FormDataContentType())

	return t.do(req, "sendPhoto")
}

// do executes the request and checks both HTTP status and the Bot API
// "ok" envelope.
func (t *Telegram) do(req *http.Request, method string) error {
	resp, err := t.client.Do(req)
	if err != nil {
		return fmt.Errorf("telegram %s: %w", method, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("telegram %s: status %d: %s", method, resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var envelope struct {
		OK          bool   `json:"ok"`
		Description string `json:"description"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		return fmt.Errorf("telegram %s: decoding response: %w", method, err)
	}
	if !envelope.OK {
		return fmt.Errorf("telegram %s: API rejected request: %s", method, envelope.Description)
	}

	return nil
}
