package telegram

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/celiboy93/supaimage/internal/config"
	"github.com/celiboy93/supaimage/internal/domain"
)

// Client posts photos to a Telegram chat through the Bot API.
type Client struct {
	httpClient *http.Client
	apiURL     string
	token      string
	chatID     string
	log        *zap.Logger
}

type sendPhotoRequest struct {
	ChatID    string `json:"chat_id"`
	Photo     string `json:"photo"`
	Caption   string `json:"caption,omitempty"`
	ParseMode string `json:"parse_mode,omitempty"`
}

// apiResponse is the Bot API envelope; ok is the delivery signal.
type apiResponse struct {
	OK          bool   `json:"ok"`
	Description string `json:"description,omitempty"`
}

func NewClient(cfg *config.TelegramConfig, log *zap.Logger) *Client {
	return &Client{
		httpClient: &http.Client{Timeout: cfg.Timeout},
		apiURL:     strings.TrimRight(cfg.APIURL, "/"),
		token:      cfg.BotToken,
		chatID:     cfg.ChatID,
		log:        log,
	}
}

// SendPhoto issues a single sendPhoto call with HTML caption formatting.
// Delivery counts as confirmed only when the API answers ok=true.
func (c *Client) SendPhoto(ctx context.Context, photoURL, caption string) error {
	payload := sendPhotoRequest{
		ChatID:    c.chatID,
		Photo:     photoURL,
		Caption:   caption,
		ParseMode: "HTML",
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal sendPhoto request: %w", err)
	}

	url := fmt.Sprintf("%s/bot%s/sendPhoto", c.apiURL, c.token)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to build sendPhoto request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("sendPhoto request failed: %w", err)
	}
	defer resp.Body.Close()

	var result apiResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return fmt.Errorf("failed to decode sendPhoto response: %w", err)
	}

	if !result.OK {
		c.log.Warn("Telegram rejected photo",
			zap.String("photo", photoURL),
			zap.Int("status", resp.StatusCode),
			zap.String("description", result.Description))
		return fmt.Errorf("%w: %s", domain.ErrNotDelivered, result.Description)
	}

	c.log.Info("Photo sent to Telegram", zap.String("photo", photoURL))

	return nil
}
