/* Copyright (c) 2025 Hamed Shams <https://hamedshams.com>
 * SPDX-License-Identifier: BSD-3-Clause */
package telegram

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/HamedShams/sprint-pulse/internal/config"
	"github.com/rs/zerolog"
)

const defaultAPIBase = "https://api.telegram.org"

// Client delivers report digests through the Bot API.
type Client struct {
	token   string
	apiBase string
	chats   []int64
	http    *http.Client
	log     zerolog.Logger
}

func NewClient(cfg config.Config, log zerolog.Logger) *Client {
	return &Client{token: cfg.TelegramToken, apiBase: defaultAPIBase, chats: cfg.TelegramChatIDs, http: &http.Client{Timeout: 10 * time.Second}, log: log}
}

// Enabled reports whether a token and at least one chat are configured.
func (c *Client) Enabled() bool { return c.token != "" && len(c.chats) > 0 }

// SendMessage sends without parse_mode so report text is never rejected by the markdown parser.
func (c *Client) SendMessage(ctx context.Context, chatID int64, text string) error {
	return c.send(ctx, chatID, text, "")
}

// SendMarkdownV2 sends text that is already escaped for MarkdownV2.
func (c *Client) SendMarkdownV2(ctx context.Context, chatID int64, text string) error {
	return c.send(ctx, chatID, text, "MarkdownV2")
}

// Broadcast sends every chunk to every configured chat, in order. A failed MarkdownV2
// chunk is retried once as plain text.
func (c *Client) Broadcast(ctx context.Context, chunks []string) error {
	if !c.Enabled() {
		return errors.New("telegram: missing token or chat ids")
	}
	var errs []error
	for _, chat := range c.chats {
		for i, chunk := range chunks {
			err := c.SendMarkdownV2(ctx, chat, chunk)
			if err != nil {
				c.log.Warn().Err(err).Int64("chat", chat).Int("chunk", i).Msg("markdown send failed, retrying plain")
				err = c.SendMessage(ctx, chat, chunk)
			}
			if err != nil {
				errs = append(errs, fmt.Errorf("chat %d chunk %d: %w", chat, i, err))
				break
			}
		}
	}
	return errors.Join(errs...)
}

func (c *Client) send(ctx context.Context, chatID int64, text, parseMode string) error {
	if c.token == "" || chatID == 0 {
		return fmt.Errorf("telegram: missing token or chat id")
	}
	url := fmt.Sprintf("%s/bot%s/sendMessage", strings.TrimRight(c.apiBase, "/"), c.token)
	body := map[string]any{"chat_id": chatID, "text": text, "disable_web_page_preview": true}
	if parseMode != "" {
		body["parse_mode"] = parseMode
	}
	b, err := json.Marshal(body)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(b))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		bodyBytes, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("telegram sendMessage status=%d body=%s", resp.StatusCode, string(bodyBytes))
	}
	return nil
}
