// Package notify pushes order updates to customers over the LINE
// Messaging API. All pushes are best-effort: callers log failures and
// move on, an undelivered message never affects order state.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

const pushEndpoint = "https://api.line.me/v2/bot/message/push"

// LineClient talks to the LINE Messaging API with a channel access token.
type LineClient struct {
	channelToken string
	endpoint     string
	httpClient   *http.Client
}

// NewLineClient creates a client with a bounded request timeout so a slow
// LINE API cannot hold up callers past their own deadlines.
func NewLineClient(channelToken string) *LineClient {
	return &LineClient{
		channelToken: channelToken,
		endpoint:     pushEndpoint,
		httpClient:   &http.Client{Timeout: 5 * time.Second},
	}
}

type textMessage struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type pushRequest struct {
	To       string        `json:"to"`
	Messages []textMessage `json:"messages"`
}

// PushOrderCreated confirms a freshly placed order.
func (c *LineClient) PushOrderCreated(ctx context.Context, to, orderNumber, total string) error {
	text := fmt.Sprintf("ご注文を受け付けました！\n注文番号: %s\n合計: ¥%s\n\nYour order has been received!\nOrder number: %s\nTotal: ¥%s",
		orderNumber, total, orderNumber, total)
	return c.push(ctx, to, text)
}

// PushOrderReady tells the customer their order is ready for pickup.
func (c *LineClient) PushOrderReady(ctx context.Context, to, orderNumber, tableNumber string) error {
	text := fmt.Sprintf("ご注文の準備ができました！\n注文番号: %s\nテーブル: %s\n\nYour order is ready!\nOrder number: %s\nTable: %s",
		orderNumber, tableNumber, orderNumber, tableNumber)
	return c.push(ctx, to, text)
}

func (c *LineClient) push(ctx context.Context, to, text string) error {
	body, err := json.Marshal(pushRequest{
		To:       to,
		Messages: []textMessage{{Type: "text", Text: text}},
	})
	if err != nil {
		return fmt.Errorf("marshal push: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build push request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.channelToken)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("push message: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("push message: status %d: %s", resp.StatusCode, detail)
	}
	return nil
}
