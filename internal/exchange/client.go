package exchange

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/bytedance/sonic"
	"github.com/gorilla/websocket"
)

const defaultBaseURL = "https://api.kucoin.com"

// Client — REST и WebSocket доступ к KuCoin: свечи, тикеры, поток цен.
type Client struct {
	http     *http.Client
	wsDialer *websocket.Dialer
	baseURL  string
	retries  int

	prices  *priceCache
	volPct  volPctCache
	symbols symbolSet
}

func NewClient() *Client {
	return &Client{
		http:     &http.Client{Timeout: 15 * time.Second},
		wsDialer: websocket.DefaultDialer,
		baseURL:  defaultBaseURL,
		retries:  3,
		prices:   newPriceCache(),
	}
}

// getJSON — GET с ретраями и декодом обёртки KuCoin {code, data}.
func (c *Client) getJSON(ctx context.Context, path string, out any) error {
	var lastErr error
	for attempt := 0; attempt < c.retries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(time.Duration(attempt) * time.Second):
			}
		}
		lastErr = c.getJSONOnce(ctx, path, out)
		if lastErr == nil {
			return nil
		}
	}
	return lastErr
}

func (c *Client) getJSONOnce(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read body: %w", err)
	}
	if resp.StatusCode/100 != 2 {
		return fmt.Errorf("http %d: %s", resp.StatusCode, string(body))
	}

	var envelope struct {
		Code string          `json:"code"`
		Msg  string          `json:"msg"`
		Data json.RawMessage `json:"data"`
	}
	if err := sonic.Unmarshal(body, &envelope); err != nil {
		return fmt.Errorf("decode envelope: %w", err)
	}
	if envelope.Code != "200000" {
		return fmt.Errorf("kucoin error %s: %s", envelope.Code, envelope.Msg)
	}
	if err := sonic.Unmarshal(envelope.Data, out); err != nil {
		return fmt.Errorf("decode data: %w", err)
	}
	return nil
}
