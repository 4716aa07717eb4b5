package exchange

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/bytedance/sonic"
)

// priceCache — последняя цена и экскурсия (hi/lo с последнего сброса)
// по символам из WS-потока.
type priceCache struct {
	mu sync.RWMutex
	m  map[string]*priceEntry
}

type priceEntry struct {
	last, hi, lo float64
	at           time.Time
}

func newPriceCache() *priceCache {
	return &priceCache{m: make(map[string]*priceEntry)}
}

func (pc *priceCache) update(symbol string, price float64, at time.Time) {
	pc.mu.Lock()
	defer pc.mu.Unlock()
	e, ok := pc.m[symbol]
	if !ok {
		pc.m[symbol] = &priceEntry{last: price, hi: price, lo: price, at: at}
		return
	}
	e.last = price
	e.at = at
	if price > e.hi {
		e.hi = price
	}
	if price < e.lo {
		e.lo = price
	}
}

// LastPrice — последняя известная цена символа из WS-потока.
func (c *Client) LastPrice(symbol string) (float64, bool) {
	c.prices.mu.RLock()
	defer c.prices.mu.RUnlock()
	e, ok := c.prices.m[symbol]
	if !ok {
		return 0, false
	}
	return e.last, true
}

// Excursion — максимум и минимум цены с последнего сброса. Используется
// трекером как быстрый фильтр перед запросом свечей.
func (c *Client) Excursion(symbol string) (hi, lo float64, ok bool) {
	c.prices.mu.RLock()
	defer c.prices.mu.RUnlock()
	e, found := c.prices.m[symbol]
	if !found || time.Since(e.at) > 2*time.Minute {
		return 0, 0, false
	}
	return e.hi, e.lo, true
}

// ResetExcursion сбрасывает водяные знаки к последней цене.
func (c *Client) ResetExcursion(symbol string) {
	c.prices.mu.Lock()
	defer c.prices.mu.Unlock()
	if e, ok := c.prices.m[symbol]; ok {
		e.hi, e.lo = e.last, e.last
	}
}

// bulletPublic — токен и endpoint для публичного WS.
func (c *Client) bulletPublic(ctx context.Context) (token, endpoint string, pingEvery time.Duration, err error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/v1/bullet-public", nil)
	if err != nil {
		return "", "", 0, fmt.Errorf("build request: %w", err)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return "", "", 0, fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	var payload struct {
		Code string `json:"code"`
		Data struct {
			Token           string `json:"token"`
			InstanceServers []struct {
				Endpoint     string `json:"endpoint"`
				PingInterval int64  `json:"pingInterval"` // мс
			} `json:"instanceServers"`
		} `json:"data"`
	}
	if err := sonic.ConfigDefault.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return "", "", 0, fmt.Errorf("decode: %w", err)
	}
	if payload.Code != "200000" || len(payload.Data.InstanceServers) == 0 {
		return "", "", 0, fmt.Errorf("bullet-public: code=%s servers=%d", payload.Code, len(payload.Data.InstanceServers))
	}
	srv := payload.Data.InstanceServers[0]
	ping := time.Duration(srv.PingInterval) * time.Millisecond
	if ping <= 0 {
		ping = 20 * time.Second
	}
	return payload.Data.Token, srv.Endpoint, ping, nil
}

type pingWriter interface {
	WriteJSON(v any) error
}

// keepAlive шлёт ping, пока соединение живо: выходит по закрытию stop
// или отмене контекста.
func keepAlive(ctx context.Context, w pingWriter, every time.Duration, stop <-chan struct{}) {
	t := time.NewTicker(every)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-stop:
			return
		case <-t.C:
			_ = w.WriteJSON(map[string]any{"id": time.Now().UnixNano(), "type": "ping"})
		}
	}
}

// StreamPrices держит WS-подписку на тикеры символов и наполняет кэш
// цен. Переподключается сам, живёт до отмены контекста.
func (c *Client) StreamPrices(ctx context.Context, symbols []string) {
	if len(symbols) == 0 {
		return
	}
	topic := "/market/ticker:" + strings.Join(symbols, ",")

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		token, endpoint, pingEvery, err := c.bulletPublic(ctx)
		if err != nil {
			log.Printf("[WS] bullet-public error: %v", err)
			time.Sleep(3 * time.Second)
			continue
		}

		wsURL := fmt.Sprintf("%s?token=%s&connectId=%d", endpoint, token, time.Now().UnixNano())
		log.Printf("[WS] connect %d symbols", len(symbols))
		conn, _, err := c.wsDialer.Dial(wsURL, nil)
		if err != nil {
			log.Printf("[WS] dial error: %v", err)
			time.Sleep(3 * time.Second)
			continue
		}

		sub := map[string]any{
			"id":       time.Now().UnixNano(),
			"type":     "subscribe",
			"topic":    topic,
			"response": true,
		}
		if err := conn.WriteJSON(sub); err != nil {
			log.Printf("[WS] subscribe error: %v", err)
			_ = conn.Close()
			continue
		}

		// keepalive ping — иначе сервер рвёт соединение по таймауту;
		// stopPing закрывает внешний цикл после выхода из чтения
		stopPing := make(chan struct{})
		go keepAlive(ctx, conn, pingEvery, stopPing)

		for {
			_, msg, err := conn.ReadMessage()
			if err != nil {
				log.Printf("[WS] read error: %v", err)
				_ = conn.Close()
				break
			}

			var frame struct {
				Type  string `json:"type"`
				Topic string `json:"topic"`
				Data  struct {
					Price string `json:"price"`
				} `json:"data"`
			}
			if err := sonic.Unmarshal(msg, &frame); err != nil {
				continue
			}
			if frame.Type != "message" || !strings.HasPrefix(frame.Topic, "/market/ticker:") {
				continue
			}
			symbol := strings.TrimPrefix(frame.Topic, "/market/ticker:")
			price, err := strconv.ParseFloat(frame.Data.Price, 64)
			if err != nil || price <= 0 {
				continue
			}
			c.prices.update(symbol, price, time.Now())
		}
		close(stopPing)

		select {
		case <-ctx.Done():
			return
		default:
			time.Sleep(time.Second)
		}
	}
}
