package exchange

import (
	"context"
	"strings"
	"sync"
)

var knownQuotes = []string{"USDT", "USDC", "BTC", "ETH", "TUSD", "EUR", "KCS"}

type symbolSet struct {
	mu  sync.RWMutex
	set map[string]struct{}
}

func (c *Client) loadSymbolSet(ctx context.Context) {
	var data struct {
		Ticker []struct {
			Symbol string `json:"symbol"`
		} `json:"ticker"`
	}
	if err := c.getJSON(ctx, "/api/v1/market/allTickers", &data); err != nil {
		return
	}
	set := make(map[string]struct{}, len(data.Ticker))
	for _, t := range data.Ticker {
		set[t.Symbol] = struct{}{}
	}
	c.symbols.mu.Lock()
	c.symbols.set = set
	c.symbols.mu.Unlock()
}

func (c *Client) knownSymbol(s string) bool {
	c.symbols.mu.RLock()
	defer c.symbols.mu.RUnlock()
	if c.symbols.set == nil {
		return false
	}
	_, ok := c.symbols.set[s]
	return ok
}

// NormalizeSymbol приводит пользовательский ввод (WIFUSDT, wif/usdt,
// WIF_USDT) к биржевому BASE-QUOTE. Пустая строка — символ не найден.
func (c *Client) NormalizeSymbol(ctx context.Context, userSym string) string {
	if userSym == "" {
		return ""
	}
	s := strings.ToUpper(strings.TrimSpace(userSym))
	s = strings.NewReplacer(" ", "", "_", "-", "/", "-").Replace(s)

	cand := s
	if !strings.Contains(s, "-") {
		for _, q := range knownQuotes {
			if strings.HasSuffix(s, q) && len(s) > len(q) {
				cand = s[:len(s)-len(q)] + "-" + q
				break
			}
		}
	}

	c.symbols.mu.RLock()
	empty := c.symbols.set == nil
	c.symbols.mu.RUnlock()
	if empty {
		c.loadSymbolSet(ctx)
	}

	if c.knownSymbol(cand) {
		return cand
	}

	alts := []string{strings.ReplaceAll(cand, "--", "-")}
	if !strings.Contains(cand, "-") {
		alts = append(alts, cand+"-USDT")
	}
	for _, a := range alts {
		if c.knownSymbol(a) {
			return a
		}
	}
	return ""
}
