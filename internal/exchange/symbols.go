package exchange

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"
)

// TickerStat — суточная статистика символа из allTickers.
type TickerStat struct {
	Symbol   string
	VolValue float64 // суточный оборот в USDT
	Last     float64
}

// TopSymbols — ликвидные USDT-пары с оборотом не ниже minVolValue,
// по убыванию оборота. Попутно обновляет кэш объёмных перцентилей.
func (c *Client) TopSymbols(ctx context.Context, minVolValue float64) ([]TickerStat, error) {
	var data struct {
		Ticker []struct {
			Symbol   string `json:"symbol"`
			VolValue string `json:"volValue"`
			Last     string `json:"last"`
		} `json:"ticker"`
	}
	if err := c.getJSON(ctx, "/api/v1/market/allTickers", &data); err != nil {
		return nil, fmt.Errorf("all tickers: %w", err)
	}

	all := make([]TickerStat, 0, len(data.Ticker))
	for _, t := range data.Ticker {
		if !strings.HasSuffix(t.Symbol, "-USDT") {
			continue
		}
		vol, err := strconv.ParseFloat(t.VolValue, 64)
		if err != nil || vol <= 0 {
			continue
		}
		last, _ := strconv.ParseFloat(t.Last, 64)
		all = append(all, TickerStat{Symbol: t.Symbol, VolValue: vol, Last: last})
	}

	c.rebuildVolPercentiles(all)

	out := all[:0:0]
	for _, t := range all {
		if t.VolValue >= minVolValue {
			out = append(out, t)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].VolValue > out[j].VolValue })
	return out, nil
}

// Кэш объёмных перцентилей: доля USDT-пар с оборотом не выше данного
// символа. Строится раз за скан на полном списке тикеров.
type volPctCache struct {
	mu  sync.RWMutex
	pct map[string]float64
}

func (c *Client) rebuildVolPercentiles(all []TickerStat) {
	if len(all) == 0 {
		return
	}
	sorted := make([]TickerStat, len(all))
	copy(sorted, all)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].VolValue < sorted[j].VolValue })

	pct := make(map[string]float64, len(sorted))
	n := float64(len(sorted))
	for i, t := range sorted {
		pct[t.Symbol] = float64(i+1) / n
	}

	c.volPct.mu.Lock()
	c.volPct.pct = pct
	c.volPct.mu.Unlock()
}

// VolPercentile — перцентиль оборота символа [0..1]; 0.5 если кэш ещё
// не построен.
func (c *Client) VolPercentile(symbol string) float64 {
	c.volPct.mu.RLock()
	defer c.volPct.mu.RUnlock()
	if p, ok := c.volPct.pct[symbol]; ok {
		return p
	}
	return 0.5
}
