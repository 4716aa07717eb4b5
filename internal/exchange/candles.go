package exchange

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"time"

	"scanner_bot/internal/models"
)

// GetCandles — закрытые свечи KuCoin. Биржа отдаёт строки новейшей
// вперёд: [time, open, close, high, low, volume, turnover]; на выходе
// хронологический порядок.
func (c *Client) GetCandles(ctx context.Context, symbol, timeframe string, limit int) ([]models.Candle, error) {
	q := url.Values{}
	q.Set("symbol", symbol)
	q.Set("type", timeframe)
	if limit > 0 {
		if dur := timeframeDuration(timeframe); dur > 0 {
			end := time.Now()
			q.Set("startAt", strconv.FormatInt(end.Add(-time.Duration(limit+2)*dur).Unix(), 10))
			q.Set("endAt", strconv.FormatInt(end.Unix(), 10))
		}
	}

	var rows [][]string
	if err := c.getJSON(ctx, "/api/v1/market/candles?"+q.Encode(), &rows); err != nil {
		return nil, fmt.Errorf("candles %s %s: %w", symbol, timeframe, err)
	}

	out := make([]models.Candle, 0, len(rows))
	for i := len(rows) - 1; i >= 0; i-- {
		row := rows[i]
		if len(row) < 6 {
			continue
		}
		ts, err := strconv.ParseInt(row[0], 10, 64)
		if err != nil {
			continue
		}
		open, err1 := strconv.ParseFloat(row[1], 64)
		closep, err2 := strconv.ParseFloat(row[2], 64)
		high, err3 := strconv.ParseFloat(row[3], 64)
		low, err4 := strconv.ParseFloat(row[4], 64)
		vol, err5 := strconv.ParseFloat(row[5], 64)
		if err1 != nil || err2 != nil || err3 != nil || err4 != nil || err5 != nil {
			continue
		}
		if closep <= 0 {
			continue
		}
		out = append(out, models.Candle{
			Open:   open,
			High:   high,
			Low:    low,
			Close:  closep,
			Volume: vol,
			Time:   time.Unix(ts, 0),
		})
	}
	if limit > 0 && len(out) > limit {
		out = out[len(out)-limit:]
	}
	return out, nil
}

func timeframeDuration(tf string) time.Duration {
	switch tf {
	case "1min":
		return time.Minute
	case "5min":
		return 5 * time.Minute
	case "15min":
		return 15 * time.Minute
	case "30min":
		return 30 * time.Minute
	case "1hour":
		return time.Hour
	case "4hour":
		return 4 * time.Hour
	case "1day":
		return 24 * time.Hour
	}
	return 0
}
