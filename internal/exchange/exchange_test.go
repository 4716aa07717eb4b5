package exchange

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"
)

func testClient(h http.HandlerFunc) (*Client, *httptest.Server) {
	srv := httptest.NewServer(h)
	c := NewClient()
	c.baseURL = srv.URL
	c.retries = 1
	return c, srv
}

func TestGetCandlesReversesAndParses(t *testing.T) {
	// биржа отдаёт новейшую свечу первой
	body := `{"code":"200000","data":[
		["1700000900","101","102","103","100.5","55","5555"],
		["1700000000","100","101","102","99.5","50","5000"]
	]}`
	c, srv := testClient(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v1/market/candles" {
			t.Errorf("path = %s", r.URL.Path)
		}
		if got := r.URL.Query().Get("type"); got != "15min" {
			t.Errorf("type = %s", got)
		}
		fmt.Fprint(w, body)
	})
	defer srv.Close()

	cs, err := c.GetCandles(context.Background(), "BTC-USDT", "15min", 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(cs) != 2 {
		t.Fatalf("len = %d, want 2", len(cs))
	}
	first := cs[0]
	if !first.Time.Equal(time.Unix(1700000000, 0)) {
		t.Errorf("order not chronological: %v", first.Time)
	}
	// порядок полей KuCoin: time, open, close, high, low, volume
	if first.Open != 100 || first.Close != 101 || first.High != 102 || first.Low != 99.5 || first.Volume != 50 {
		t.Errorf("parsed candle = %+v", first)
	}
}

func TestGetCandlesRejectsAPIError(t *testing.T) {
	c, srv := testClient(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"code":"400100","msg":"symbol not exists"}`)
	})
	defer srv.Close()

	if _, err := c.GetCandles(context.Background(), "NOPE-USDT", "15min", 10); err == nil {
		t.Fatal("expected error on non-200000 code")
	}
}

func TestTopSymbolsFiltersAndRanks(t *testing.T) {
	body := `{"code":"200000","data":{"ticker":[
		{"symbol":"BTC-USDT","volValue":"9000000","last":"65000"},
		{"symbol":"ETH-BTC","volValue":"8000000","last":"0.05"},
		{"symbol":"SOL-USDT","volValue":"3000000","last":"150"},
		{"symbol":"DOGE-USDT","volValue":"100000","last":"0.1"}
	]}}`
	c, srv := testClient(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, body)
	})
	defer srv.Close()

	got, err := c.TopSymbols(context.Background(), 2_000_000)
	if err != nil {
		t.Fatal(err)
	}
	// не-USDT и мелкий оборот отсеяны, сортировка по обороту вниз
	if len(got) != 2 || got[0].Symbol != "BTC-USDT" || got[1].Symbol != "SOL-USDT" {
		t.Fatalf("symbols = %+v", got)
	}

	// перцентили считаются по всем USDT-парам, включая отсеянные
	if p := c.VolPercentile("BTC-USDT"); p != 1.0 {
		t.Errorf("BTC pct = %v, want 1.0", p)
	}
	if p := c.VolPercentile("DOGE-USDT"); p > 0.5 {
		t.Errorf("DOGE pct = %v, want lowest bucket", p)
	}
	if p := c.VolPercentile("UNKNOWN-USDT"); p != 0.5 {
		t.Errorf("unknown pct = %v, want neutral 0.5", p)
	}
}

type countingPinger struct {
	mu sync.Mutex
	n  int
}

func (c *countingPinger) WriteJSON(any) error {
	c.mu.Lock()
	c.n++
	c.mu.Unlock()
	return nil
}

func (c *countingPinger) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.n
}

// после обрыва чтения keepalive обязан завершиться по stop, а не жить
// до конца процесса
func TestKeepAliveExitsOnStop(t *testing.T) {
	w := &countingPinger{}
	stop := make(chan struct{})
	done := make(chan struct{})
	go func() {
		keepAlive(context.Background(), w, time.Millisecond, stop)
		close(done)
	}()

	time.Sleep(20 * time.Millisecond)
	close(stop)
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("keepalive must exit once stop is closed")
	}
	if w.count() == 0 {
		t.Error("expected pings while the connection was alive")
	}
}

func TestKeepAliveExitsOnContextCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		keepAlive(ctx, &countingPinger{}, time.Millisecond, make(chan struct{}))
		close(done)
	}()

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("keepalive must exit on context cancel")
	}
}

func TestPriceCacheExcursion(t *testing.T) {
	c := NewClient()
	now := time.Now()
	c.prices.update("BTC-USDT", 100, now)
	c.prices.update("BTC-USDT", 105, now)
	c.prices.update("BTC-USDT", 98, now)
	c.prices.update("BTC-USDT", 101, now)

	hi, lo, ok := c.Excursion("BTC-USDT")
	if !ok || hi != 105 || lo != 98 {
		t.Fatalf("excursion = %v/%v ok=%v", hi, lo, ok)
	}
	if last, _ := c.LastPrice("BTC-USDT"); last != 101 {
		t.Errorf("last = %v, want 101", last)
	}

	c.ResetExcursion("BTC-USDT")
	hi, lo, _ = c.Excursion("BTC-USDT")
	if hi != 101 || lo != 101 {
		t.Errorf("after reset = %v/%v, want 101/101", hi, lo)
	}

	if _, _, ok := c.Excursion("ETH-USDT"); ok {
		t.Errorf("unknown symbol must report no data")
	}
}
