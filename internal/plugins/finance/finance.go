// Package finance is the built-in sample plugin. It generates
// deterministic OHLCV price series off the UI path and announces the
// results on the event bus.
package finance

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"time"

	"go.uber.org/zap"

	"github.com/bsundem/Heimdall/internal/event"
	"github.com/bsundem/Heimdall/internal/export"
	"github.com/bsundem/Heimdall/internal/plugin"
	"github.com/bsundem/Heimdall/internal/task"
)

// Event types the plugin consumes and produces.
const (
	EventGenerate  = event.Type("finance.generate")
	EventDataReady = event.Type("finance.data.ready")
	EventFailed    = event.Type("finance.failed")
)

// Candle is one day of simulated OHLCV data.
type Candle struct {
	Date   time.Time
	Open   float64
	High   float64
	Low    float64
	Close  float64
	Volume int64
}

// Plugin implements plugin.Plugin.
type Plugin struct {
	host *plugin.Context
	sub  *event.Subscription
}

// New creates the finance plugin.
func New() *Plugin {
	return &Plugin{}
}

// Name implements plugin.Plugin.
func (p *Plugin) Name() string {
	return "finance"
}

// Initialize implements plugin.Plugin. It subscribes to generation
// requests; the heavy work runs on the task runner so publishers never
// block on it.
func (p *Plugin) Initialize(ctx *plugin.Context) error {
	p.host = ctx

	sub, err := ctx.Bus.SubscribeFunc(EventGenerate, p.onGenerate)
	if err != nil {
		return fmt.Errorf("subscribing to %s: %w", EventGenerate, err)
	}
	p.sub = sub
	return nil
}

// Shutdown implements plugin.Plugin.
func (p *Plugin) Shutdown() error {
	if p.sub != nil {
		p.sub.Cancel()
		p.sub = nil
	}
	return nil
}

// request is a decoded finance.generate payload.
type request struct {
	Symbol     string
	Days       int
	Seed       int64
	StartPrice float64
	ExportPath string
}

// onGenerate handles a finance.generate event.
func (p *Plugin) onGenerate(_ context.Context, ev event.Event) error {
	req := decodeRequest(ev.Payload)
	log := p.host.Logger.With(zap.String("symbol", req.Symbol))

	_, err := p.host.Tasks.Submit(context.Background(),
		func(ctx context.Context) (any, error) {
			return GenerateSeries(ctx, req.Symbol, req.Days, req.Seed, req.StartPrice)
		},
		task.WithName("finance.generate:"+req.Symbol),
		task.WithOnComplete(func(result any) {
			series := result.([]Candle)
			p.publishReady(req, series, log)
		}),
		task.WithOnError(func(err error) {
			log.Error("series generation failed", zap.Error(err))
			failed := event.New(EventFailed, map[string]any{
				"symbol": req.Symbol,
				"error":  err.Error(),
			}, "plugin:finance")
			if perr := p.host.Bus.Publish(context.Background(), failed); perr != nil {
				log.Warn("failure event not published", zap.Error(perr))
			}
		}),
	)
	if err != nil {
		return fmt.Errorf("submitting generation for %s: %w", req.Symbol, err)
	}
	return nil
}

// publishReady exports the series if requested and announces it.
func (p *Plugin) publishReady(req request, series []Candle, log *zap.Logger) {
	tbl := toTable(series)

	if req.ExportPath != "" {
		if svc, ok := p.host.Services.Lookup("export"); ok {
			if exporter, ok := svc.(*export.Service); ok {
				if err := exporter.Export(req.ExportPath, "", tbl); err != nil {
					log.Warn("series export failed",
						zap.String("path", req.ExportPath),
						zap.Error(err))
				}
			}
		}
	}

	ready := event.New(EventDataReady, map[string]any{
		"symbol":  req.Symbol,
		"days":    int64(len(series)),
		"columns": tbl.Columns,
		"rows":    tbl.Rows,
	}, "plugin:finance")
	if err := p.host.Bus.Publish(context.Background(), ready); err != nil {
		log.Warn("data ready event not published", zap.Error(err))
	}
}

// decodeRequest reads a generation request from an event payload,
// applying defaults for missing fields. Payload values may arrive from
// Lua or TOML, so numbers are coerced across int/int64/float64.
func decodeRequest(payload map[string]any) request {
	req := request{
		Symbol:     "HEIM",
		Days:       30,
		Seed:       42,
		StartPrice: 100,
	}
	if payload == nil {
		return req
	}

	if s, ok := payload["symbol"].(string); ok && s != "" {
		req.Symbol = s
	}
	// An explicitly provided value passes through even when invalid;
	// GenerateSeries rejects it and the failure surfaces as an event.
	if n, ok := asInt64(payload["days"]); ok {
		req.Days = int(n)
	}
	if n, ok := asInt64(payload["seed"]); ok {
		req.Seed = n
	}
	if f, ok := asFloat64(payload["start_price"]); ok && f > 0 {
		req.StartPrice = f
	}
	if s, ok := payload["export_path"].(string); ok {
		req.ExportPath = s
	}
	return req
}

func asInt64(v any) (int64, bool) {
	switch n := v.(type) {
	case int:
		return int64(n), true
	case int64:
		return n, true
	case float64:
		return int64(n), true
	}
	return 0, false
}

func asFloat64(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case float64:
		return n, true
	}
	return 0, false
}

// GenerateSeries produces a deterministic OHLCV random walk. The same
// seed always yields the same series.
func GenerateSeries(ctx context.Context, symbol string, days int, seed int64, start float64) ([]Candle, error) {
	if days <= 0 {
		return nil, fmt.Errorf("days must be positive, got %d", days)
	}

	rng := rand.New(rand.NewSource(seed))
	series := make([]Candle, 0, days)

	date := time.Now().UTC().Truncate(24 * time.Hour).AddDate(0, 0, -days)
	price := start

	for i := 0; i < days; i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		open := price
		drift := rng.NormFloat64() * 0.02 * open
		close := round2(open + drift)
		high := round2(math.Max(open, close) * (1 + rng.Float64()*0.01))
		low := round2(math.Min(open, close) * (1 - rng.Float64()*0.01))
		volume := 100_000 + rng.Int63n(900_000)

		series = append(series, Candle{
			Date:   date.AddDate(0, 0, i),
			Open:   round2(open),
			High:   high,
			Low:    low,
			Close:  close,
			Volume: volume,
		})
		price = close
	}
	return series, nil
}

// toTable converts a series into the export exchange shape.
func toTable(series []Candle) export.Table {
	tbl := export.Table{
		Columns: []string{"date", "open", "high", "low", "close", "volume"},
		Rows:    make([][]any, 0, len(series)),
	}
	for _, c := range series {
		tbl.Rows = append(tbl.Rows, []any{
			c.Date.Format("2006-01-02"),
			c.Open, c.High, c.Low, c.Close, c.Volume,
		})
	}
	return tbl
}

func round2(f float64) float64 {
	return math.Round(f*100) / 100
}
