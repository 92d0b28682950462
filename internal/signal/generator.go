// Package signal derives trading signals from OHLC candles using simple
// technical-indicator strategies.
package signal

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"strings"
	"sync"
	"time"

	"github.com/den4ikerror/ai-crypto-indicator-bot/internal/market"
	"github.com/den4ikerror/ai-crypto-indicator-bot/internal/models"
	"github.com/den4ikerror/ai-crypto-indicator-bot/pkg/logger"
)

const (
	TypeBuy     = "BUY"
	TypeSell    = "SELL"
	TypeNeutral = "NEUTRAL"
)

// Signal is one generated recommendation with its rendered caption and
// chart image.
type Signal struct {
	Symbol      string
	Timeframe   string
	Strategy    string
	Type        string
	Entry       float64
	TakeProfit  float64
	StopLoss    float64
	ROIPercent  float64
	RewardRisk  int
	Caption     string
	Chart       []byte
}

// MarketData is the market collaborator the generator reads candles from.
type MarketData interface {
	FetchOHLCV(ctx context.Context, symbol, timeframe string, limit int) ([]market.Candle, error)
}

type Generator struct {
	market MarketData
	logger *logger.Logger
	mu     sync.Mutex
	rng    *rand.Rand
	now    func() time.Time
}

func NewGenerator(m MarketData, logger *logger.Logger) *Generator {
	return &Generator{
		market: m,
		logger: logger,
		rng:    rand.New(rand.NewSource(time.Now().UnixNano())),
		now:    time.Now,
	}
}

var generatorTimeframes = []string{"1h", "4h", "1d"}
var strategies = []string{"keltner_breakout", "macd", "rsi"}

// Generate produces a signal for symbol using a random timeframe and
// strategy. A NEUTRAL result is a valid signal; callers typically skip it.
func (g *Generator) Generate(ctx context.Context, symbol string) (*Signal, error) {
	// Generate runs concurrently across delivery tasks; each call draws from
	// its own rng derived from the seeded one.
	g.mu.Lock()
	rng := rand.New(rand.NewSource(g.rng.Int63()))
	g.mu.Unlock()

	timeframe := generatorTimeframes[rng.Intn(len(generatorTimeframes))]

	candles, err := g.market.FetchOHLCV(ctx, symbol, timeframe, 300)
	if err != nil {
		return nil, err
	}
	if len(candles) < 2 {
		return nil, fmt.Errorf("%w: %s", models.ErrNoData, symbol)
	}

	strategy := strategies[rng.Intn(len(strategies))]

	var sig *Signal
	switch strategy {
	case "keltner_breakout":
		sig = keltnerBreakout(candles, rng)
	case "macd":
		sig = macdStrategy(candles, rng)
	default:
		sig = rsiStrategy(candles, rng)
	}
	sig.Symbol = symbol
	sig.Timeframe = timeframe
	sig.Strategy = strategy

	sig.Caption = g.renderCaption(sig, candles)

	chart, err := renderChart(candles)
	if err != nil {
		return nil, fmt.Errorf("chart rendering failed: %w", err)
	}
	sig.Chart = chart

	g.logger.Infow("signal generated", "symbol", symbol, "timeframe", timeframe, "strategy", strategy, "type", sig.Type)
	return sig, nil
}

func closes(candles []market.Candle) []float64 {
	out := make([]float64, len(candles))
	for i, c := range candles {
		out[i] = c.Close
	}
	return out
}

// lastRSI computes the RSI of the final bar from a rolling mean of gains
// and losses over period.
func lastRSI(series []float64, period int) float64 {
	if len(series) < period+1 {
		return 50
	}
	var gain, loss float64
	for i := len(series) - period; i < len(series); i++ {
		delta := series[i] - series[i-1]
		if delta > 0 {
			gain += delta
		} else {
			loss -= delta
		}
	}
	avgGain := gain / float64(period)
	avgLoss := loss / float64(period)
	rs := avgGain / (avgLoss + 1e-9)
	return 100 - (100 / (1 + rs))
}

// lastATR is the rolling mean of the true range over the final period bars.
func lastATR(candles []market.Candle, period int) float64 {
	if len(candles) < period+1 {
		return 0
	}
	var sum float64
	for i := len(candles) - period; i < len(candles); i++ {
		highLow := candles[i].High - candles[i].Low
		highClose := math.Abs(candles[i].High - candles[i-1].Close)
		lowClose := math.Abs(candles[i].Low - candles[i-1].Close)
		sum += math.Max(highLow, math.Max(highClose, lowClose))
	}
	return sum / float64(period)
}

func ema(series []float64, span int) []float64 {
	out := make([]float64, len(series))
	if len(series) == 0 {
		return out
	}
	alpha := 2.0 / (float64(span) + 1.0)
	out[0] = series[0]
	for i := 1; i < len(series); i++ {
		out[i] = alpha*series[i] + (1-alpha)*out[i-1]
	}
	return out
}

func sma(series []float64, period int) float64 {
	if len(series) < period {
		period = len(series)
	}
	var sum float64
	for _, v := range series[len(series)-period:] {
		sum += v
	}
	return sum / float64(period)
}

// calcTargets fixes risk at 2% and draws the reward:risk ratio from
// {3, 4, 5}, capping the advertised RR at 5:1.
func calcTargets(entry float64, signalType string, rng *rand.Rand) (tp, sl, roiPct float64, rr int) {
	const riskPct = 2.0
	rr = []int{3, 4, 5}[rng.Intn(3)]
	roiPct = riskPct * float64(rr)

	switch signalType {
	case TypeBuy:
		tp = entry * (1 + roiPct/100)
		sl = entry * (1 - riskPct/100)
	case TypeSell:
		tp = entry * (1 - roiPct/100)
		sl = entry * (1 + riskPct/100)
	default:
		tp = entry * 1.01
		sl = entry * 0.99
		roiPct = 0
		rr = 0
	}
	return tp, sl, roiPct, rr
}

// keltnerBreakout signals when the close escapes a channel around the
// 20-bar moving average, widened by the mean bar-to-bar drift of the highs.
func keltnerBreakout(candles []market.Candle, rng *rand.Rand) *Signal {
	const period = 20
	const atrMult = 2.0

	cls := closes(candles)
	ma := sma(cls, period)

	n := len(candles)
	start := n - period
	if start < 1 {
		start = 1
	}
	var drift float64
	var count int
	for i := start; i < n; i++ {
		drift += candles[i].High - candles[i-1].High
		count++
	}
	if count > 0 {
		drift /= float64(count)
	}

	upper := ma + drift*atrMult
	lower := ma - drift*atrMult
	last := cls[len(cls)-1]

	signalType := TypeNeutral
	if last > upper {
		signalType = TypeBuy
	} else if last < lower {
		signalType = TypeSell
	}

	tp, sl, roi, rr := calcTargets(last, signalType, rng)
	return &Signal{Type: signalType, Entry: last, TakeProfit: tp, StopLoss: sl, ROIPercent: roi, RewardRisk: rr}
}

// macdStrategy signals on a MACD/signal-line cross confirmed by the
// histogram flipping sign.
func macdStrategy(candles []market.Candle, rng *rand.Rand) *Signal {
	cls := closes(candles)
	fast := ema(cls, 12)
	slow := ema(cls, 26)

	macdLine := make([]float64, len(cls))
	for i := range cls {
		macdLine[i] = fast[i] - slow[i]
	}
	signalLine := ema(macdLine, 9)

	n := len(cls)
	lastHist := macdLine[n-1] - signalLine[n-1]
	prevHist := 0.0
	if n > 1 {
		prevHist = macdLine[n-2] - signalLine[n-2]
	}

	last := cls[n-1]
	signalType := TypeNeutral
	if macdLine[n-1] > signalLine[n-1] && prevHist < 0 && lastHist > 0 {
		signalType = TypeBuy
	} else if macdLine[n-1] < signalLine[n-1] && prevHist > 0 && lastHist < 0 {
		signalType = TypeSell
	}

	tp, sl, roi, rr := calcTargets(last, signalType, rng)
	return &Signal{Type: signalType, Entry: last, TakeProfit: tp, StopLoss: sl, ROIPercent: roi, RewardRisk: rr}
}

// rsiStrategy signals on oversold (<30) and overbought (>70) RSI readings.
func rsiStrategy(candles []market.Candle, rng *rand.Rand) *Signal {
	cls := closes(candles)
	rsi := lastRSI(cls, 14)
	last := cls[len(cls)-1]

	signalType := TypeNeutral
	if rsi < 30 {
		signalType = TypeBuy
	} else if rsi > 70 {
		signalType = TypeSell
	}

	tp, sl, roi, rr := calcTargets(last, signalType, rng)
	return &Signal{Type: signalType, Entry: last, TakeProfit: tp, StopLoss: sl, ROIPercent: roi, RewardRisk: rr}
}

func (g *Generator) renderCaption(sig *Signal, candles []market.Candle) string {
	cls := closes(candles)
	atr := lastATR(candles, 14)
	rsi := math.Round(lastRSI(cls, 14)*10) / 10
	ma20 := sma(cls, 20)
	last := cls[len(cls)-1]

	trend := "📈 Up"
	trendWord := "Bullish ⬆️"
	if last < ma20 {
		trend = "📉 Down"
		trendWord = "Bearish ⬇️"
	}

	icon := "⚪"
	if sig.Type == TypeBuy {
		icon = "🔼"
	} else if sig.Type == TypeSell {
		icon = "🔽"
	}

	base := sig.Symbol
	if idx := strings.Index(base, "/"); idx > 0 {
		base = base[:idx]
	}

	lines := []string{
		fmt.Sprintf("📊 %s %s", sig.Symbol, strings.ToUpper(sig.Timeframe)),
		fmt.Sprintf("🧠 Strategy: %s", sig.Strategy),
		fmt.Sprintf("%s Signal: %s", icon, sig.Type),
		fmt.Sprintf("💵 Entry: %.4f", sig.Entry),
		fmt.Sprintf("🎯 TP: %.4f (ROI: +%g%% | RR: %d:1)", sig.TakeProfit, sig.ROIPercent, sig.RewardRisk),
		fmt.Sprintf("🛑 SL: %.4f (Risk: -2%%)", sig.StopLoss),
		fmt.Sprintf("🕒 %s UTC", g.now().UTC().Format("2006-01-02 15:04:05")),
		fmt.Sprintf("📏 ATR: %.8g", atr),
		"",
		fmt.Sprintf("📊 %s (%s): %s", base, strings.ToUpper(sig.Timeframe), trend),
		fmt.Sprintf("RSI: %g | Trend: %s", rsi, trendWord),
	}
	return strings.Join(lines, "\n")
}
