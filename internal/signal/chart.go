package signal

import (
	"bytes"

	"github.com/wcharczuk/go-chart/v2"
	"github.com/wcharczuk/go-chart/v2/drawing"

	"github.com/den4ikerror/ai-crypto-indicator-bot/internal/market"
)

// renderChart draws the close-price series on a dark background and returns
// the PNG bytes.
func renderChart(candles []market.Candle) ([]byte, error) {
	xs := make([]float64, len(candles))
	ys := make([]float64, len(candles))
	for i, c := range candles {
		xs[i] = float64(c.TS.Unix())
		ys[i] = c.Close
	}

	background := drawing.ColorFromHex("1a1a1a")
	line := drawing.ColorFromHex("00bcd4")

	graph := chart.Chart{
		Title:  "Аналіз ринку в реальному часі",
		Width:  1000,
		Height: 500,
		Background: chart.Style{
			FillColor: background,
			FontColor: drawing.ColorWhite,
		},
		Canvas: chart.Style{
			FillColor: drawing.ColorFromHex("0d0d0d"),
		},
		XAxis: chart.XAxis{
			Style: chart.Style{FontColor: drawing.ColorWhite},
		},
		YAxis: chart.YAxis{
			Style: chart.Style{FontColor: drawing.ColorWhite},
		},
		Series: []chart.Series{
			chart.ContinuousSeries{
				Name:    "Ціна",
				XValues: xs,
				YValues: ys,
				Style: chart.Style{
					StrokeColor: line,
					StrokeWidth: 2.5,
				},
			},
		},
	}

	var buf bytes.Buffer
	if err := graph.Render(chart.PNG, &buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
