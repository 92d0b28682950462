// Package market fetches OHLC candles from the Kraken REST API.
package market

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"crypto/sha512"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/den4ikerror/ai-crypto-indicator-bot/internal/models"
	"github.com/den4ikerror/ai-crypto-indicator-bot/pkg/logger"
)

const apiBase = "https://api.kraken.com"

// Candle is one OHLCV bar.
type Candle struct {
	TS     time.Time
	Open   float64
	High   float64
	Low    float64
	Close  float64
	Volume float64
}

var timeframes = map[string]int{
	"1h": 60,
	"4h": 240,
	"1d": 1440,
}

type Client struct {
	apiKey    string
	apiSecret string
	http      *http.Client
	logger    *logger.Logger
}

func NewClient(apiKey, apiSecret string, logger *logger.Logger) *Client {
	return &Client{
		apiKey:    apiKey,
		apiSecret: apiSecret,
		http:      &http.Client{Timeout: 20 * time.Second},
		logger:    logger,
	}
}

// krakenPair maps a SYMBOL/QUOTE spec to Kraken's pair spelling. Kraken
// calls bitcoin XBT.
func krakenPair(symbol string) (string, error) {
	base, quote, ok := strings.Cut(symbol, "/")
	if !ok {
		return "", fmt.Errorf("invalid symbol format: %q", symbol)
	}
	if base == "BTC" {
		base = "XBT"
	}
	return base + quote, nil
}

// FetchOHLCV loads up to limit candles for symbol at the given timeframe
// (1h, 4h or 1d). Returns models.ErrNoData when the exchange has fewer than
// two candles for the pair.
func (c *Client) FetchOHLCV(ctx context.Context, symbol, timeframe string, limit int) ([]Candle, error) {
	interval, ok := timeframes[timeframe]
	if !ok {
		return nil, fmt.Errorf("unsupported timeframe: %q", timeframe)
	}
	pair, err := krakenPair(symbol)
	if err != nil {
		return nil, err
	}

	endpoint := fmt.Sprintf("%s/0/public/OHLC?pair=%s&interval=%d", apiBase, pair, interval)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("kraken OHLC request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("kraken OHLC request failed: HTTP %d", resp.StatusCode)
	}

	var body struct {
		Error  []string                   `json:"error"`
		Result map[string]json.RawMessage `json:"result"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("kraken OHLC decode failed: %w", err)
	}
	if len(body.Error) > 0 {
		return nil, fmt.Errorf("kraken OHLC error: %s", strings.Join(body.Error, "; "))
	}

	// Kraken encodes timestamps as numbers and prices as strings.
	var raw [][]any
	for key, val := range body.Result {
		if key == "last" {
			continue
		}
		if err := json.Unmarshal(val, &raw); err != nil {
			return nil, fmt.Errorf("kraken OHLC decode failed for %s: %w", key, err)
		}
		break
	}

	candles := make([]Candle, 0, len(raw))
	for _, row := range raw {
		// [time, open, high, low, close, vwap, volume, count]
		if len(row) < 7 {
			continue
		}
		candles = append(candles, Candle{
			TS:     time.Unix(int64(asFloat(row[0])), 0).UTC(),
			Open:   asFloat(row[1]),
			High:   asFloat(row[2]),
			Low:    asFloat(row[3]),
			Close:  asFloat(row[4]),
			Volume: asFloat(row[6]),
		})
	}

	if len(candles) < 2 {
		return nil, fmt.Errorf("%w: %s %s", models.ErrNoData, symbol, timeframe)
	}
	if limit > 0 && len(candles) > limit {
		candles = candles[len(candles)-limit:]
	}

	c.logger.Infow("ohlcv loaded", "symbol", symbol, "timeframe", timeframe, "candles", len(candles))
	return candles, nil
}

// Name identifies the client on the maintenance probe.
func (c *Client) Name() string { return "kraken" }

// Ping verifies the API credentials by requesting the account balance.
func (c *Client) Ping(ctx context.Context) error {
	path := "/0/private/Balance"
	nonce := strconv.FormatInt(time.Now().UnixNano()/int64(time.Millisecond), 10)
	form := url.Values{"nonce": {nonce}}
	encoded := form.Encode()

	signature, err := c.sign(path, nonce, encoded)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, apiBase+path, strings.NewReader(encoded))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("API-Key", c.apiKey)
	req.Header.Set("API-Sign", signature)

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("kraken balance request failed: %w", err)
	}
	defer resp.Body.Close()

	var body struct {
		Error []string `json:"error"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return fmt.Errorf("kraken balance decode failed: %w", err)
	}
	if len(body.Error) > 0 {
		return fmt.Errorf("kraken balance error: %s", strings.Join(body.Error, "; "))
	}
	return nil
}

func asFloat(v any) float64 {
	switch t := v.(type) {
	case float64:
		return t
	case string:
		f, _ := strconv.ParseFloat(t, 64)
		return f
	default:
		return 0
	}
}

// sign builds the API-Sign header: HMAC-SHA512 of path + SHA256(nonce +
// POST data), keyed with the base64-decoded secret.
func (c *Client) sign(path, nonce, postData string) (string, error) {
	secret, err := base64.StdEncoding.DecodeString(c.apiSecret)
	if err != nil {
		return "", fmt.Errorf("invalid kraken API secret: %w", err)
	}

	sha := sha256.Sum256([]byte(nonce + postData))
	mac := hmac.New(sha512.New, secret)
	mac.Write(append([]byte(path), sha[:]...))
	return base64.StdEncoding.EncodeToString(mac.Sum(nil)), nil
}
