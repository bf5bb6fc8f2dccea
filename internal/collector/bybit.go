package collector

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog"

	"DeepTrader/internal/model"
)

// ErrNoCredentials is returned by signed endpoints when the client was
// built without an API key pair.
var ErrNoCredentials = errors.New("bybit: api credentials not configured")

const (
	maxPageLimit = 1000 // Bybit v5 kline cap per request
	recvWindow   = "5000"
	pageDelay    = 100 * time.Millisecond
)

// BybitClient implements Fetcher against the Bybit v5 REST API.
type BybitClient struct {
	http      *resty.Client
	apiKey    string
	apiSecret string
	pageLimit int
	log       zerolog.Logger
}

// NewBybitClient creates a client with retries and optional proxy support.
// Rate-limit responses honor the Retry-After header.
func NewBybitClient(baseURL, apiKey, apiSecret, proxyURL string, log zerolog.Logger) *BybitClient {
	client := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(30 * time.Second).
		SetRetryCount(3).
		SetRetryWaitTime(1 * time.Second).
		SetRetryMaxWaitTime(10 * time.Second).
		AddRetryCondition(func(resp *resty.Response, err error) bool {
			return err != nil || resp.StatusCode() == 429 || resp.StatusCode() >= 500
		}).
		SetRetryAfter(func(_ *resty.Client, resp *resty.Response) (time.Duration, error) {
			if resp.StatusCode() == 429 {
				if ra := resp.Header().Get("Retry-After"); ra != "" {
					if d, err := time.ParseDuration(ra + "s"); err == nil {
						return d, nil
					}
				}
				return 10 * time.Second, nil
			}
			return 0, nil
		})
	if proxyURL != "" {
		client.SetProxy(proxyURL)
	}
	return &BybitClient{
		http:      client,
		apiKey:    apiKey,
		apiSecret: apiSecret,
		pageLimit: maxPageLimit,
		log:       log.With().Str("component", "bybit").Logger(),
	}
}

func (c *BybitClient) Name() string { return "bybit" }

// HasCredentials reports whether signed endpoints are usable.
func (c *BybitClient) HasCredentials() bool {
	return c.apiKey != "" && c.apiSecret != ""
}

// klineResponse is the v5 market/kline envelope. Rows are string arrays
// [startMs, open, high, low, close, volume, turnover], newest first.
type klineResponse struct {
	RetCode int    `json:"retCode"`
	RetMsg  string `json:"retMsg"`
	Result  struct {
		Symbol string     `json:"symbol"`
		List   [][]string `json:"list"`
	} `json:"result"`
}

// FetchKlines returns the most recent bars, oldest first.
func (c *BybitClient) FetchKlines(ctx context.Context, symbol, interval string, limit int) ([]model.Bar, error) {
	if limit <= 0 || limit > maxPageLimit {
		limit = maxPageLimit
	}
	return c.fetchPage(ctx, symbol, interval, time.Time{}, limit)
}

// FetchHistory pages through the kline endpoint until the requested number
// of days is covered or the exchange runs out of data.
func (c *BybitClient) FetchHistory(ctx context.Context, symbol, interval string, days int) ([]model.Bar, error) {
	step := intervalStep(interval)
	end := time.Now()
	start := end.AddDate(0, 0, -days)

	var all []model.Bar
	for start.Before(end) {
		batch, err := c.fetchPage(ctx, symbol, interval, start, c.pageLimit)
		if err != nil {
			return nil, err
		}
		if len(batch) == 0 {
			break
		}
		for _, b := range batch {
			// Pages can overlap by one bar at the cursor.
			if len(all) > 0 && !b.Time.After(all[len(all)-1].Time) {
				continue
			}
			all = append(all, b)
		}
		if len(batch) < c.pageLimit {
			break
		}
		start = batch[len(batch)-1].Time.Add(step)

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(pageDelay):
		}
	}
	if len(all) == 0 {
		return nil, fmt.Errorf("bybit: no kline data for %s", symbol)
	}
	c.log.Info().Str("symbol", symbol).Str("interval", interval).Int("bars", len(all)).Msg("History fetched")
	return all, nil
}

func (c *BybitClient) fetchPage(ctx context.Context, symbol, interval string, start time.Time, limit int) ([]model.Bar, error) {
	params := map[string]string{
		"category": "linear",
		"symbol":   symbol,
		"interval": interval,
		"limit":    strconv.Itoa(limit),
	}
	if !start.IsZero() {
		params["start"] = strconv.FormatInt(start.UnixMilli(), 10)
	}

	var out klineResponse
	resp, err := c.http.R().
		SetContext(ctx).
		SetQueryParams(params).
		SetResult(&out).
		Get("/v5/market/kline")
	if err != nil {
		return nil, fmt.Errorf("bybit fetch klines: %w", err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("bybit: status %d, body: %s", resp.StatusCode(), resp.String())
	}
	if out.RetCode != 0 {
		return nil, fmt.Errorf("bybit api error %d: %s", out.RetCode, out.RetMsg)
	}

	bars := make([]model.Bar, 0, len(out.Result.List))
	for _, row := range out.Result.List {
		b, err := parseKlineRow(row)
		if err != nil {
			return nil, err
		}
		bars = append(bars, b)
	}
	// v5 returns newest first; callers expect chronological order.
	sort.Slice(bars, func(i, j int) bool { return bars[i].Time.Before(bars[j].Time) })
	return bars, nil
}

func parseKlineRow(row []string) (model.Bar, error) {
	if len(row) < 6 {
		return model.Bar{}, fmt.Errorf("bybit: malformed kline row with %d fields", len(row))
	}
	ms, err := strconv.ParseInt(row[0], 10, 64)
	if err != nil {
		return model.Bar{}, fmt.Errorf("bybit: parse kline timestamp: %w", err)
	}
	vals := make([]float64, 5)
	for i := 0; i < 5; i++ {
		v, err := strconv.ParseFloat(row[i+1], 64)
		if err != nil {
			return model.Bar{}, fmt.Errorf("bybit: parse kline field %d: %w", i+1, err)
		}
		vals[i] = v
	}
	return model.Bar{
		Time:   time.UnixMilli(ms).UTC(),
		Open:   vals[0],
		High:   vals[1],
		Low:    vals[2],
		Close:  vals[3],
		Volume: vals[4],
	}, nil
}

// intervalStep converts a Bybit interval string to the bar duration.
func intervalStep(interval string) time.Duration {
	switch interval {
	case "D":
		return 24 * time.Hour
	case "W":
		return 7 * 24 * time.Hour
	case "M":
		return 30 * 24 * time.Hour
	}
	if m, err := strconv.Atoi(interval); err == nil && m > 0 {
		return time.Duration(m) * time.Minute
	}
	return time.Hour
}

// WalletBalance summarizes one Bybit account.
type WalletBalance struct {
	AccountType string       `json:"account_type"`
	TotalEquity float64      `json:"total_equity"`
	Coins       []WalletCoin `json:"coins"`
}

// WalletCoin is one asset inside a wallet.
type WalletCoin struct {
	Coin     string  `json:"coin"`
	Equity   float64 `json:"equity"`
	UsdValue float64 `json:"usd_value"`
}

type walletResponse struct {
	RetCode int    `json:"retCode"`
	RetMsg  string `json:"retMsg"`
	Result  struct {
		List []struct {
			AccountType string `json:"accountType"`
			TotalEquity string `json:"totalEquity"`
			Coin        []struct {
				Coin     string `json:"coin"`
				Equity   string `json:"equity"`
				UsdValue string `json:"usdValue"`
			} `json:"coin"`
		} `json:"list"`
	} `json:"result"`
}

// FetchWalletBalance calls the signed wallet-balance endpoint. The v5
// signature is hex(HMAC-SHA256(secret, timestamp + key + window + query)).
func (c *BybitClient) FetchWalletBalance(ctx context.Context, accountType string) (*WalletBalance, error) {
	if !c.HasCredentials() {
		return nil, ErrNoCredentials
	}
	if accountType == "" {
		accountType = "UNIFIED"
	}
	query := "accountType=" + accountType
	ts := strconv.FormatInt(time.Now().UnixMilli(), 10)

	var out walletResponse
	resp, err := c.http.R().
		SetContext(ctx).
		SetHeader("X-BAPI-API-KEY", c.apiKey).
		SetHeader("X-BAPI-TIMESTAMP", ts).
		SetHeader("X-BAPI-RECV-WINDOW", recvWindow).
		SetHeader("X-BAPI-SIGN-TYPE", "2").
		SetHeader("X-BAPI-SIGN", c.sign(ts+c.apiKey+recvWindow+query)).
		SetQueryString(query).
		SetResult(&out).
		Get("/v5/account/wallet-balance")
	if err != nil {
		return nil, fmt.Errorf("bybit wallet balance: %w", err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("bybit: status %d, body: %s", resp.StatusCode(), resp.String())
	}
	if out.RetCode != 0 {
		return nil, fmt.Errorf("bybit api error %d: %s", out.RetCode, out.RetMsg)
	}
	if len(out.Result.List) == 0 {
		return nil, errors.New("bybit: empty wallet response")
	}

	acct := out.Result.List[0]
	w := &WalletBalance{
		AccountType: acct.AccountType,
		TotalEquity: looseFloat(acct.TotalEquity),
	}
	for _, coin := range acct.Coin {
		w.Coins = append(w.Coins, WalletCoin{
			Coin:     coin.Coin,
			Equity:   looseFloat(coin.Equity),
			UsdValue: looseFloat(coin.UsdValue),
		})
	}
	return w, nil
}

func (c *BybitClient) sign(message string) string {
	mac := hmac.New(sha256.New, []byte(c.apiSecret))
	mac.Write([]byte(message))
	return hex.EncodeToString(mac.Sum(nil))
}

// looseFloat parses the string numbers the wallet endpoint returns; Bybit
// sends "" for fields that do not apply.
func looseFloat(s string) float64 {
	if s == "" {
		return 0
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0
	}
	return f
}
