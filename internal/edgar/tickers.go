package edgar

import (
	"context"
	"fmt"
	"strconv"
	"strings"
)

// TickerInfo is one entry of the SEC issuer directory
type TickerInfo struct {
	Ticker string `json:"ticker"`
	CIK    string `json:"cik"`
	Title  string `json:"company_name"`
}

type tickerEntry struct {
	CIK    int64  `json:"cik_str"`
	Ticker string `json:"ticker"`
	Title  string `json:"title"`
}

// LookupTicker resolves a ticker to its CIK and company name. The directory is
// downloaded once per Client.
func (c *Client) LookupTicker(ctx context.Context, ticker string) (TickerInfo, error) {
	symbol := strings.ToUpper(strings.TrimSpace(ticker))
	if symbol == "" {
		return TickerInfo{}, fmt.Errorf("empty ticker: %w", ErrUnknownTicker)
	}

	tickers, err := c.loadTickers(ctx)
	if err != nil {
		return TickerInfo{}, err
	}

	info, ok := tickers[symbol]
	if !ok {
		return TickerInfo{}, fmt.Errorf("%s: %w", symbol, ErrUnknownTicker)
	}
	return info, nil
}

func (c *Client) loadTickers(ctx context.Context) (map[string]TickerInfo, error) {
	c.tickersMu.Lock()
	defer c.tickersMu.Unlock()

	if c.tickers != nil {
		return c.tickers, nil
	}

	var raw map[string]tickerEntry
	if err := c.getJSON(ctx, c.cfg.WWWBaseURL+"/files/company_tickers.json", &raw); err != nil {
		return nil, fmt.Errorf("failed to load ticker directory: %w", err)
	}

	tickers := make(map[string]TickerInfo, len(raw))
	for _, e := range raw {
		symbol := strings.ToUpper(e.Ticker)
		if _, exists := tickers[symbol]; exists {
			continue
		}
		tickers[symbol] = TickerInfo{
			Ticker: symbol,
			CIK:    PadCIK(strconv.FormatInt(e.CIK, 10)),
			Title:  e.Title,
		}
	}
	c.tickers = tickers
	return tickers, nil
}

// PadCIK left-pads a CIK with zeros to 10 digits
func PadCIK(cik string) string {
	cik = strings.TrimSpace(cik)
	for len(cik) < 10 {
		cik = "0" + cik
	}
	return cik
}

// TrimCIK strips leading zeros as used in archive paths
func TrimCIK(cik string) string {
	trimmed := strings.TrimLeft(strings.TrimSpace(cik), "0")
	if trimmed == "" {
		return "0"
	}
	return trimmed
}
