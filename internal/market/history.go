package market

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"
)

// historyRow mirrors one record of the broker's time-price series. All
// numeric fields arrive as strings on the wire.
type historyRow struct {
	Epoch          string `json:"ssboe"`
	Open           string `json:"into"`
	High           string `json:"inth"`
	Low            string `json:"intl"`
	Close          string `json:"intc"`
	Volume         string `json:"v"`
	IntervalVolume string `json:"intv"`
}

// ParseHistory decodes a broker historical-data payload into candles,
// oldest first. Volume is taken from "v" and falls back to "intv" when "v"
// is absent or empty; volume should not drive strategy decisions until that
// precedence is verified against a live sample.
func ParseHistory(data []byte) ([]Candle, error) {
	var rows []historyRow
	if err := json.Unmarshal(data, &rows); err != nil {
		return nil, fmt.Errorf("decode history payload: %w", err)
	}

	candles := make([]Candle, 0, len(rows))
	for i, r := range rows {
		epoch, err := strconv.ParseInt(r.Epoch, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("history row %d: bad epoch %q", i, r.Epoch)
		}
		open, err := parsePrice(r.Open)
		if err != nil {
			return nil, fmt.Errorf("history row %d: open: %w", i, err)
		}
		high, err := parsePrice(r.High)
		if err != nil {
			return nil, fmt.Errorf("history row %d: high: %w", i, err)
		}
		low, err := parsePrice(r.Low)
		if err != nil {
			return nil, fmt.Errorf("history row %d: low: %w", i, err)
		}
		closep, err := parsePrice(r.Close)
		if err != nil {
			return nil, fmt.Errorf("history row %d: close: %w", i, err)
		}

		vol := 0.0
		if r.Volume != "" {
			vol, _ = strconv.ParseFloat(r.Volume, 64)
		} else if r.IntervalVolume != "" {
			vol, _ = strconv.ParseFloat(r.IntervalVolume, 64)
		}

		candles = append(candles, NewCandle(time.Unix(epoch, 0), open, high, low, closep, vol))
	}

	// Broker returns newest first; flip to oldest first for import.
	for i, j := 0, len(candles)-1; i < j; i, j = i+1, j-1 {
		candles[i], candles[j] = candles[j], candles[i]
	}
	return candles, nil
}

func parsePrice(s string) (float64, error) {
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("bad price %q", s)
	}
	return v, nil
}
