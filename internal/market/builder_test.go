package market

import (
	"testing"
	"time"
)

func at(h, m, s int) time.Time {
	return time.Date(2025, 6, 2, h, m, s, 0, time.UTC)
}

func TestBucketStart(t *testing.T) {
	tests := []struct {
		tf   Timeframe
		in   time.Time
		want time.Time
	}{
		{TimeframeM1, at(10, 3, 45), at(10, 3, 0)},
		{TimeframeM5, at(10, 3, 45), at(10, 0, 0)},
		{TimeframeM5, at(10, 7, 1), at(10, 5, 0)},
		{TimeframeM15, at(10, 59, 59), at(10, 45, 0)},
		{TimeframeM30, at(10, 29, 0), at(10, 0, 0)},
		{TimeframeH1, at(10, 59, 59), at(10, 0, 0)},
		{TimeframeH4, at(10, 0, 0), at(8, 0, 0)},
		{TimeframeD1, at(23, 59, 59), at(0, 0, 0)},
	}
	for _, tt := range tests {
		if got := tt.tf.BucketStart(tt.in); !got.Equal(tt.want) {
			t.Fatalf("%s BucketStart(%v) = %v, expected %v", tt.tf, tt.in, got, tt.want)
		}
	}
}

func TestProcessTickSingleBucket(t *testing.T) {
	b := NewCandleBuilder()

	// All four ticks land inside one M5 window.
	prices := []float64{100, 101, 99, 102}
	times := []time.Time{at(10, 0, 5), at(10, 1, 0), at(10, 2, 30), at(10, 4, 59)}

	for i, p := range prices {
		if sealed := b.ProcessTick("NSE:SBIN-EQ", p, times[i]); len(sealed) != 0 {
			t.Fatalf("tick %d sealed %d candles inside one window", i, len(sealed))
		}
	}

	cur, ok := b.Current("NSE:SBIN-EQ", TimeframeM5)
	if !ok {
		t.Fatal("no open M5 bucket")
	}
	if cur.Open != 100 || cur.High != 102 || cur.Low != 99 || cur.Close != 102 {
		t.Fatalf("open bucket OHLC = %+v, expected O:100 H:102 L:99 C:102", cur)
	}

	// The next tick in a later window seals exactly that candle.
	sealed := b.ProcessTick("NSE:SBIN-EQ", 103, at(10, 5, 1))
	var m5 *SealedCandle
	for i := range sealed {
		if sealed[i].Timeframe == TimeframeM5 {
			m5 = &sealed[i]
		}
	}
	if m5 == nil {
		t.Fatal("M5 candle not sealed by next-window tick")
	}
	c := m5.Candle
	if c.Open != 100 || c.High != 102 || c.Low != 99 || c.Close != 102 {
		t.Fatalf("sealed OHLC = %+v, expected O:100 H:102 L:99 C:102", c)
	}
	if !c.Timestamp.Equal(at(10, 0, 0)) {
		t.Fatalf("sealed bucket start = %v", c.Timestamp)
	}
}

func TestBucketPartition(t *testing.T) {
	b := NewCandleBuilder()

	// 30 minutes of ticks, one per minute. M5 must seal consecutive,
	// non-overlapping buckets aligned to 5-minute boundaries.
	var sealedStarts []time.Time
	for m := 0; m < 30; m++ {
		sealed := b.ProcessTick("X", 100+float64(m), at(9, m, 0))
		for _, sc := range sealed {
			if sc.Timeframe == TimeframeM5 {
				sealedStarts = append(sealedStarts, sc.Candle.Timestamp)
			}
		}
	}

	if len(sealedStarts) != 5 {
		t.Fatalf("sealed %d M5 candles, expected 5", len(sealedStarts))
	}
	for i, ts := range sealedStarts {
		want := at(9, i*5, 0)
		if !ts.Equal(want) {
			t.Fatalf("sealed candle %d start = %v, expected %v", i, ts, want)
		}
	}
}

func TestAtMostOneOpenBucket(t *testing.T) {
	b := NewCandleBuilder()

	for m := 0; m < 17; m++ {
		b.ProcessTick("X", 50, at(11, m, 13))
	}

	// Exactly one open bucket per timeframe regardless of tick count.
	for _, tf := range Timeframes {
		if _, ok := b.Current("X", tf); !ok {
			t.Fatalf("no open bucket for %s", tf)
		}
	}
	cur, _ := b.Current("X", TimeframeM5)
	if !cur.Timestamp.Equal(at(11, 15, 0)) {
		t.Fatalf("open M5 bucket start = %v, expected %v", cur.Timestamp, at(11, 15, 0))
	}
}

func TestNewCandleClampsInvariant(t *testing.T) {
	c := NewCandle(at(0, 0, 0), 100, 99, 101, 102, 0)
	if c.High < c.Open || c.High < c.Close {
		t.Fatalf("high %v below open/close", c.High)
	}
	if c.Low > c.Open || c.Low > c.Close {
		t.Fatalf("low %v above open/close", c.Low)
	}
}
