package strategy

import (
	"fmt"

	"terminal-core/internal/market"
)

// MACrossover trades golden/death crosses of a fast moving average over a
// slow one on closed bars. Parameters:
//
//	fast_period   int    (default 10)
//	slow_period   int    (default 30)
//	ma_type       string "sma" or "ema" (default "sma")
type MACrossover struct {
	*Base

	fastPeriod int
	slowPeriod int
	maType     string

	closes   []float64
	prevFast float64
	prevSlow float64
	havePrev bool
}

// NewMACrossover builds an uninitialized moving-average crossover strategy.
func NewMACrossover(name string, deps Deps) *MACrossover {
	s := &MACrossover{}
	s.Base = newBase(name, deps, s)
	return s
}

func (s *MACrossover) onInit() error {
	p := s.Config().Parameters
	s.fastPeriod = intParam(p, "fast_period", 10)
	s.slowPeriod = intParam(p, "slow_period", 30)
	s.maType = stringParam(p, "ma_type", "sma")

	if s.fastPeriod <= 0 || s.slowPeriod <= 0 {
		return fmt.Errorf("periods must be positive")
	}
	if s.fastPeriod >= s.slowPeriod {
		return fmt.Errorf("fast_period %d must be below slow_period %d", s.fastPeriod, s.slowPeriod)
	}
	if s.maType != "sma" && s.maType != "ema" {
		return fmt.Errorf("unknown ma_type %q", s.maType)
	}

	s.closes = nil
	s.havePrev = false
	return nil
}

func (s *MACrossover) onStart() {}
func (s *MACrossover) onStop()  { s.havePrev = false }

func (s *MACrossover) handleTick(q market.Quote) error { return nil }

func (s *MACrossover) handleBar(c market.Candle) error {
	s.closes = append(s.closes, c.Close)
	if keep := s.slowPeriod * 3; len(s.closes) > keep {
		s.closes = s.closes[len(s.closes)-keep:]
	}
	if len(s.closes) < s.slowPeriod {
		return nil
	}

	var fast, slow float64
	if s.maType == "ema" {
		fast = ema(s.closes, s.fastPeriod)
		slow = ema(s.closes, s.slowPeriod)
	} else {
		fast = sma(s.closes, s.fastPeriod)
		slow = sma(s.closes, s.slowPeriod)
	}

	if s.havePrev {
		switch {
		case s.prevFast <= s.prevSlow && fast > slow:
			sl := s.stopLossPrice(c.Close, true)
			tp := s.takeProfitPrice(c.Close, true)
			s.generateSignal(SignalBuy, c.Close, sl, tp,
				fmt.Sprintf("golden cross: fast %.5f over slow %.5f", fast, slow), crossConfidence(fast, slow))
		case s.prevFast >= s.prevSlow && fast < slow:
			sl := s.stopLossPrice(c.Close, false)
			tp := s.takeProfitPrice(c.Close, false)
			s.generateSignal(SignalSell, c.Close, sl, tp,
				fmt.Sprintf("death cross: fast %.5f under slow %.5f", fast, slow), crossConfidence(fast, slow))
		}
	}

	s.prevFast = fast
	s.prevSlow = slow
	s.havePrev = true
	return nil
}

func sma(values []float64, period int) float64 {
	if len(values) < period {
		return 0
	}
	sum := 0.0
	for _, v := range values[len(values)-period:] {
		sum += v
	}
	return sum / float64(period)
}

func ema(values []float64, period int) float64 {
	if len(values) < period {
		return 0
	}
	k := 2.0 / float64(period+1)
	e := sma(values[:period], period)
	for _, v := range values[period:] {
		e = v*k + e*(1-k)
	}
	return e
}

// crossConfidence scales with the separation of the averages, capped at 1.
func crossConfidence(fast, slow float64) float64 {
	if slow == 0 {
		return 0.5
	}
	sep := (fast - slow) / slow
	if sep < 0 {
		sep = -sep
	}
	c := 0.5 + sep*100
	if c > 1 {
		c = 1
	}
	return c
}
