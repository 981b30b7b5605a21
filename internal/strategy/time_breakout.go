package strategy

import (
	"fmt"

	"terminal-core/internal/market"
)

// TimeBreakout arms buy and sell stop levels at a configured time of day
// and trades the first breakout of either level. Parameters:
//
//	target_hour    int     (required, 0-23)
//	target_minute  int     (default 0)
//	buy_level      float64 (price to break above; 0 disables)
//	sell_level     float64 (price to break below; 0 disables)
//	one_shot       bool    (default true: fire at most once per day)
//
// At least one of buy_level/sell_level must be set. Levels arm at the
// target time and the strategy watches ticks from then on.
type TimeBreakout struct {
	*Base

	targetHour   int
	targetMinute int
	buyLevel     float64
	sellLevel    float64
	oneShot      bool

	armed     bool
	firedDay  int // year*1000+yday of the last firing, 0 when never
	armedDay  int
	lastPrice float64
}

// NewTimeBreakout builds an uninitialized time-window breakout strategy.
func NewTimeBreakout(name string, deps Deps) *TimeBreakout {
	s := &TimeBreakout{}
	s.Base = newBase(name, deps, s)
	return s
}

func (s *TimeBreakout) onInit() error {
	p := s.Config().Parameters
	s.targetHour = intParam(p, "target_hour", -1)
	s.targetMinute = intParam(p, "target_minute", 0)
	s.buyLevel = floatParam(p, "buy_level", 0)
	s.sellLevel = floatParam(p, "sell_level", 0)
	s.oneShot = boolParam(p, "one_shot", true)

	if s.targetHour < 0 || s.targetHour > 23 {
		return fmt.Errorf("target_hour must be 0-23")
	}
	if s.targetMinute < 0 || s.targetMinute > 59 {
		return fmt.Errorf("target_minute must be 0-59")
	}
	if s.buyLevel <= 0 && s.sellLevel <= 0 {
		return fmt.Errorf("at least one of buy_level/sell_level is required")
	}
	s.armed = false
	s.firedDay = 0
	return nil
}

func (s *TimeBreakout) onStart() {}
func (s *TimeBreakout) onStop()  { s.armed = false }

func (s *TimeBreakout) handleTick(q market.Quote) error {
	now := s.deps.now()
	day := now.Year()*1000 + now.YearDay()

	if !s.armed {
		past := now.Hour() > s.targetHour ||
			(now.Hour() == s.targetHour && now.Minute() >= s.targetMinute)
		if past && s.armedDay != day {
			s.armed = true
			s.armedDay = day
			s.lastPrice = q.Last
			return nil
		}
		return nil
	}

	if s.oneShot && s.firedDay == day {
		return nil
	}

	price := q.Last
	prev := s.lastPrice
	s.lastPrice = price

	switch {
	case s.buyLevel > 0 && prev < s.buyLevel && price >= s.buyLevel:
		sl := s.stopLossPrice(price, true)
		tp := s.takeProfitPrice(price, true)
		s.generateSignal(SignalBuy, price, sl, tp,
			fmt.Sprintf("breakout above %.5f", s.buyLevel), 0.8)
		s.firedDay = day
		s.armed = false
	case s.sellLevel > 0 && prev > s.sellLevel && price <= s.sellLevel:
		sl := s.stopLossPrice(price, false)
		tp := s.takeProfitPrice(price, false)
		s.generateSignal(SignalSell, price, sl, tp,
			fmt.Sprintf("breakout below %.5f", s.sellLevel), 0.8)
		s.firedDay = day
		s.armed = false
	}
	return nil
}

func (s *TimeBreakout) handleBar(c market.Candle) error { return nil }
