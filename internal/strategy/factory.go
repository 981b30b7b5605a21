package strategy

import "fmt"

// Known strategy kinds. The set is closed: configs naming anything else
// are rejected at load time rather than silently ignored.
const (
	KindMACrossover  = "ma_crossover"
	KindFixedPrice   = "fixed_price"
	KindTimeBreakout = "time_breakout"
)

// New constructs a strategy of the given kind. The result is
// uninitialized; callers must Initialize it with a validated config.
func New(kind, name string, deps Deps) (Strategy, error) {
	switch kind {
	case KindMACrossover:
		return NewMACrossover(name, deps), nil
	case KindFixedPrice:
		return NewFixedPrice(name, deps), nil
	case KindTimeBreakout:
		return NewTimeBreakout(name, deps), nil
	default:
		return nil, fmt.Errorf("unknown strategy kind %q", kind)
	}
}
