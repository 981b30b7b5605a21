package events

// Event enumerates high-level topics inside the terminal core.
type Event string

const (
	EventTickReceived    Event = "tick_received"
	EventCandleClosed    Event = "candle_closed"
	EventOrderPlaced     Event = "order.placed"
	EventOrderModified   Event = "order.modified"
	EventOrderClosed     Event = "order.closed"
	EventOrderRejected   Event = "order.rejected"
	EventAccountUpdated  Event = "account_updated"
	EventSignalGenerated Event = "signal_generated"
	EventRiskAlert       Event = "risk_alert"

	EventStrategyRegistered   Event = "strategy.registered"
	EventStrategyUnregistered Event = "strategy.unregistered"
	EventStrategyStarted      Event = "strategy.started"
	EventStrategyStopped      Event = "strategy.stopped"
	EventStrategyPaused       Event = "strategy.paused"
	EventStrategyResumed      Event = "strategy.resumed"
	EventStrategyError        Event = "strategy.error"
	EventStrategyUpdated      Event = "strategy.updated"

	EventPositionOpened      Event = "position.opened"
	EventPositionClosed      Event = "position.closed"
	EventPositionUpdated     Event = "position.updated"
	EventTrailingStopUpdated Event = "position.trailing_stop"
)

// CandleClosedPayload carries a sealed candle with its symbol and timeframe.
type CandleClosedPayload struct {
	Symbol    string
	Timeframe string
	Candle    any
}

// StrategyErrorPayload carries a strategy failure report.
type StrategyErrorPayload struct {
	Name    string
	Message string
}

// TrailingStopPayload carries a trailing-stop adjustment.
type TrailingStopPayload struct {
	Ticket  int64
	NewStop float64
	Symbol  string
}

// RejectionPayload carries an order/signal rejection with its reason.
type RejectionPayload struct {
	Strategy string
	Reason   string
}

// AccountPayload mirrors the broker's account snapshot.
type AccountPayload struct {
	Balance     float64
	Equity      float64
	Margin      float64
	FreeMargin  float64
	MarginLevel float64
}
