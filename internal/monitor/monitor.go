package monitor

import (
	"context"
	"fmt"
	"log"
	"time"

	"terminal-core/internal/events"
)

// AlertSink is a pluggable alert delivery target.
type AlertSink interface {
	Send(message string) error
}

// Monitor watches risk alerts and strategy errors and forwards them to an
// alert callback.
type Monitor struct {
	Bus     *events.Bus
	AlertFn func(string)
}

func (m *Monitor) Start(ctx context.Context) {
	if m.Bus == nil || m.AlertFn == nil {
		log.Println("monitor not fully configured; skipping")
		return
	}
	alerts, unsubAlerts := m.Bus.Subscribe(events.EventRiskAlert, 50)
	failures, unsubFailures := m.Bus.Subscribe(events.EventStrategyError, 50)
	go func() {
		defer unsubAlerts()
		defer unsubFailures()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-alerts:
				if !ok {
					return
				}
				m.AlertFn(formatAlert(msg))
			case msg, ok := <-failures:
				if !ok {
					return
				}
				m.AlertFn(formatAlert(msg))
			}
		}
	}()
}

func formatAlert(msg any) string {
	return "[" + time.Now().Format(time.RFC3339) + "] " + toString(msg)
}

func toString(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case events.StrategyErrorPayload:
		return fmt.Sprintf("strategy %s: %s", t.Name, t.Message)
	case events.RejectionPayload:
		return fmt.Sprintf("rejected %s: %s", t.Strategy, t.Reason)
	default:
		return "alert triggered"
	}
}
