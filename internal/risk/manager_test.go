package risk

import (
	"testing"
	"time"

	"terminal-core/internal/order"
)

func TestCalculatePositionSize(t *testing.T) {
	tests := []struct {
		name    string
		cfg     SizingConfig
		balance float64
		entry   float64
		sl      float64
		want    float64
	}{
		{
			// balance=10000, risk 2% => $200; 100.0 -> 99.0 is 10000 pips
			// at the 0.0001 pip unit; 200 / (10000 * 10) = 0.002 -> floored
			name:    "dynamic sizing floors at minimum lot",
			cfg:     SizingConfig{LotSize: 0.1, RiskPercent: 2, DynamicSizing: true},
			balance: 10000,
			entry:   100.0,
			sl:      99.0,
			want:    0.01,
		},
		{
			// 50 pip stop: 200 / (50 * 10) = 0.4
			name:    "dynamic sizing normal case",
			cfg:     SizingConfig{LotSize: 0.1, RiskPercent: 2, DynamicSizing: true},
			balance: 10000,
			entry:   1.2000,
			sl:      1.1950,
			want:    0.4,
		},
		{
			name:    "fixed lot when dynamic disabled",
			cfg:     SizingConfig{LotSize: 0.25, RiskPercent: 2, DynamicSizing: false},
			balance: 10000,
			entry:   1.2000,
			sl:      1.1950,
			want:    0.25,
		},
		{
			name:    "zero stop distance falls back to fixed lot",
			cfg:     SizingConfig{LotSize: 0.3, RiskPercent: 2, DynamicSizing: true},
			balance: 10000,
			entry:   1.2000,
			sl:      1.2000,
			want:    0.3,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := NewManager(DefaultConfig(), nil, tt.balance)
			if got := m.CalculatePositionSize(tt.cfg, tt.entry, tt.sl); got != tt.want {
				t.Fatalf("CalculatePositionSize = %v, expected %v", got, tt.want)
			}
		})
	}
}

func TestStopLossTakeProfitComputation(t *testing.T) {
	m := NewManager(DefaultConfig(), nil, 10000)

	if sl := m.CalculateStopLoss(1.2000, true, 50); sl != 1.1950 {
		t.Fatalf("buy SL = %v, expected 1.1950", sl)
	}
	if sl := m.CalculateStopLoss(1.2000, false, 50); sl != 1.2050 {
		t.Fatalf("sell SL = %v, expected 1.2050", sl)
	}
	if tp := m.CalculateTakeProfit(1.2000, true, 100); tp != 1.2100 {
		t.Fatalf("buy TP = %v, expected 1.2100", tp)
	}
	if tp := m.CalculateTakeProfit(1.2000, false, 100); tp != 1.1900 {
		t.Fatalf("sell TP = %v, expected 1.1900", tp)
	}
}

func TestCanOpenPositionDailyLossLimit(t *testing.T) {
	balances := []float64{1000, 10000, 250000}
	for _, bal := range balances {
		m := NewManager(DefaultConfig(), nil, bal)

		// loss just under the 5% limit still admits
		m.UpdateDailyLoss(-bal * 0.049)
		if ok, reason := m.CanOpenPosition("test", 1.0, 0.1); !ok {
			t.Fatalf("balance %v: rejected below limit: %s", bal, reason)
		}

		// crossing the limit always rejects
		m.UpdateDailyLoss(-bal * 0.002)
		if ok, _ := m.CanOpenPosition("test", 1.0, 0.1); ok {
			t.Fatalf("balance %v: admitted at/over daily loss limit", bal)
		}
	}
}

func TestCanOpenPositionRiskCap(t *testing.T) {
	m := NewManager(DefaultConfig(), nil, 10000)

	if ok, _ := m.CanOpenPosition("test", 2.5, 0.1); ok {
		t.Fatal("per-trade risk above cap must reject")
	}
	if ok, reason := m.CanOpenPosition("test", 2.0, 0.1); !ok {
		t.Fatalf("risk at cap rejected: %s", reason)
	}
}

func TestCanOpenPositionEquityFloor(t *testing.T) {
	m := NewManager(DefaultConfig(), nil, 10000)
	m.UpdateAccount(10000, 5000)

	if ok, _ := m.CanOpenPosition("test", 1.0, 0.1); ok {
		t.Fatal("equity at 50% of balance must reject")
	}

	m.UpdateAccount(10000, 5001)
	if ok, reason := m.CanOpenPosition("test", 1.0, 0.1); !ok {
		t.Fatalf("equity above floor rejected: %s", reason)
	}
}

func TestValidateOrderVolumeBounds(t *testing.T) {
	m := NewManager(DefaultConfig(), nil, 10000)

	o := &order.Order{Symbol: "X", Side: order.SideBuy, Volume: 0}
	if ok, reason := m.ValidateOrder(o, "test", 1.0); ok || reason != "invalid volume" {
		t.Fatalf("zero volume: ok=%v reason=%q", ok, reason)
	}

	o.Volume = 11
	if ok, _ := m.ValidateOrder(o, "test", 1.0); ok {
		t.Fatal("volume above 10 lots must reject")
	}

	o.Volume = 1
	if ok, reason := m.ValidateOrder(o, "test", 1.0); !ok {
		t.Fatalf("valid order rejected: %s", reason)
	}
}

func TestDailyLossRollover(t *testing.T) {
	m := NewManager(DefaultConfig(), nil, 10000)
	m.UpdateDailyLoss(-600)

	// same day: accumulator untouched
	m.ResetDailyLossIfNewDay(m.dailyLossDate)
	if m.GetRiskSummary().DailyLoss != -600 {
		t.Fatal("same-day check must not reset the accumulator")
	}

	// next calendar day: reset exactly once
	m.ResetDailyLossIfNewDay(m.dailyLossDate.Add(24 * time.Hour))
	if got := m.GetRiskSummary().DailyLoss; got != 0 {
		t.Fatalf("DailyLoss after rollover = %v, expected 0", got)
	}
}

func TestRiskRewardRatio(t *testing.T) {
	if rr := RiskRewardRatio(100, 99, 102); rr != 2 {
		t.Fatalf("rr = %v, expected 2", rr)
	}
	if rr := RiskRewardRatio(100, 100, 102); rr != 0 {
		t.Fatalf("zero risk distance rr = %v, expected 0", rr)
	}
}
