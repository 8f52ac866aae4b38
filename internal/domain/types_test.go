package domain

import (
	"errors"
	"testing"
	"time"
)

var testDate = time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)

func TestNewOrderValid(t *testing.T) {
	o, err := NewOrder(testDate, "600000", OrderBuy, 200, 10.5)
	if err != nil {
		t.Fatalf("NewOrder returned error: %v", err)
	}
	if o.Asset != "600000" || o.Side != OrderBuy || o.Quantity != 200 {
		t.Errorf("NewOrder = %+v, want asset=600000 side=BUY qty=200", o)
	}
	if got, want := o.Notional(), 2100.0; got != want {
		t.Errorf("Notional() = %f, want %f", got, want)
	}
}

func TestNewOrderValidation(t *testing.T) {
	tests := []struct {
		name    string
		date    time.Time
		asset   string
		side    OrderSide
		qty     int64
		price   float64
		wantErr error
	}{
		{"missing date", time.Time{}, "600000", OrderBuy, 100, 10, ErrOrderNoDate},
		{"missing asset", testDate, "", OrderBuy, 100, 10, ErrOrderNoAsset},
		{"bad side", testDate, "600000", OrderSide("SHORT"), 100, 10, ErrOrderBadSide},
		{"zero quantity", testDate, "600000", OrderSell, 0, 10, ErrOrderBadQuantity},
		{"negative quantity", testDate, "600000", OrderSell, -100, 10, ErrOrderBadQuantity},
		{"zero price", testDate, "600000", OrderBuy, 100, 0, ErrOrderBadPrice},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewOrder(tt.date, tt.asset, tt.side, tt.qty, tt.price)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("NewOrder error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestSignalActionConstants(t *testing.T) {
	if SignalBuy != "BUY" || SignalSell != "SELL" {
		t.Error("signal action constants have unexpected values")
	}
	// HOLD is represented by the empty string, matching data sources that
	// leave the signal column blank on no-action dates.
	if SignalHold != "" {
		t.Errorf("SignalHold = %q, want empty string", SignalHold)
	}
}

func TestPositionMarketValue(t *testing.T) {
	p := Position{Asset: "600000", Quantity: 300, CostPrice: 9.8}
	if got, want := p.MarketValue(10.0), 3000.0; got != want {
		t.Errorf("MarketValue(10.0) = %f, want %f", got, want)
	}
}
