package models

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"
)

func TestNormalizeInstrument(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"btc", "BTC/USDT"},
		{"BTC/USDT", "BTC/USDT"},
		{" eth/usdt ", "ETH/USDT"},
		{"SOLUSDT", "SOL/USDT"},
		{"eth/btc", "ETH/BTC"},
		{"", ""},
		{"usdt", ""},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			if got := NormalizeInstrument(tt.input); got != tt.expected {
				t.Errorf("NormalizeInstrument(%q) = %q, want %q", tt.input, got, tt.expected)
			}
		})
	}
}

func TestValidateInstrument(t *testing.T) {
	if err := ValidateInstrument("BTC/USDT"); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
	for _, bad := range []string{"BTCUSDT", "/USDT", "BTC/", "A/B/C"} {
		if err := ValidateInstrument(bad); err == nil {
			t.Errorf("expected error for %q", bad)
		}
	}
}

func TestOrderBookValidate(t *testing.T) {
	tests := []struct {
		name    string
		book    OrderBook
		wantErr bool
	}{
		{
			name: "valid book",
			book: OrderBook{
				Bids: []Level{{Price: 100, Quantity: 1}, {Price: 99, Quantity: 2}},
				Asks: []Level{{Price: 101, Quantity: 1}, {Price: 102, Quantity: 2}},
			},
		},
		{
			name: "bids out of order",
			book: OrderBook{
				Bids: []Level{{Price: 99, Quantity: 1}, {Price: 100, Quantity: 2}},
			},
			wantErr: true,
		},
		{
			name: "asks out of order",
			book: OrderBook{
				Asks: []Level{{Price: 102, Quantity: 1}, {Price: 101, Quantity: 2}},
			},
			wantErr: true,
		},
		{
			name: "zero price",
			book: OrderBook{
				Bids: []Level{{Price: 0, Quantity: 1}},
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.book.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("OrderBook.Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestOrderBookBestPrices(t *testing.T) {
	var empty OrderBook
	if !empty.Empty() || empty.BestBid() != 0 || empty.BestAsk() != 0 {
		t.Error("empty book should report zero best prices")
	}

	book := OrderBook{
		Bids: []Level{{Price: 100, Quantity: 1}},
		Asks: []Level{{Price: 101, Quantity: 1}},
	}
	if book.BestBid() != 100 || book.BestAsk() != 101 {
		t.Errorf("got best bid %f ask %f", book.BestBid(), book.BestAsk())
	}
}

func TestBaselineSampleRatio(t *testing.T) {
	if r := (BaselineSample{BidSupport: 100, AskResistance: 0}).Ratio(); r != 0 {
		t.Errorf("ratio with zero resistance = %f, want 0", r)
	}
	if r := (BaselineSample{BidSupport: 120, AskResistance: 100}).Ratio(); r != 1.2 {
		t.Errorf("ratio = %f, want 1.2", r)
	}
}

func TestSeverityOrderAndText(t *testing.T) {
	if !(SeverityCritical > SeverityWarning && SeverityWarning > SeverityInfo) {
		t.Fatal("severity ranks must be ordered critical > warning > info")
	}
	for _, s := range []Severity{SeverityInfo, SeverityWarning, SeverityCritical} {
		parsed, err := ParseSeverity(s.String())
		if err != nil || parsed != s {
			t.Errorf("ParseSeverity(%q) = %v, %v", s.String(), parsed, err)
		}
	}
	if _, err := ParseSeverity("panic"); err == nil {
		t.Error("expected error for unknown severity")
	}
}

func TestEvidenceSignalTypes(t *testing.T) {
	cases := map[SignalType]Evidence{
		SignalWallRemoval:     WallEvidence{},
		SignalLiquidityDrain:  LiquidityEvidence{},
		SignalPriceDrop:       PriceMoveEvidence{Direction: SignalPriceDrop},
		SignalPricePump:       PriceMoveEvidence{Direction: SignalPricePump},
		SignalVolumeSurge:     VolumeSurgeEvidence{},
		SignalVolatilitySpike: VolatilityEvidence{},
		SignalSellPressure:    PressureEvidence{},
	}
	if len(cases) != len(SignalTypes) {
		t.Fatalf("evidence cases cover %d types, want %d", len(cases), len(SignalTypes))
	}
	for want, ev := range cases {
		if got := ev.SignalType(); got != want {
			t.Errorf("%T.SignalType() = %s, want %s", ev, got, want)
		}
	}
}

func TestRiskAssessmentJSON(t *testing.T) {
	a := RiskAssessment{
		Instrument: "BTC/USDT",
		RiskScore:  55,
		Severity:   SeverityWarning,
		Signals: []Signal{{
			Type:     SignalVolumeSurge,
			Severity: SeverityCritical,
			Message:  "volume 5.0x",
			Evidence: VolumeSurgeEvidence{CurrentVolume: 500, AverageVolume: 100, Ratio: 5},
		}},
		Timestamp: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
		Err:       errors.New("order book unavailable"),
	}

	raw, err := json.Marshal(a)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	s := string(raw)
	for _, want := range []string{`"severity":"warning"`, `"type":"volume_surge"`, `"error":"order book unavailable"`, `"volume_ratio":5`} {
		if !strings.Contains(s, want) {
			t.Errorf("JSON %s missing %s", s, want)
		}
	}
}

func TestTierLimits(t *testing.T) {
	tests := []struct {
		tier Tier
		want int
	}{
		{TierFree, 1},
		{TierBasic, 5},
		{TierPro, Unlimited},
		{Tier("gold"), 0},
	}
	for _, tt := range tests {
		if got := tt.tier.Limit(); got != tt.want {
			t.Errorf("%s.Limit() = %d, want %d", tt.tier, got, tt.want)
		}
	}

	if tier, err := ParseTier(" Pro "); err != nil || tier != TierPro {
		t.Errorf("ParseTier(Pro) = %q, %v", tier, err)
	}
	if _, err := ParseTier("gold"); err == nil {
		t.Error("expected error for unknown tier")
	}
}

func TestEffectiveTier(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	tests := []struct {
		name string
		user User
		want Tier
	}{
		{"free never expires", User{Tier: TierFree, ExpiresAt: now.Add(-time.Hour)}, TierFree},
		{"paid without expiry", User{Tier: TierPro}, TierPro},
		{"paid before expiry", User{Tier: TierBasic, ExpiresAt: now.Add(time.Hour)}, TierBasic},
		{"paid after expiry", User{Tier: TierBasic, ExpiresAt: now.Add(-time.Second)}, TierFree},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.user.EffectiveTier(now); got != tt.want {
				t.Errorf("EffectiveTier() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestSlotsAvailable(t *testing.T) {
	tests := []struct {
		status UserStatus
		want   int
	}{
		{UserStatus{Tracked: 0, Limit: 1}, 1},
		{UserStatus{Tracked: 3, Limit: 5}, 2},
		{UserStatus{Tracked: 2, Limit: 1}, 0},
		{UserStatus{Tracked: 40, Limit: Unlimited}, Unlimited},
	}
	for _, tt := range tests {
		if got := tt.status.SlotsAvailable(); got != tt.want {
			t.Errorf("%+v.SlotsAvailable() = %d, want %d", tt.status, got, tt.want)
		}
	}
}
