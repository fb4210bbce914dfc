package telegram

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/rewired-gh/mmradar/internal/models"
	"github.com/rewired-gh/mmradar/internal/storage"
)

func TestEscapeMarkdownV2(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"hello", "hello"},
		{"BTC/USDT", "BTC/USDT"},
		{"down 5.2%", "down 5\\.2%"},
		{"a_b*c", "a\\_b\\*c"},
		{"(1.5x)", "\\(1\\.5x\\)"},
		{"-3 std dev!", "\\-3 std dev\\!"},
		{"", ""},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			if got := escapeMarkdownV2(tt.input); got != tt.expected {
				t.Errorf("escapeMarkdownV2(%q) = %q, want %q", tt.input, got, tt.expected)
			}
		})
	}
}

func TestNewClient_InvalidChatID(t *testing.T) {
	// Chat ID parsing happens before any network call.
	_, err := NewClient("", "not-a-number", 3, time.Second)
	if err == nil {
		t.Error("Expected error for invalid chat ID, got nil")
	}
}

func TestFormatAlert(t *testing.T) {
	ts := time.Date(2026, 3, 1, 14, 5, 9, 0, time.UTC)
	a := models.RiskAssessment{
		Instrument: "BTC/USDT",
		RiskScore:  85,
		Severity:   models.SeverityCritical,
		Signals: []models.Signal{
			{Type: models.SignalPriceDrop, Severity: models.SeverityCritical, Message: "Heavy dump: price down 6.2%"},
		},
		Recommendation: "Exit positions.",
		Timestamp:      ts,
	}

	got := FormatAlert(a)
	for _, want := range []string{
		"*CRITICAL ALERT \\- BTC/USDT*",
		"*Risk Score:* 85/100",
		"• Heavy dump: price down 6\\.2%",
		"Exit positions\\.",
		"14:05:09 01/03/2026",
	} {
		if !strings.Contains(got, want) {
			t.Errorf("FormatAlert() missing %q in:\n%s", want, got)
		}
	}
}

func TestFormatAlert_Failed(t *testing.T) {
	a := models.RiskAssessment{
		Instrument: "ETH/USDT",
		Severity:   models.SeverityInfo,
		Err:        errors.New("order book: timeout"),
		Timestamp:  time.Now(),
	}
	got := FormatAlert(a)
	if !strings.Contains(got, "Could not analyze") {
		t.Errorf("expected failure text, got:\n%s", got)
	}
	if strings.Contains(got, "Risk Score") {
		t.Errorf("failed assessment must not show a score:\n%s", got)
	}
}

type fakeSubs struct {
	users   map[int64]models.User
	tracked map[int64][]string
	limit   int
}

func newFakeSubs(limit int) *fakeSubs {
	return &fakeSubs{users: map[int64]models.User{}, tracked: map[int64][]string{}, limit: limit}
}

func (f *fakeSubs) UpsertUser(id int64, username string) (models.User, error) {
	u, ok := f.users[id]
	if !ok {
		u = models.User{TelegramID: id, Username: username, Tier: models.TierFree}
		f.users[id] = u
	}
	return u, nil
}

func (f *fakeSubs) AddTrackedSymbol(id int64, inst string) error {
	for _, s := range f.tracked[id] {
		if s == inst {
			return storage.ErrAlreadyTracked
		}
	}
	if len(f.tracked[id]) >= f.limit {
		return storage.ErrTrackLimit
	}
	f.tracked[id] = append(f.tracked[id], inst)
	return nil
}

func (f *fakeSubs) RemoveTrackedSymbol(id int64, inst string) error {
	list := f.tracked[id]
	for i, s := range list {
		if s == inst {
			f.tracked[id] = append(list[:i], list[i+1:]...)
			return nil
		}
	}
	return storage.ErrNotFound
}

func (f *fakeSubs) TrackedSymbols(id int64) ([]string, error) {
	return f.tracked[id], nil
}

func (f *fakeSubs) Status(id int64) (models.UserStatus, error) {
	u, ok := f.users[id]
	if !ok {
		return models.UserStatus{}, storage.ErrNotFound
	}
	return models.UserStatus{User: u, Tracked: len(f.tracked[id]), Limit: f.limit}, nil
}

type fakeAnalyzer struct {
	called []string
}

func (f *fakeAnalyzer) Peek(_ context.Context, inst string) models.RiskAssessment {
	f.called = append(f.called, inst)
	return models.RiskAssessment{Instrument: inst, RiskScore: 10, Severity: models.SeverityInfo, Timestamp: time.Now()}
}

func TestCommands_Reply(t *testing.T) {
	ctx := context.Background()
	subs := newFakeSubs(1)
	analyzer := &fakeAnalyzer{}
	cmds := NewCommands(subs, analyzer)

	steps := []struct {
		command, args string
		contains      string
	}{
		{"ping", "", "Pong"},
		{"status", "", "not registered"},
		{"track", "", "Please give a symbol"},
		{"track", "btc", "Now tracking *BTC/USDT*"},
		{"track", "BTC/USDT", "already track"},
		{"track", "eth", "plan limit is reached"},
		{"list", "", "1\\. BTC/USDT"},
		{"status", "", "Tracked: 1 / 1"},
		{"untrack", "eth", "not tracking *ETH/USDT*"},
		{"untrack", "btc", "Removed *BTC/USDT*"},
		{"list", "", "not tracking anything"},
		{"status", "sol", "SOL/USDT"},
		{"nope", "", "Unknown command"},
	}

	for _, s := range steps {
		got := cmds.Reply(ctx, 42, "alice", s.command, s.args)
		if !strings.Contains(got, s.contains) {
			t.Errorf("/%s %s = %q, want it to contain %q", s.command, s.args, got, s.contains)
		}
	}

	if len(analyzer.called) != 1 || analyzer.called[0] != "SOL/USDT" {
		t.Errorf("analyzer calls = %v, want [SOL/USDT]", analyzer.called)
	}
}

func TestCommands_StatusUnlimited(t *testing.T) {
	subs := newFakeSubs(models.Unlimited)
	cmds := NewCommands(subs, nil)
	cmds.Reply(context.Background(), 7, "", "start", "")

	got := cmds.Reply(context.Background(), 7, "", "status", "")
	if !strings.Contains(got, "Slots available: unlimited") {
		t.Errorf("status = %q", got)
	}
	if got := cmds.Reply(context.Background(), 7, "", "status", "btc"); !strings.Contains(got, "not available") {
		t.Errorf("status with nil analyzer = %q", got)
	}
}
