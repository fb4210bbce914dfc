package models

import (
	"fmt"
	"strings"
	"time"
)

// Tier is a subscription level that bounds how many instruments a user may
// track.
type Tier string

const (
	TierFree  Tier = "free"
	TierBasic Tier = "basic"
	TierPro   Tier = "pro"
)

// Unlimited is the Limit of tiers without a cap.
const Unlimited = -1

// Limit returns the maximum number of tracked instruments, or Unlimited.
func (t Tier) Limit() int {
	switch t {
	case TierFree:
		return 1
	case TierBasic:
		return 5
	case TierPro:
		return Unlimited
	default:
		return 0
	}
}

func ParseTier(s string) (Tier, error) {
	switch t := Tier(strings.ToLower(strings.TrimSpace(s))); t {
	case TierFree, TierBasic, TierPro:
		return t, nil
	default:
		return "", fmt.Errorf("invalid tier %q: must be free, basic or pro", s)
	}
}

// User is a Telegram subscriber.
type User struct {
	TelegramID int64     `json:"telegram_id"`
	Username   string    `json:"username,omitempty"`
	Tier       Tier      `json:"tier"`
	ExpiresAt  time.Time `json:"expires_at,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

// EffectiveTier is the tier in force at now. Paid tiers fall back to free
// once ExpiresAt has passed; a zero ExpiresAt never expires.
func (u User) EffectiveTier(now time.Time) Tier {
	if u.Tier != TierFree && !u.ExpiresAt.IsZero() && now.After(u.ExpiresAt) {
		return TierFree
	}
	return u.Tier
}

// UserStatus summarizes a subscriber's tracking allowance.
type UserStatus struct {
	User    User `json:"user"`
	Tracked int  `json:"tracked"`
	Limit   int  `json:"limit"`
}

// SlotsAvailable returns how many more instruments can be tracked, or
// Unlimited.
func (s UserStatus) SlotsAvailable() int {
	if s.Limit == Unlimited {
		return Unlimited
	}
	return max(s.Limit-s.Tracked, 0)
}

// AlertRecord is a delivered alert kept in the alert log.
type AlertRecord struct {
	ID             string    `json:"id"`
	Instrument     string    `json:"instrument"`
	RiskScore      int       `json:"risk_score"`
	Severity       Severity  `json:"severity"`
	Signals        []Signal  `json:"signals"`
	Recommendation string    `json:"recommendation"`
	DetectedAt     time.Time `json:"detected_at"`
	Recipients     int       `json:"recipients"`
}
