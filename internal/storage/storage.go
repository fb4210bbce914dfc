// Package storage provides SQLite-backed persistence for subscribers, tracked
// instruments, and the alert log.
package storage

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/rewired-gh/mmradar/internal/models"
)

var (
	ErrNotFound       = errors.New("not found")
	ErrTrackLimit     = errors.New("tracking limit reached for tier")
	ErrAlreadyTracked = errors.New("instrument already tracked")
)

// Storage wraps a SQLite database for all persistence operations.
type Storage struct {
	db        *sql.DB
	maxAlerts int
	now       func() time.Time
}

// New opens or creates the SQLite database at dbPath.
// An empty dbPath defaults to $TMPDIR/mmradar/data.db. The alert log keeps at
// most maxAlerts rows; zero disables rotation.
func New(dbPath string, maxAlerts int) (*Storage, error) {
	if dbPath == "" {
		dbPath = filepath.Join(os.TempDir(), "mmradar", "data.db")
	}
	if dbPath != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create data directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1) // single writer; WAL allows concurrent readers
	if _, err := db.Exec(`PRAGMA journal_mode=WAL`); err != nil {
		return nil, fmt.Errorf("failed to set WAL mode: %w", err)
	}
	if _, err := db.Exec(`PRAGMA foreign_keys=ON`); err != nil {
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}
	s := &Storage{db: db, maxAlerts: maxAlerts, now: time.Now}
	if err := s.createTables(); err != nil {
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}
	return s, nil
}

// Close closes the underlying database connection.
func (s *Storage) Close() error {
	return s.db.Close()
}

// Ping checks that the database is reachable.
func (s *Storage) Ping() error {
	return s.db.Ping()
}

func (s *Storage) createTables() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS users (
			telegram_id     INTEGER PRIMARY KEY,
			username        TEXT NOT NULL DEFAULT '',
			tier            TEXT NOT NULL DEFAULT 'free',
			expires_at      INTEGER NOT NULL DEFAULT 0,
			created_at      INTEGER NOT NULL,
			updated_at      INTEGER NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS tracked_symbols (
			telegram_id     INTEGER NOT NULL REFERENCES users(telegram_id) ON DELETE CASCADE,
			symbol          TEXT NOT NULL,
			added_at        INTEGER NOT NULL,
			PRIMARY KEY (telegram_id, symbol)
		)`,
		`CREATE TABLE IF NOT EXISTS alerts (
			id              TEXT PRIMARY KEY,
			symbol          TEXT NOT NULL,
			risk_score      INTEGER NOT NULL,
			severity        TEXT NOT NULL,
			signals         TEXT NOT NULL DEFAULT '[]',
			recommendation  TEXT NOT NULL,
			detected_at     INTEGER NOT NULL,
			recipients      INTEGER NOT NULL DEFAULT 0
		)`,
		`CREATE INDEX IF NOT EXISTS idx_tracked_symbols_symbol ON tracked_symbols(symbol)`,
		`CREATE INDEX IF NOT EXISTS idx_alerts_detected_at ON alerts(detected_at)`,
		`CREATE INDEX IF NOT EXISTS idx_alerts_symbol ON alerts(symbol, detected_at DESC)`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}

// UpsertUser registers a subscriber on the free tier, or refreshes the
// username of an existing one.
func (s *Storage) UpsertUser(telegramID int64, username string) (models.User, error) {
	now := s.now().UnixNano()
	_, err := s.db.Exec(`
		INSERT INTO users (telegram_id, username, tier, created_at, updated_at)
		VALUES (?,?,?,?,?)
		ON CONFLICT(telegram_id) DO UPDATE SET username=excluded.username, updated_at=excluded.updated_at`,
		telegramID, username, string(models.TierFree), now, now,
	)
	if err != nil {
		return models.User{}, fmt.Errorf("failed to upsert user: %w", err)
	}
	return s.GetUser(telegramID)
}

func (s *Storage) GetUser(telegramID int64) (models.User, error) {
	row := s.db.QueryRow(`SELECT `+userCols+` FROM users WHERE telegram_id = ?`, telegramID)
	u, err := scanUser(row.Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return models.User{}, fmt.Errorf("user %d: %w", telegramID, ErrNotFound)
	}
	if err != nil {
		return models.User{}, fmt.Errorf("failed to get user: %w", err)
	}
	return u, nil
}

// SetTier changes a subscriber's tier. A zero expiresAt never expires.
func (s *Storage) SetTier(telegramID int64, tier models.Tier, expiresAt time.Time) error {
	if _, err := models.ParseTier(string(tier)); err != nil {
		return err
	}
	res, err := s.db.Exec(`UPDATE users SET tier=?, expires_at=?, updated_at=? WHERE telegram_id=?`,
		string(tier), unixNano(expiresAt), s.now().UnixNano(), telegramID)
	if err != nil {
		return fmt.Errorf("failed to set tier: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("user %d: %w", telegramID, ErrNotFound)
	}
	return nil
}

// Status returns the subscriber's allowance, downgrading an expired paid tier
// to free first.
func (s *Storage) Status(telegramID int64) (models.UserStatus, error) {
	u, err := s.refreshTier(telegramID)
	if err != nil {
		return models.UserStatus{}, err
	}
	var n int
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM tracked_symbols WHERE telegram_id = ?`, telegramID).Scan(&n); err != nil {
		return models.UserStatus{}, fmt.Errorf("failed to count tracked symbols: %w", err)
	}
	return models.UserStatus{User: u, Tracked: n, Limit: u.Tier.Limit()}, nil
}

func (s *Storage) refreshTier(telegramID int64) (models.User, error) {
	u, err := s.GetUser(telegramID)
	if err != nil {
		return u, err
	}
	if eff := u.EffectiveTier(s.now()); eff != u.Tier {
		if err := s.SetTier(telegramID, eff, time.Time{}); err != nil {
			return u, err
		}
		u.Tier, u.ExpiresAt = eff, time.Time{}
	}
	return u, nil
}

// AddTrackedSymbol adds instrument to the user's list within the tier limit.
func (s *Storage) AddTrackedSymbol(telegramID int64, instrument string) error {
	u, err := s.refreshTier(telegramID)
	if err != nil {
		return err
	}

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	var exists int
	err = tx.QueryRow(`SELECT COUNT(*) FROM tracked_symbols WHERE telegram_id = ? AND symbol = ?`,
		telegramID, instrument).Scan(&exists)
	if err != nil {
		return fmt.Errorf("failed to check tracked symbol: %w", err)
	}
	if exists > 0 {
		return fmt.Errorf("%s: %w", instrument, ErrAlreadyTracked)
	}

	if limit := u.Tier.Limit(); limit != models.Unlimited {
		var n int
		if err := tx.QueryRow(`SELECT COUNT(*) FROM tracked_symbols WHERE telegram_id = ?`, telegramID).Scan(&n); err != nil {
			return fmt.Errorf("failed to count tracked symbols: %w", err)
		}
		if n >= limit {
			return fmt.Errorf("%s allows %d: %w", u.Tier, limit, ErrTrackLimit)
		}
	}

	if _, err := tx.Exec(`INSERT INTO tracked_symbols (telegram_id, symbol, added_at) VALUES (?,?,?)`,
		telegramID, instrument, s.now().UnixNano()); err != nil {
		return fmt.Errorf("failed to insert tracked symbol: %w", err)
	}
	return tx.Commit()
}

func (s *Storage) RemoveTrackedSymbol(telegramID int64, instrument string) error {
	res, err := s.db.Exec(`DELETE FROM tracked_symbols WHERE telegram_id = ? AND symbol = ?`, telegramID, instrument)
	if err != nil {
		return fmt.Errorf("failed to remove tracked symbol: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%s: %w", instrument, ErrNotFound)
	}
	return nil
}

// TrackedSymbols lists a user's instruments in the order they were added.
func (s *Storage) TrackedSymbols(telegramID int64) ([]string, error) {
	return s.queryStrings(`SELECT symbol FROM tracked_symbols WHERE telegram_id = ? ORDER BY added_at, symbol`, telegramID)
}

// AllTrackedSymbols lists every instrument tracked by at least one user.
func (s *Storage) AllTrackedSymbols() ([]string, error) {
	return s.queryStrings(`SELECT DISTINCT symbol FROM tracked_symbols ORDER BY symbol`)
}

// SubscribersFor lists the users tracking instrument.
func (s *Storage) SubscribersFor(instrument string) ([]int64, error) {
	rows, err := s.db.Query(`SELECT telegram_id FROM tracked_symbols WHERE symbol = ? ORDER BY telegram_id`, instrument)
	if err != nil {
		return nil, fmt.Errorf("failed to query subscribers: %w", err)
	}
	defer rows.Close()
	ids := []int64{}
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan subscriber: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (s *Storage) queryStrings(query string, args ...any) ([]string, error) {
	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query symbols: %w", err)
	}
	defer rows.Close()
	out := []string{}
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			return nil, fmt.Errorf("failed to scan symbol: %w", err)
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

type storedSignal struct {
	Type     models.SignalType `json:"type"`
	Severity models.Severity   `json:"severity"`
	Message  string            `json:"message"`
}

// RecordAlert appends a delivered assessment to the alert log.
func (s *Storage) RecordAlert(a models.RiskAssessment, recipients int) (models.AlertRecord, error) {
	stored := make([]storedSignal, len(a.Signals))
	for i, sig := range a.Signals {
		stored[i] = storedSignal{Type: sig.Type, Severity: sig.Severity, Message: sig.Message}
	}
	signalsJSON, err := json.Marshal(stored)
	if err != nil {
		return models.AlertRecord{}, fmt.Errorf("failed to marshal signals: %w", err)
	}

	rec := models.AlertRecord{
		ID:             uuid.NewString(),
		Instrument:     a.Instrument,
		RiskScore:      a.RiskScore,
		Severity:       a.Severity,
		Signals:        signalsOf(stored),
		Recommendation: a.Recommendation,
		DetectedAt:     a.Timestamp,
		Recipients:     recipients,
	}
	if rec.DetectedAt.IsZero() {
		rec.DetectedAt = s.now()
	}

	_, err = s.db.Exec(`
		INSERT INTO alerts (id, symbol, risk_score, severity, signals, recommendation, detected_at, recipients)
		VALUES (?,?,?,?,?,?,?,?)`,
		rec.ID, rec.Instrument, rec.RiskScore, rec.Severity.String(), string(signalsJSON),
		rec.Recommendation, rec.DetectedAt.UnixNano(), rec.Recipients,
	)
	if err != nil {
		return models.AlertRecord{}, fmt.Errorf("failed to insert alert: %w", err)
	}
	if err := s.RotateAlerts(); err != nil {
		return rec, err
	}
	return rec, nil
}

// RecentAlerts returns up to limit alerts, newest first. An empty instrument
// matches all.
func (s *Storage) RecentAlerts(instrument string, limit int) ([]models.AlertRecord, error) {
	rows, err := s.db.Query(`
		SELECT id, symbol, risk_score, severity, signals, recommendation, detected_at, recipients
		FROM alerts WHERE (? = '' OR symbol = ?)
		ORDER BY detected_at DESC LIMIT ?`, instrument, instrument, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query alerts: %w", err)
	}
	defer rows.Close()

	alerts := []models.AlertRecord{}
	for rows.Next() {
		var a models.AlertRecord
		var severity, signalsJSON string
		var detectedAtNano int64
		if err := rows.Scan(&a.ID, &a.Instrument, &a.RiskScore, &severity, &signalsJSON,
			&a.Recommendation, &detectedAtNano, &a.Recipients); err != nil {
			return nil, fmt.Errorf("failed to scan alert: %w", err)
		}
		if a.Severity, err = models.ParseSeverity(severity); err != nil {
			return nil, fmt.Errorf("alert %s: %w", a.ID, err)
		}
		var stored []storedSignal
		if err := json.Unmarshal([]byte(signalsJSON), &stored); err != nil {
			return nil, fmt.Errorf("failed to unmarshal signals: %w", err)
		}
		a.Signals = signalsOf(stored)
		a.DetectedAt = time.Unix(0, detectedAtNano)
		alerts = append(alerts, a)
	}
	return alerts, rows.Err()
}

// RotateAlerts keeps at most maxAlerts newest alerts.
func (s *Storage) RotateAlerts() error {
	if s.maxAlerts <= 0 {
		return nil
	}
	_, err := s.db.Exec(`
		DELETE FROM alerts WHERE id NOT IN (
			SELECT id FROM alerts ORDER BY detected_at DESC LIMIT ?
		)`, s.maxAlerts)
	if err != nil {
		return fmt.Errorf("failed to rotate alerts: %w", err)
	}
	return nil
}

func signalsOf(stored []storedSignal) []models.Signal {
	out := make([]models.Signal, len(stored))
	for i, st := range stored {
		out[i] = models.Signal{Type: st.Type, Severity: st.Severity, Message: st.Message}
	}
	return out
}

const userCols = `telegram_id, username, tier, expires_at, created_at`

func scanUser(scan func(...any) error) (models.User, error) {
	var u models.User
	var tier string
	var expiresAtNano, createdAtNano int64
	if err := scan(&u.TelegramID, &u.Username, &tier, &expiresAtNano, &createdAtNano); err != nil {
		return u, err
	}
	u.Tier = models.Tier(tier)
	if expiresAtNano != 0 {
		u.ExpiresAt = time.Unix(0, expiresAtNano)
	}
	u.CreatedAt = time.Unix(0, createdAtNano)
	return u, nil
}

func unixNano(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixNano()
}
