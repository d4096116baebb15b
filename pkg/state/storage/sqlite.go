package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	_ "modernc.org/sqlite" // SQLite driver

	"github.com/securecheckio/rules-engine/pkg/state"
)

// SQLiteConfig contains configuration for the SQLite state store.
type SQLiteConfig struct {
	// Path is the database file path.
	Path string `yaml:"path" json:"path"`

	// MaxOpenConns is the maximum number of open connections.
	// Default: 10.
	MaxOpenConns int `yaml:"max_open_conns,omitempty" json:"max_open_conns,omitempty"`

	// BusyTimeout is how long a writer waits on a locked database.
	// Default: 5 seconds.
	BusyTimeout time.Duration `yaml:"busy_timeout,omitempty" json:"busy_timeout,omitempty"`
}

// DefaultSQLiteConfig returns the default SQLite configuration.
func DefaultSQLiteConfig(path string) *SQLiteConfig {
	return &SQLiteConfig{
		Path:         path,
		MaxOpenConns: 10,
		BusyTimeout:  5 * time.Second,
	}
}

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS conversation_states (
	id           TEXT PRIMARY KEY,
	flags        TEXT NOT NULL DEFAULT '{}',
	flag_history TEXT NOT NULL DEFAULT '[]',
	expires_at   INTEGER NOT NULL,
	created_at   INTEGER NOT NULL,
	updated_at   INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_conversation_states_expires
	ON conversation_states (expires_at);
`

// SQLiteStore is a state.Provider backed by a local SQLite database.
// Flags and history are stored as JSON columns; the expires_at index
// supports the retention pruner.
type SQLiteStore struct {
	db     *sql.DB
	config *SQLiteConfig
	logger *slog.Logger
}

// NewSQLiteStore opens (and if needed initializes) the state database.
func NewSQLiteStore(config *SQLiteConfig) (*SQLiteStore, error) {
	if config == nil || config.Path == "" {
		return nil, errors.New("sqlite state store: path is required")
	}
	if config.MaxOpenConns <= 0 {
		config.MaxOpenConns = 10
	}
	if config.BusyTimeout <= 0 {
		config.BusyTimeout = 5 * time.Second
	}

	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(%d)",
		config.Path, config.BusyTimeout.Milliseconds())

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open state database: %w", err)
	}
	db.SetMaxOpenConns(config.MaxOpenConns)

	if _, err := db.Exec(sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize state schema: %w", err)
	}

	return &SQLiteStore{
		db:     db,
		config: config,
		logger: slog.Default().With("component", "state.storage.sqlite"),
	}, nil
}

// Get returns the stored state for the tuple, or (nil, nil) when absent
// or expired.
func (s *SQLiteStore) Get(ctx context.Context, t state.Tuple) (*state.ConversationState, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, flags, flag_history, expires_at, created_at, updated_at
		 FROM conversation_states WHERE id = ?`, t.Key())

	var (
		cs          state.ConversationState
		flagsJSON   []byte
		historyJSON []byte
	)
	err := row.Scan(&cs.ID, &flagsJSON, &historyJSON, &cs.ExpiresAt, &cs.CreatedAt, &cs.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read state %q: %w", t.Key(), err)
	}

	if cs.Expired(time.Now()) {
		return nil, nil
	}

	if err := json.Unmarshal(flagsJSON, &cs.Flags); err != nil {
		return nil, fmt.Errorf("corrupt flags for state %q: %w", cs.ID, err)
	}
	if err := json.Unmarshal(historyJSON, &cs.FlagHistory); err != nil {
		return nil, fmt.Errorf("corrupt flag history for state %q: %w", cs.ID, err)
	}
	return &cs, nil
}

// Save stores or replaces the state record.
func (s *SQLiteStore) Save(ctx context.Context, cs *state.ConversationState) error {
	flagsJSON, err := json.Marshal(cs.Flags)
	if err != nil {
		return fmt.Errorf("failed to encode flags for state %q: %w", cs.ID, err)
	}
	historyJSON, err := json.Marshal(cs.FlagHistory)
	if err != nil {
		return fmt.Errorf("failed to encode history for state %q: %w", cs.ID, err)
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO conversation_states (id, flags, flag_history, expires_at, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
			flags = excluded.flags,
			flag_history = excluded.flag_history,
			expires_at = excluded.expires_at,
			updated_at = excluded.updated_at`,
		cs.ID, flagsJSON, historyJSON, cs.ExpiresAt, cs.CreatedAt, cs.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to save state %q: %w", cs.ID, err)
	}
	return nil
}

// PruneExpired deletes records whose lifetime lapsed before now.
// It returns the number of deleted records.
func (s *SQLiteStore) PruneExpired(ctx context.Context, now time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM conversation_states WHERE expires_at > 0 AND expires_at < ?`,
		now.UnixMilli())
	if err != nil {
		return 0, fmt.Errorf("failed to prune expired states: %w", err)
	}
	n, _ := res.RowsAffected()
	if n > 0 {
		s.logger.Info("pruned expired conversation states", "count", n)
	}
	return n, nil
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
