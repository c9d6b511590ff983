// Package db keeps a local history of decoded messages captured while
// tailing, in SQLite with full-text search over types, queues and bodies.
package db

import (
	"context"
	"database/sql"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/epalmerini/snoop/internal/decode"
	"github.com/epalmerini/snoop/internal/xdg"
	_ "modernc.org/sqlite"
)

//go:embed schema.sql
var schemaSQL string

// Store defines the interface for message persistence
type Store interface {
	CreateSession(ctx context.Context, params SessionParams) (int64, error)
	EndSession(ctx context.Context, sessionID int64) error
	GetSession(ctx context.Context, sessionID int64) (*Session, error)
	ListRecentSessions(ctx context.Context, limit int64) ([]Session, error)
	InsertMessage(ctx context.Context, rec *MessageRecord) (int64, error)
	GetMessage(ctx context.Context, id int64) (*Message, error)
	ListMessagesBySession(ctx context.Context, sessionID, limit, offset int64) ([]Message, error)
	SearchMessages(ctx context.Context, query string, limit, offset int64) ([]Message, error)
	SearchMessagesInSession(ctx context.Context, query string, sessionID, limit, offset int64) ([]Message, error)
	Close() error
}

// SessionParams describes what a tail session listened to. Connection
// strings are never stored.
type SessionParams struct {
	Exchange   string
	RoutingKey string
	QueueName  string
}

type Session struct {
	ID           int64      `json:"id"`
	Exchange     string     `json:"exchange,omitempty"`
	RoutingKey   string     `json:"routing_key,omitempty"`
	QueueName    string     `json:"queue_name,omitempty"`
	StartedAt    time.Time  `json:"started_at"`
	EndedAt      *time.Time `json:"ended_at,omitempty"`
	MessageCount int64      `json:"message_count"`
}

// MessageRecord is a decoded message to be inserted.
type MessageRecord struct {
	SessionID  int64
	CapturedAt time.Time // now when zero
	Message    decode.Message
}

// Message is a stored capture.
type Message struct {
	ID         int64     `json:"capture_id"`
	SessionID  int64     `json:"session_id"`
	CapturedAt time.Time `json:"captured_at"`
	decode.Message
}

// SQLiteStore implements Store using SQLite
type SQLiteStore struct {
	db      *sql.DB
	queries *Queries
	now     func() time.Time
}

// NewStore opens (creating if needed) the database at path, or at
// $XDG_DATA_HOME/snoop/snoop.db when path is empty.
func NewStore(customPath string) (*SQLiteStore, error) {
	dbPath := customPath
	if dbPath == "" {
		dataDir, err := xdg.DataDir()
		if err != nil {
			return nil, fmt.Errorf("failed to get data directory: %w", err)
		}
		if err := os.MkdirAll(dataDir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create data directory: %w", err)
		}
		dbPath = filepath.Join(dataDir, "snoop.db")
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// One writer; SQLite serializes writes anyway.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA foreign_keys = ON; PRAGMA journal_mode = WAL;"); err != nil {
		return nil, errors.Join(fmt.Errorf("failed to set pragmas: %w", err), db.Close())
	}

	if _, err := db.Exec(schemaSQL); err != nil {
		return nil, errors.Join(fmt.Errorf("failed to initialize schema: %w", err), db.Close())
	}

	return &SQLiteStore{
		db:      db,
		queries: New(db),
		now:     time.Now,
	}, nil
}

func (s *SQLiteStore) CreateSession(ctx context.Context, params SessionParams) (int64, error) {
	return s.queries.CreateSession(ctx, createSessionParams{
		Exchange:   params.Exchange,
		RoutingKey: params.RoutingKey,
		QueueName:  params.QueueName,
		StartedAt:  s.now().UnixMilli(),
	})
}

func (s *SQLiteStore) EndSession(ctx context.Context, sessionID int64) error {
	return s.queries.EndSession(ctx, sessionID, s.now().UnixMilli())
}

func (s *SQLiteStore) GetSession(ctx context.Context, sessionID int64) (*Session, error) {
	row, err := s.queries.GetSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	session := toSession(row)
	return &session, nil
}

func (s *SQLiteStore) ListRecentSessions(ctx context.Context, limit int64) ([]Session, error) {
	rows, err := s.queries.ListRecentSessions(ctx, limit)
	if err != nil {
		return nil, err
	}
	sessions := make([]Session, len(rows))
	for i, r := range rows {
		sessions[i] = toSession(r)
	}
	return sessions, nil
}

func (s *SQLiteStore) InsertMessage(ctx context.Context, rec *MessageRecord) (int64, error) {
	msg := rec.Message

	var headersJSON sql.NullString
	if len(msg.Headers) > 0 {
		data, err := json.Marshal(msg.Headers)
		if err != nil {
			return 0, fmt.Errorf("encode headers: %w", err)
		}
		headersJSON = sql.NullString{String: string(data), Valid: true}
	}

	captured := rec.CapturedAt
	if captured.IsZero() {
		captured = s.now()
	}

	return s.queries.InsertMessage(ctx, messageRow{
		SessionID:    rec.SessionID,
		MessageID:    msg.MessageID,
		DisplayID:    msg.ID,
		MessageType:  msg.MessageType,
		SourceQueue:  msg.SourceQueue,
		RoutingKey:   msg.RoutingKey,
		Exchange:     msg.Exchange,
		SentTime:     msg.SentTime.Format(time.RFC3339Nano),
		Headers:      headersJSON,
		Body:         msg.Body,
		ErrorDetails: toNullString(msg.ErrorDetails),
		CapturedAt:   captured.UnixMilli(),
	})
}

func (s *SQLiteStore) GetMessage(ctx context.Context, id int64) (*Message, error) {
	row, err := s.queries.GetMessage(ctx, id)
	if err != nil {
		return nil, err
	}
	msg, err := toMessage(row)
	if err != nil {
		return nil, err
	}
	return &msg, nil
}

func (s *SQLiteStore) ListMessagesBySession(ctx context.Context, sessionID, limit, offset int64) ([]Message, error) {
	return toMessages(s.queries.ListMessagesBySession(ctx, sessionID, limit, offset))
}

// SearchMessages matches every word of query against type, queues, routing
// key, body and error details.
func (s *SQLiteStore) SearchMessages(ctx context.Context, query string, limit, offset int64) ([]Message, error) {
	match := ftsQuery(query)
	if match == "" {
		return nil, nil
	}
	return toMessages(s.queries.SearchMessages(ctx, match, limit, offset))
}

func (s *SQLiteStore) SearchMessagesInSession(ctx context.Context, query string, sessionID, limit, offset int64) ([]Message, error) {
	match := ftsQuery(query)
	if match == "" {
		return nil, nil
	}
	return toMessages(s.queries.SearchMessagesInSession(ctx, match, sessionID, limit, offset))
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// ftsQuery quotes each word so that punctuation common in type names and
// routing keys ("Orders.OrderPlaced", "order.created") is matched literally
// instead of being read as FTS5 syntax.
func ftsQuery(query string) string {
	words := strings.Fields(query)
	for i, w := range words {
		words[i] = `"` + strings.ReplaceAll(w, `"`, `""`) + `"`
	}
	return strings.Join(words, " ")
}

func toSession(r sessionRow) Session {
	s := Session{
		ID:           r.ID,
		Exchange:     r.Exchange,
		RoutingKey:   r.RoutingKey,
		QueueName:    r.QueueName,
		StartedAt:    time.UnixMilli(r.StartedAt).UTC(),
		MessageCount: r.MessageCount,
	}
	if r.EndedAt.Valid {
		ended := time.UnixMilli(r.EndedAt.Int64).UTC()
		s.EndedAt = &ended
	}
	return s
}

func toMessage(r messageRow) (Message, error) {
	sent, err := time.Parse(time.RFC3339Nano, r.SentTime)
	if err != nil {
		return Message{}, fmt.Errorf("message %d: bad sent time %q: %w", r.ID, r.SentTime, err)
	}

	var headers []decode.Header
	if r.Headers.Valid {
		if err := json.Unmarshal([]byte(r.Headers.String), &headers); err != nil {
			return Message{}, fmt.Errorf("message %d: bad headers: %w", r.ID, err)
		}
	}

	return Message{
		ID:         r.ID,
		SessionID:  r.SessionID,
		CapturedAt: time.UnixMilli(r.CapturedAt).UTC(),
		Message: decode.Message{
			ID:           r.DisplayID,
			MessageID:    r.MessageID,
			RoutingKey:   r.RoutingKey,
			Exchange:     r.Exchange,
			Headers:      headers,
			MessageType:  r.MessageType,
			SourceQueue:  r.SourceQueue,
			SentTime:     sent,
			Body:         r.Body,
			ErrorDetails: r.ErrorDetails.String,
		},
	}, nil
}

func toMessages(rows []messageRow, err error) ([]Message, error) {
	if err != nil {
		return nil, err
	}
	msgs := make([]Message, 0, len(rows))
	for _, r := range rows {
		m, err := toMessage(r)
		if err != nil {
			return nil, err
		}
		msgs = append(msgs, m)
	}
	return msgs, nil
}

func toNullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}
