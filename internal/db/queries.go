package db

import (
	"context"
	"database/sql"
	"errors"
)

type DBTX interface {
	ExecContext(context.Context, string, ...any) (sql.Result, error)
	QueryContext(context.Context, string, ...any) (*sql.Rows, error)
	QueryRowContext(context.Context, string, ...any) *sql.Row
}

func New(db DBTX) *Queries {
	return &Queries{db: db}
}

type Queries struct {
	db DBTX
}

// sessionRow and messageRow are the column shapes as stored.
type sessionRow struct {
	ID           int64
	Exchange     string
	RoutingKey   string
	QueueName    string
	StartedAt    int64
	EndedAt      sql.NullInt64
	MessageCount int64
}

type messageRow struct {
	ID           int64
	SessionID    int64
	MessageID    string
	DisplayID    int64
	MessageType  string
	SourceQueue  string
	RoutingKey   string
	Exchange     string
	SentTime     string
	Headers      sql.NullString
	Body         string
	ErrorDetails sql.NullString
	CapturedAt   int64
}

const createSession = `
INSERT INTO sessions (exchange, routing_key, queue_name, started_at)
VALUES (?, ?, ?, ?)
`

type createSessionParams struct {
	Exchange   string
	RoutingKey string
	QueueName  string
	StartedAt  int64
}

func (q *Queries) CreateSession(ctx context.Context, arg createSessionParams) (int64, error) {
	res, err := q.db.ExecContext(ctx, createSession, arg.Exchange, arg.RoutingKey, arg.QueueName, arg.StartedAt)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

const endSession = `
UPDATE sessions SET ended_at = ? WHERE id = ? AND ended_at IS NULL
`

func (q *Queries) EndSession(ctx context.Context, id, endedAt int64) error {
	_, err := q.db.ExecContext(ctx, endSession, endedAt, id)
	return err
}

const sessionColumns = `
SELECT s.id, s.exchange, s.routing_key, s.queue_name, s.started_at, s.ended_at,
       (SELECT COUNT(*) FROM messages m WHERE m.session_id = s.id)
FROM sessions s
`

const getSession = sessionColumns + `WHERE s.id = ?`

func (q *Queries) GetSession(ctx context.Context, id int64) (sessionRow, error) {
	row := q.db.QueryRowContext(ctx, getSession, id)
	var s sessionRow
	err := row.Scan(&s.ID, &s.Exchange, &s.RoutingKey, &s.QueueName, &s.StartedAt, &s.EndedAt, &s.MessageCount)
	return s, err
}

const listRecentSessions = sessionColumns + `ORDER BY s.started_at DESC, s.id DESC LIMIT ?`

func (q *Queries) ListRecentSessions(ctx context.Context, limit int64) (_ []sessionRow, err error) {
	rows, err := q.db.QueryContext(ctx, listRecentSessions, limit)
	if err != nil {
		return nil, err
	}
	defer func() { err = errors.Join(err, rows.Close()) }()

	var items []sessionRow
	for rows.Next() {
		var s sessionRow
		if err := rows.Scan(&s.ID, &s.Exchange, &s.RoutingKey, &s.QueueName, &s.StartedAt, &s.EndedAt, &s.MessageCount); err != nil {
			return nil, err
		}
		items = append(items, s)
	}
	return items, rows.Err()
}

const insertMessage = `
INSERT INTO messages (
    session_id, message_id, display_id, message_type, source_queue, routing_key,
    exchange, sent_time, headers, body, error_details, captured_at
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
`

func (q *Queries) InsertMessage(ctx context.Context, m messageRow) (int64, error) {
	res, err := q.db.ExecContext(ctx, insertMessage,
		m.SessionID, m.MessageID, m.DisplayID, m.MessageType, m.SourceQueue, m.RoutingKey,
		m.Exchange, m.SentTime, m.Headers, m.Body, m.ErrorDetails, m.CapturedAt,
	)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

const messageColumns = `
SELECT m.id, m.session_id, m.message_id, m.display_id, m.message_type, m.source_queue,
       m.routing_key, m.exchange, m.sent_time, m.headers, m.body, m.error_details, m.captured_at
FROM messages m
`

const getMessage = messageColumns + `WHERE m.id = ?`

func (q *Queries) GetMessage(ctx context.Context, id int64) (messageRow, error) {
	return scanMessage(q.db.QueryRowContext(ctx, getMessage, id))
}

const listMessagesBySession = messageColumns + `
WHERE m.session_id = ?
ORDER BY m.captured_at DESC, m.id DESC
LIMIT ? OFFSET ?
`

func (q *Queries) ListMessagesBySession(ctx context.Context, sessionID, limit, offset int64) ([]messageRow, error) {
	return q.listMessages(ctx, listMessagesBySession, sessionID, limit, offset)
}

const searchMessages = messageColumns + `
JOIN messages_fts fts ON m.id = fts.rowid
WHERE messages_fts MATCH ?
ORDER BY m.captured_at DESC, m.id DESC
LIMIT ? OFFSET ?
`

func (q *Queries) SearchMessages(ctx context.Context, match string, limit, offset int64) ([]messageRow, error) {
	return q.listMessages(ctx, searchMessages, match, limit, offset)
}

const searchMessagesInSession = messageColumns + `
JOIN messages_fts fts ON m.id = fts.rowid
WHERE messages_fts MATCH ? AND m.session_id = ?
ORDER BY m.captured_at DESC, m.id DESC
LIMIT ? OFFSET ?
`

func (q *Queries) SearchMessagesInSession(ctx context.Context, match string, sessionID, limit, offset int64) ([]messageRow, error) {
	return q.listMessages(ctx, searchMessagesInSession, match, sessionID, limit, offset)
}

func (q *Queries) listMessages(ctx context.Context, query string, args ...any) (_ []messageRow, err error) {
	rows, err := q.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer func() { err = errors.Join(err, rows.Close()) }()

	var items []messageRow
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, m)
	}
	return items, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanMessage(s scanner) (messageRow, error) {
	var m messageRow
	err := s.Scan(
		&m.ID, &m.SessionID, &m.MessageID, &m.DisplayID, &m.MessageType, &m.SourceQueue,
		&m.RoutingKey, &m.Exchange, &m.SentTime, &m.Headers, &m.Body, &m.ErrorDetails, &m.CapturedAt,
	)
	return m, err
}
