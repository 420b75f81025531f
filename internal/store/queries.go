package store

import (
	"database/sql"
	"fmt"
	"strings"

	"github.com/blazelab/blaze/internal/apply"
)

// Chat represents a row in the chats table.
type Chat struct {
	ID        string
	AppID     string
	Title     string
	CreatedAt string
	UpdatedAt string
}

// Message represents a row in the messages table.
type Message struct {
	ID        int
	ChatID    string
	Role      string
	Content   string
	CreatedAt string
}

// ApplyRecord represents a row in the apply_results table.
type ApplyRecord struct {
	ID         int
	AppID      string
	ChatID     string
	Wrote      int
	Renamed    int
	Deleted    int
	Edited     int
	Committed  bool
	Error      string
	ExtraFiles string
	Timestamp  string
}

// FixAttempt represents a row in the fix_attempts table.
type FixAttempt struct {
	ID            int
	AppID         string
	ChatID        string
	Fingerprint   string
	Source        string
	ErrorText     string
	AttemptNumber int
	Timestamp     string
}

// CreateChat inserts a new chat for an app.
func (s *Store) CreateChat(id, appID, title string) error {
	_, err := s.conn.Exec(
		`INSERT INTO chats (id, app_id, title) VALUES (?, ?, ?)`,
		id, appID, title,
	)
	if err != nil {
		return fmt.Errorf("create chat: %w", err)
	}
	return nil
}

// SetChatTitle updates a chat's title and bumps updated_at.
func (s *Store) SetChatTitle(id, title string) error {
	res, err := s.conn.Exec(
		`UPDATE chats SET title = ?, updated_at = datetime('now') WHERE id = ?`,
		title, id,
	)
	if err != nil {
		return fmt.Errorf("set chat title: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("check rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("chat %q not found", id)
	}
	return nil
}

// GetChat returns a chat by ID, or nil if it does not exist.
func (s *Store) GetChat(id string) (*Chat, error) {
	row := s.conn.QueryRow(
		`SELECT id, app_id, title, created_at, updated_at FROM chats WHERE id = ?`, id,
	)
	var c Chat
	var title sql.NullString
	err := row.Scan(&c.ID, &c.AppID, &title, &c.CreatedAt, &c.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get chat: %w", err)
	}
	if title.Valid {
		c.Title = title.String
	}
	return &c, nil
}

// ListChats returns all chats for an app, most recently updated first.
func (s *Store) ListChats(appID string) ([]Chat, error) {
	rows, err := s.conn.Query(
		`SELECT id, app_id, title, created_at, updated_at
		 FROM chats WHERE app_id = ? ORDER BY updated_at DESC, id DESC`,
		appID,
	)
	if err != nil {
		return nil, fmt.Errorf("list chats: %w", err)
	}
	defer rows.Close()

	var chats []Chat
	for rows.Next() {
		var c Chat
		var title sql.NullString
		if err := rows.Scan(&c.ID, &c.AppID, &title, &c.CreatedAt, &c.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan chat: %w", err)
		}
		if title.Valid {
			c.Title = title.String
		}
		chats = append(chats, c)
	}
	return chats, rows.Err()
}

// AddMessage appends a message to a chat and bumps the chat's updated_at.
// Returns the new message's row ID.
func (s *Store) AddMessage(chatID, role, content string) (int, error) {
	tx, err := s.conn.Begin()
	if err != nil {
		return 0, fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.Exec(
		`INSERT INTO messages (chat_id, role, content) VALUES (?, ?, ?)`,
		chatID, role, content,
	)
	if err != nil {
		return 0, fmt.Errorf("add message: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("get message id: %w", err)
	}
	if _, err := tx.Exec(
		`UPDATE chats SET updated_at = datetime('now') WHERE id = ?`, chatID,
	); err != nil {
		return 0, fmt.Errorf("touch chat: %w", err)
	}
	return int(id), tx.Commit()
}

// GetMessages returns all messages for a chat in insertion order.
func (s *Store) GetMessages(chatID string) ([]Message, error) {
	rows, err := s.conn.Query(
		`SELECT id, chat_id, role, content, created_at
		 FROM messages WHERE chat_id = ? ORDER BY id`,
		chatID,
	)
	if err != nil {
		return nil, fmt.Errorf("get messages: %w", err)
	}
	defer rows.Close()

	var msgs []Message
	for rows.Next() {
		var m Message
		if err := rows.Scan(&m.ID, &m.ChatID, &m.Role, &m.Content, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		msgs = append(msgs, m)
	}
	return msgs, rows.Err()
}

// LogApplyResult records the outcome of one apply batch.
func (s *Store) LogApplyResult(appID, chatID string, result *apply.Result, committed bool) error {
	var errText string
	if result.Error != "" {
		errText = result.Error
	}
	extra := strings.Join(result.ExtraFiles, "\n")
	_, err := s.conn.Exec(
		`INSERT INTO apply_results (app_id, chat_id, wrote, renamed, deleted, edited, committed, error, extra_files)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		appID, chatID,
		result.Counts.Wrote, result.Counts.Renamed, result.Counts.Deleted, result.Counts.Edited,
		committed, errText, extra,
	)
	if err != nil {
		return fmt.Errorf("log apply result: %w", err)
	}
	return nil
}

// GetApplyHistory returns apply records for an app, newest first.
func (s *Store) GetApplyHistory(appID string, limit int) ([]ApplyRecord, error) {
	rows, err := s.conn.Query(
		`SELECT id, app_id, chat_id, wrote, renamed, deleted, edited, committed, error, extra_files, timestamp
		 FROM apply_results WHERE app_id = ? ORDER BY id DESC LIMIT ?`,
		appID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("get apply history: %w", err)
	}
	defer rows.Close()

	var records []ApplyRecord
	for rows.Next() {
		var r ApplyRecord
		var errText, extra sql.NullString
		if err := rows.Scan(&r.ID, &r.AppID, &r.ChatID, &r.Wrote, &r.Renamed, &r.Deleted, &r.Edited, &r.Committed, &errText, &extra, &r.Timestamp); err != nil {
			return nil, fmt.Errorf("scan apply record: %w", err)
		}
		if errText.Valid {
			r.Error = errText.String
		}
		if extra.Valid {
			r.ExtraFiles = extra.String
		}
		records = append(records, r)
	}
	return records, rows.Err()
}

// LogFixAttempt records one automatic remediation attempt.
func (s *Store) LogFixAttempt(appID, chatID, fingerprint, source, errorText string, attemptNumber int) error {
	_, err := s.conn.Exec(
		`INSERT INTO fix_attempts (app_id, chat_id, fingerprint, source, error_text, attempt_number)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		appID, chatID, fingerprint, source, errorText, attemptNumber,
	)
	if err != nil {
		return fmt.Errorf("log fix attempt: %w", err)
	}
	return nil
}

// GetFixAttempts returns remediation attempts for an app, newest first.
func (s *Store) GetFixAttempts(appID string, limit int) ([]FixAttempt, error) {
	rows, err := s.conn.Query(
		`SELECT id, app_id, chat_id, fingerprint, source, error_text, attempt_number, timestamp
		 FROM fix_attempts WHERE app_id = ? ORDER BY id DESC LIMIT ?`,
		appID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("get fix attempts: %w", err)
	}
	defer rows.Close()

	var attempts []FixAttempt
	for rows.Next() {
		var a FixAttempt
		if err := rows.Scan(&a.ID, &a.AppID, &a.ChatID, &a.Fingerprint, &a.Source, &a.ErrorText, &a.AttemptNumber, &a.Timestamp); err != nil {
			return nil, fmt.Errorf("scan fix attempt: %w", err)
		}
		attempts = append(attempts, a)
	}
	return attempts, rows.Err()
}
