package message

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/cubbscratchstudios/splat/internal/db"
)

const messageColumns = `conversation_id, message_id, guild_id, author_id, author_name, author_avatar_url, author_bot,
	body, attachments, reply_to, status, flagged_term, captured_at, last_modified_at, deleted_at`

const (
	lockKeySQL = `SELECT pg_advisory_xact_lock(hashtextextended($1, 0))`

	selectForUpdateSQL = `SELECT ` + messageColumns + ` FROM captured_messages
	WHERE conversation_id = $1 AND message_id = $2 FOR UPDATE`

	selectSQL = `SELECT ` + messageColumns + ` FROM captured_messages
	WHERE conversation_id = $1 AND message_id = $2`

	listSQL = `SELECT ` + messageColumns + ` FROM captured_messages
	WHERE conversation_id = $1
	ORDER BY COALESCE(captured_at, last_modified_at) DESC, message_id DESC
	LIMIT $2`

	upsertSQL = `INSERT INTO captured_messages (` + messageColumns + `)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
	ON CONFLICT (conversation_id, message_id) DO UPDATE SET
		guild_id = EXCLUDED.guild_id,
		author_id = EXCLUDED.author_id,
		author_name = EXCLUDED.author_name,
		author_avatar_url = EXCLUDED.author_avatar_url,
		author_bot = EXCLUDED.author_bot,
		body = EXCLUDED.body,
		attachments = EXCLUDED.attachments,
		reply_to = EXCLUDED.reply_to,
		status = EXCLUDED.status,
		flagged_term = EXCLUDED.flagged_term,
		captured_at = EXCLUDED.captured_at,
		last_modified_at = EXCLUDED.last_modified_at,
		deleted_at = EXCLUDED.deleted_at`

	purgeSQL = `DELETE FROM captured_messages WHERE last_modified_at < $1`
)

// PostgresBackend stores records in the captured_messages table.
// Writes take a transaction-scoped advisory lock per key so that several
// processes sharing the database still merge one write at a time.
type PostgresBackend struct {
	pool *pgxpool.Pool
}

func NewPostgresBackend(pool *pgxpool.Pool) *PostgresBackend {
	return &PostgresBackend{pool: pool}
}

func (b *PostgresBackend) Update(ctx context.Context, key Key, fn UpdateFunc) (Change, error) {
	tx, err := b.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return Change{}, classify("begin tx", err)
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	if _, err := tx.Exec(ctx, lockKeySQL, key.String()); err != nil {
		return Change{}, classify("lock key", err)
	}

	var before *CapturedMessage
	current, err := scanMessage(tx.QueryRow(ctx, selectForUpdateSQL, key.ConversationID, key.MessageID))
	switch {
	case errors.Is(err, ErrNotFound):
	case err != nil:
		return Change{}, err
	default:
		before = &current
	}

	next, changed := fn(before)
	if !changed {
		return Change{Before: before, After: next}, nil
	}
	row, err := toRow(next)
	if err != nil {
		return Change{}, err
	}
	if _, err := tx.Exec(ctx, upsertSQL, row.args()...); err != nil {
		return Change{}, classify("upsert message", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return Change{}, classify("commit", err)
	}
	return Change{Before: before, After: next, Changed: true}, nil
}

func (b *PostgresBackend) Get(ctx context.Context, key Key) (CapturedMessage, error) {
	return scanMessage(b.pool.QueryRow(ctx, selectSQL, key.ConversationID, key.MessageID))
}

func (b *PostgresBackend) List(ctx context.Context, conversationID string, limit int) ([]CapturedMessage, error) {
	rows, err := b.pool.Query(ctx, listSQL, conversationID, limit)
	if err != nil {
		return nil, classify("list messages", err)
	}
	defer rows.Close()

	items := make([]CapturedMessage, 0, limit)
	for rows.Next() {
		msg, err := scanMessage(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, classify("list messages", err)
	}
	return items, nil
}

func (b *PostgresBackend) PurgeBefore(ctx context.Context, before time.Time) (int64, error) {
	tag, err := b.pool.Exec(ctx, purgeSQL, db.TimeToPg(before))
	if err != nil {
		return 0, classify("purge messages", err)
	}
	return tag.RowsAffected(), nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

// messageRow mirrors one captured_messages row.
type messageRow struct {
	ConversationID  string
	MessageID       string
	GuildID         string
	AuthorID        string
	AuthorName      string
	AuthorAvatarURL string
	AuthorBot       bool
	Body            []byte
	Attachments     []byte
	ReplyTo         pgtype.Text
	Status          string
	FlaggedTerm     pgtype.Text
	CapturedAt      pgtype.Timestamptz
	LastModifiedAt  pgtype.Timestamptz
	DeletedAt       pgtype.Timestamptz
}

func (r *messageRow) dest() []any {
	return []any{
		&r.ConversationID, &r.MessageID, &r.GuildID,
		&r.AuthorID, &r.AuthorName, &r.AuthorAvatarURL, &r.AuthorBot,
		&r.Body, &r.Attachments, &r.ReplyTo, &r.Status, &r.FlaggedTerm,
		&r.CapturedAt, &r.LastModifiedAt, &r.DeletedAt,
	}
}

func (r messageRow) args() []any {
	return []any{
		r.ConversationID, r.MessageID, r.GuildID,
		r.AuthorID, r.AuthorName, r.AuthorAvatarURL, r.AuthorBot,
		r.Body, r.Attachments, r.ReplyTo, r.Status, r.FlaggedTerm,
		r.CapturedAt, r.LastModifiedAt, r.DeletedAt,
	}
}

func scanMessage(row rowScanner) (CapturedMessage, error) {
	var r messageRow
	if err := row.Scan(r.dest()...); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return CapturedMessage{}, ErrNotFound
		}
		return CapturedMessage{}, classify("scan message", err)
	}
	return r.toMessage()
}

func (r messageRow) toMessage() (CapturedMessage, error) {
	msg := CapturedMessage{
		ConversationID: r.ConversationID,
		MessageID:      r.MessageID,
		GuildID:        r.GuildID,
		Author: Author{
			ID:          r.AuthorID,
			DisplayName: r.AuthorName,
			AvatarURL:   r.AuthorAvatarURL,
			Bot:         r.AuthorBot,
		},
		ReplyTo:        db.TextToString(r.ReplyTo),
		Status:         Status(r.Status),
		FlaggedTerm:    db.TextToString(r.FlaggedTerm),
		CapturedAt:     db.TimeFromPg(r.CapturedAt),
		LastModifiedAt: db.TimeFromPg(r.LastModifiedAt),
		DeletedAt:      db.TimeFromPg(r.DeletedAt),
	}
	if !msg.Status.Valid() {
		return CapturedMessage{}, fmt.Errorf("%w: %s has status %q", ErrCorrupt, msg.Key(), r.Status)
	}
	// NULL content columns mean the content was never reported.
	if r.Body != nil {
		if err := json.Unmarshal(r.Body, &msg.Body); err != nil {
			return CapturedMessage{}, fmt.Errorf("%w: %s body: %v", ErrCorrupt, msg.Key(), err)
		}
		if len(msg.Body) == 0 {
			msg.Body = []string{""}
		}
	}
	if r.Attachments != nil {
		if err := json.Unmarshal(r.Attachments, &msg.Attachments); err != nil {
			return CapturedMessage{}, fmt.Errorf("%w: %s attachments: %v", ErrCorrupt, msg.Key(), err)
		}
		if msg.Attachments == nil {
			msg.Attachments = []Attachment{}
		}
	}
	return msg, nil
}

func toRow(msg CapturedMessage) (messageRow, error) {
	var bodyJSON, attachmentsJSON []byte
	if msg.Body != nil {
		body := msg.Body
		if len(body) == 0 {
			body = []string{""}
		}
		var err error
		if bodyJSON, err = json.Marshal(body); err != nil {
			return messageRow{}, fmt.Errorf("encode body: %w", err)
		}
	}
	if msg.Attachments != nil {
		var err error
		if attachmentsJSON, err = json.Marshal(msg.Attachments); err != nil {
			return messageRow{}, fmt.Errorf("encode attachments: %w", err)
		}
	}
	return messageRow{
		ConversationID:  msg.ConversationID,
		MessageID:       msg.MessageID,
		GuildID:         msg.GuildID,
		AuthorID:        msg.Author.ID,
		AuthorName:      msg.Author.DisplayName,
		AuthorAvatarURL: msg.Author.AvatarURL,
		AuthorBot:       msg.Author.Bot,
		Body:            bodyJSON,
		Attachments:     attachmentsJSON,
		ReplyTo:         db.StringToText(msg.ReplyTo),
		Status:          string(msg.Status),
		FlaggedTerm:     db.StringToText(msg.FlaggedTerm),
		CapturedAt:      db.TimeToPg(msg.CapturedAt),
		LastModifiedAt:  db.TimeToPg(msg.LastModifiedAt),
		DeletedAt:       db.TimeToPg(msg.DeletedAt),
	}, nil
}

// classify maps driver errors onto the store's sentinel errors. Data
// exceptions raised by the server refer to the values sent with the
// statement, never to stored rows; ErrCorrupt only comes from toMessage.
func classify(op string, err error) error {
	if db.IsDataError(err) {
		return fmt.Errorf("%s: %w: %v", op, ErrInvalidRecord, err)
	}
	return fmt.Errorf("%s: %w: %v", op, ErrStoreUnavailable, err)
}
