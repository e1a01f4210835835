package conversation

import (
	"context"
	"errors"

	errs "FleetsIM/tools/errs"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const createTableSQL = `
CREATE TABLE IF NOT EXISTS conversation (
    conversation_id      TEXT        NOT NULL,
    owner_id             TEXT        NOT NULL,
    type                 INT         NOT NULL DEFAULT 0,
    target_id            TEXT        NOT NULL DEFAULT '',
    unread_count         BIGINT      NOT NULL DEFAULT 0,
    last_message_id      TEXT        NOT NULL DEFAULT '',
    last_message_content TEXT        NOT NULL DEFAULT '',
    last_message_time    BIGINT      NOT NULL DEFAULT 0,
    last_sender_id       TEXT        NOT NULL DEFAULT '',
    is_pinned            BOOLEAN     NOT NULL DEFAULT FALSE,
    is_muted             BOOLEAN     NOT NULL DEFAULT FALSE,
    is_deleted           BOOLEAN     NOT NULL DEFAULT FALSE,
    create_time          TIMESTAMPTZ NOT NULL DEFAULT now(),
    update_time          TIMESTAMPTZ NOT NULL DEFAULT now(),
    PRIMARY KEY (conversation_id, owner_id)
)`

type PgSummaryStore struct {
	Pool *pgxpool.Pool
}

func NewPgSummaryStore(pool *pgxpool.Pool) *PgSummaryStore {
	return &PgSummaryStore{Pool: pool}
}

func (s *PgSummaryStore) EnsureSchema(ctx context.Context) error {
	_, err := s.Pool.Exec(ctx, createTableSQL)
	return err
}

func (s *PgSummaryStore) Insert(ctx context.Context, sum *Summary) (bool, error) {
	tag, err := s.Pool.Exec(ctx, `
		INSERT INTO conversation
		    (conversation_id, owner_id, type, target_id, unread_count,
		     last_message_id, last_message_content, last_message_time, last_sender_id)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
		ON CONFLICT (conversation_id, owner_id) DO NOTHING`,
		sum.ConversationID, sum.OwnerID, sum.Type, sum.TargetID, sum.UnreadCount,
		sum.LastMessageID, sum.LastMessageContent, sum.LastMessageTime, sum.LastSenderID)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

// 单调护栏：时间更新，或时间相同且消息ID更大才生效
const recencyGuard = `
	(last_message_time < $5
	 OR (last_message_time = $5 AND last_message_id < $3))`

func (s *PgSummaryStore) BumpAsReceiver(ctx context.Context, convID, owner, msgID, content string, sentAt int64, senderID string) (int64, error) {
	tag, err := s.Pool.Exec(ctx, `
		UPDATE conversation SET
		    unread_count = unread_count + 1,
		    last_message_id = $3,
		    last_message_content = $4,
		    last_message_time = $5,
		    last_sender_id = $6,
		    update_time = now()
		WHERE conversation_id = $1 AND owner_id = $2 AND `+recencyGuard,
		convID, owner, msgID, content, sentAt, senderID)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func (s *PgSummaryStore) BumpAsSender(ctx context.Context, convID, owner, msgID, content string, sentAt int64, senderID string) (int64, error) {
	tag, err := s.Pool.Exec(ctx, `
		UPDATE conversation SET
		    last_message_id = $3,
		    last_message_content = $4,
		    last_message_time = $5,
		    last_sender_id = $6,
		    update_time = now()
		WHERE conversation_id = $1 AND owner_id = $2 AND `+recencyGuard,
		convID, owner, msgID, content, sentAt, senderID)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func (s *PgSummaryStore) Get(ctx context.Context, convID, owner string) (*Summary, error) {
	row := s.Pool.QueryRow(ctx, `
		SELECT conversation_id, owner_id, type, target_id, unread_count,
		       last_message_id, last_message_content, last_message_time, last_sender_id,
		       is_pinned, is_muted, is_deleted, create_time, update_time
		FROM conversation
		WHERE conversation_id = $1 AND owner_id = $2`, convID, owner)

	var sum Summary
	err := row.Scan(&sum.ConversationID, &sum.OwnerID, &sum.Type, &sum.TargetID,
		&sum.UnreadCount, &sum.LastMessageID, &sum.LastMessageContent,
		&sum.LastMessageTime, &sum.LastSenderID,
		&sum.IsPinned, &sum.IsMuted, &sum.IsDeleted, &sum.CreateTime, &sum.UpdateTime)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, errs.ErrRecordNotFound.WrapMsg("summary", "conv", convID, "owner", owner)
	}
	if err != nil {
		return nil, err
	}
	return &sum, nil
}

// List 会话列表：置顶在前，再按最后消息时间倒序
func (s *PgSummaryStore) List(ctx context.Context, owner string) ([]*Summary, error) {
	rows, err := s.Pool.Query(ctx, `
		SELECT conversation_id, owner_id, type, target_id, unread_count,
		       last_message_id, last_message_content, last_message_time, last_sender_id,
		       is_pinned, is_muted, is_deleted, create_time, update_time
		FROM conversation
		WHERE owner_id = $1 AND is_deleted = FALSE
		ORDER BY is_pinned DESC, last_message_time DESC`, owner)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*Summary
	for rows.Next() {
		var sum Summary
		if err := rows.Scan(&sum.ConversationID, &sum.OwnerID, &sum.Type, &sum.TargetID,
			&sum.UnreadCount, &sum.LastMessageID, &sum.LastMessageContent,
			&sum.LastMessageTime, &sum.LastSenderID,
			&sum.IsPinned, &sum.IsMuted, &sum.IsDeleted,
			&sum.CreateTime, &sum.UpdateTime); err != nil {
			return nil, err
		}
		out = append(out, &sum)
	}
	return out, rows.Err()
}

func (s *PgSummaryStore) ClearUnread(ctx context.Context, convID, owner string) error {
	_, err := s.Pool.Exec(ctx, `
		UPDATE conversation SET unread_count = 0, update_time = now()
		WHERE conversation_id = $1 AND owner_id = $2`, convID, owner)
	return err
}

func (s *PgSummaryStore) setFlag(ctx context.Context, column, convID, owner string, v bool) (bool, error) {
	tag, err := s.Pool.Exec(ctx, `
		UPDATE conversation SET `+column+` = $3, update_time = now()
		WHERE conversation_id = $1 AND owner_id = $2`, convID, owner, v)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

func (s *PgSummaryStore) SetDeleted(ctx context.Context, convID, owner string, deleted bool) (bool, error) {
	return s.setFlag(ctx, "is_deleted", convID, owner, deleted)
}

func (s *PgSummaryStore) SetPinned(ctx context.Context, convID, owner string, pinned bool) (bool, error) {
	return s.setFlag(ctx, "is_pinned", convID, owner, pinned)
}

func (s *PgSummaryStore) SetMuted(ctx context.Context, convID, owner string, muted bool) (bool, error) {
	return s.setFlag(ctx, "is_muted", convID, owner, muted)
}
