package conversation

import (
	"context"
	"sort"
	"sync"
	"time"

	errs "FleetsIM/tools/errs"
)

// memSummaryStore 内存版 SummaryStore，仅测试用。
type memSummaryStore struct {
	mu   sync.Mutex
	rows map[string]*Summary // key: convID + "|" + owner
}

func NewMemSummaryStore() SummaryStore {
	return &memSummaryStore{rows: make(map[string]*Summary)}
}

func memKey(convID, owner string) string { return convID + "|" + owner }

func (m *memSummaryStore) Insert(_ context.Context, s *Summary) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	k := memKey(s.ConversationID, s.OwnerID)
	if _, ok := m.rows[k]; ok {
		return false, nil
	}
	cp := *s
	now := time.Now()
	cp.CreateTime, cp.UpdateTime = now, now
	m.rows[k] = &cp
	return true, nil
}

// newer 与 pg.go 的条件更新同一裁决规则
func newer(row *Summary, msgID string, sentAt int64) bool {
	if row.LastMessageTime != sentAt {
		return row.LastMessageTime < sentAt
	}
	return row.LastMessageID < msgID
}

func (m *memSummaryStore) bump(convID, owner, msgID, content string, sentAt int64, senderID string, incrUnread bool) int64 {
	k := memKey(convID, owner)
	row, ok := m.rows[k]
	if !ok || !newer(row, msgID, sentAt) {
		return 0
	}
	if incrUnread {
		row.UnreadCount++
	}
	row.LastMessageID = msgID
	row.LastMessageContent = content
	row.LastMessageTime = sentAt
	row.LastSenderID = senderID
	row.UpdateTime = time.Now()
	return 1
}

func (m *memSummaryStore) BumpAsReceiver(_ context.Context, convID, owner, msgID, content string, sentAt int64, senderID string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.bump(convID, owner, msgID, content, sentAt, senderID, true), nil
}

func (m *memSummaryStore) BumpAsSender(_ context.Context, convID, owner, msgID, content string, sentAt int64, senderID string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.bump(convID, owner, msgID, content, sentAt, senderID, false), nil
}

func (m *memSummaryStore) Get(_ context.Context, convID, owner string) (*Summary, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	row, ok := m.rows[memKey(convID, owner)]
	if !ok {
		return nil, errs.ErrRecordNotFound.WrapMsg("summary", "conv", convID, "owner", owner)
	}
	cp := *row
	return &cp, nil
}

func (m *memSummaryStore) List(_ context.Context, owner string) ([]*Summary, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*Summary
	for _, row := range m.rows {
		if row.OwnerID != owner || row.IsDeleted {
			continue
		}
		cp := *row
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].IsPinned != out[j].IsPinned {
			return out[i].IsPinned
		}
		return out[i].LastMessageTime > out[j].LastMessageTime
	})
	return out, nil
}

func (m *memSummaryStore) ClearUnread(_ context.Context, convID, owner string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if row, ok := m.rows[memKey(convID, owner)]; ok {
		row.UnreadCount = 0
		row.UpdateTime = time.Now()
	}
	return nil
}

func (m *memSummaryStore) setFlag(convID, owner string, set func(*Summary)) bool {
	row, ok := m.rows[memKey(convID, owner)]
	if !ok {
		return false
	}
	set(row)
	row.UpdateTime = time.Now()
	return true
}

func (m *memSummaryStore) SetDeleted(_ context.Context, convID, owner string, deleted bool) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.setFlag(convID, owner, func(s *Summary) { s.IsDeleted = deleted }), nil
}

func (m *memSummaryStore) SetPinned(_ context.Context, convID, owner string, pinned bool) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.setFlag(convID, owner, func(s *Summary) { s.IsPinned = pinned }), nil
}

func (m *memSummaryStore) SetMuted(_ context.Context, convID, owner string, muted bool) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.setFlag(convID, owner, func(s *Summary) { s.IsMuted = muted }), nil
}
