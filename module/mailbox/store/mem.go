package store

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"FleetsIM/module/mailbox/model"
	errs "FleetsIM/tools/errs"
)

var (
	ErrUniqueMsg = errors.New("unique (owner,conversation,message_id) violated")
	ErrUniqueSeq = errors.New("unique (owner,conversation,seq) violated")
)

// memStore 内存实现：测试用，语义与 Mongo 实现对齐
type memStore struct {
	mu      sync.RWMutex
	entries map[string][]*model.MailboxEntry     // owner|conv -> 按插入序
	byMsg   map[string]*model.MailboxEntry       // owner|conv|msgID
	cursors map[string]*model.MailboxCursor      // owner|conv
	failOn  map[string]error                     // owner -> 注入的写入错误（扇出隔离测试）
}

func NewMemStore() *memStore {
	return &memStore{
		entries: make(map[string][]*model.MailboxEntry),
		byMsg:   make(map[string]*model.MailboxEntry),
		cursors: make(map[string]*model.MailboxCursor),
		failOn:  make(map[string]error),
	}
}

// FailOwner 注入指定 owner 的写入失败
func (s *memStore) FailOwner(owner string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failOn[owner] = err
}

func keyConv(owner, conv string) string       { return owner + "|" + conv }
func keyMsg(owner, conv, msgID string) string { return owner + "|" + conv + "|" + msgID }

func (s *memStore) InsertEntry(_ context.Context, e *model.MailboxEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err, ok := s.failOn[e.OwnerID]; ok {
		return err
	}
	km := keyMsg(e.OwnerID, e.ConversationID, e.MessageID)
	if _, ok := s.byMsg[km]; ok {
		return ErrUniqueMsg
	}
	kc := keyConv(e.OwnerID, e.ConversationID)
	for _, old := range s.entries[kc] {
		if old.Seq == e.Seq {
			return ErrUniqueSeq
		}
	}
	cp := *e
	s.entries[kc] = append(s.entries[kc], &cp)
	s.byMsg[km] = &cp
	return nil
}

func (s *memStore) GetEntryByMessageID(_ context.Context, owner, conv, messageID string) (*model.MailboxEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if e, ok := s.byMsg[keyMsg(owner, conv, messageID)]; ok {
		cp := *e
		return &cp, nil
	}
	return nil, errs.ErrRecordNotFound.WrapMsg("entry", "messageId", messageID)
}

func (s *memStore) MarkEntryRead(_ context.Context, owner, conv string, seq, readAtMS int64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, e := range s.entries[keyConv(owner, conv)] {
		if e.Seq == seq && e.Status == model.EntryStatusUnread {
			e.Status = model.EntryStatusRead
			e.ReadTime = readAtMS
			return true, nil
		}
	}
	return false, nil
}

func (s *memStore) MarkEntriesReadUpTo(_ context.Context, owner, conv string, toSeq, readAtMS int64) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for _, e := range s.entries[keyConv(owner, conv)] {
		if e.Seq <= toSeq && e.Status == model.EntryStatusUnread {
			e.Status = model.EntryStatusRead
			e.ReadTime = readAtMS
			n++
		}
	}
	return n, nil
}

func (s *memStore) SoftDeleteEntry(_ context.Context, owner, conv string, seq int64) (bool, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, e := range s.entries[keyConv(owner, conv)] {
		if e.Seq == seq && e.Status != model.EntryStatusDeleted {
			wasUnread := e.Status == model.EntryStatusUnread
			e.Status = model.EntryStatusDeleted
			return wasUnread, true, nil
		}
	}
	return false, false, nil
}

func (s *memStore) ClearEntries(_ context.Context, owner, conv string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for _, e := range s.entries[keyConv(owner, conv)] {
		if e.Status != model.EntryStatusDeleted {
			e.Status = model.EntryStatusDeleted
			n++
		}
	}
	return n, nil
}

func (s *memStore) RangeEntries(_ context.Context, owner, conv string, fromSeq, limit int64) ([]*model.MailboxEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*model.MailboxEntry
	for _, e := range s.entries[keyConv(owner, conv)] {
		if e.Seq > fromSeq && e.Status != model.EntryStatusDeleted {
			cp := *e
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Seq < out[j].Seq })
	if limit > 0 && int64(len(out)) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *memStore) CountUnread(_ context.Context, owner, conv string) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var n int64
	for _, e := range s.entries[keyConv(owner, conv)] {
		if e.Status == model.EntryStatusUnread {
			n++
		}
	}
	return n, nil
}

func (s *memStore) CountUnreadTotal(_ context.Context, owner string) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var n int64
	for k, list := range s.entries {
		if len(k) < len(owner)+1 || k[:len(owner)+1] != owner+"|" {
			continue
		}
		for _, e := range list {
			if e.Status == model.EntryStatusUnread {
				n++
			}
		}
	}
	return n, nil
}

func (s *memStore) MaxEntrySeq(_ context.Context, owner, conv string) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var max int64
	for _, e := range s.entries[keyConv(owner, conv)] {
		if e.Seq > max {
			max = e.Seq
		}
	}
	return max, nil
}

func (s *memStore) MaxDurableSeq(_ context.Context, owner, conv string) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var max int64
	if c, ok := s.cursors[keyConv(owner, conv)]; ok {
		max = c.MaxSeq
	}
	for _, e := range s.entries[keyConv(owner, conv)] {
		if e.Seq > max {
			max = e.Seq
		}
	}
	return max, nil
}

// PurgeEntries 硬删某会话的全部副本，模拟保留期 TTL 索引到期清理（游标保留）
func (s *memStore) PurgeEntries(owner, conv string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	k := keyConv(owner, conv)
	for _, e := range s.entries[k] {
		delete(s.byMsg, keyMsg(owner, conv, e.MessageID))
	}
	delete(s.entries, k)
}

func (s *memStore) EnsureCursor(_ context.Context, owner, conv string, convType int32) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	k := keyConv(owner, conv)
	if _, ok := s.cursors[k]; !ok {
		now := time.Now()
		s.cursors[k] = &model.MailboxCursor{
			OwnerID: owner, ConversationID: conv, ConversationType: convType,
			CreateTime: now, UpdateTime: now,
		}
	}
	return nil
}

func (s *memStore) GetCursor(_ context.Context, owner, conv string) (*model.MailboxCursor, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if c, ok := s.cursors[keyConv(owner, conv)]; ok {
		cp := *c
		return &cp, nil
	}
	return nil, errs.ErrRecordNotFound.WrapMsg("cursor", "owner", owner, "conv", conv)
}

func (s *memStore) ListCursors(_ context.Context, owner string) ([]*model.MailboxCursor, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*model.MailboxCursor
	for _, c := range s.cursors {
		if c.OwnerID == owner {
			cp := *c
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ConversationID < out[j].ConversationID })
	return out, nil
}

func (s *memStore) BumpCursor(_ context.Context, owner, conv string, seq int64, messageID string, sendTimeMS int64, incrUnread bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.cursors[keyConv(owner, conv)]
	if !ok {
		return errs.ErrRecordNotFound.WrapMsg("cursor", "owner", owner, "conv", conv)
	}
	if seq > c.MaxSeq {
		c.MaxSeq = seq
	}
	if incrUnread {
		c.UnreadCount++
	}
	if c.LastMessageTime <= sendTimeMS {
		c.LastMessageID = messageID
		c.LastMessageTime = sendTimeMS
	}
	c.UpdateTime = time.Now()
	return nil
}

func (s *memStore) SetUnread(_ context.Context, owner, conv string, n int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if c, ok := s.cursors[keyConv(owner, conv)]; ok {
		if n < 0 {
			n = 0
		}
		c.UnreadCount = n
		c.UpdateTime = time.Now()
	}
	return nil
}

func (s *memStore) DecrUnread(_ context.Context, owner, conv string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if c, ok := s.cursors[keyConv(owner, conv)]; ok && c.UnreadCount > 0 {
		c.UnreadCount--
		c.UpdateTime = time.Now()
	}
	return nil
}

func (s *memStore) ZeroUnread(ctx context.Context, owner, conv string) error {
	return s.SetUnread(ctx, owner, conv, 0)
}

func (s *memStore) ResyncCursor(ctx context.Context, owner, conv string) (*CursorStats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	stats := &CursorStats{}
	for _, e := range s.entries[keyConv(owner, conv)] {
		if e.Seq > stats.MaxSeq {
			stats.MaxSeq = e.Seq
		}
		if e.Status == model.EntryStatusUnread {
			stats.UnreadCount++
		}
		if e.Status != model.EntryStatusDeleted && e.SendTime >= stats.LastMessageTime {
			stats.LastMessageID = e.MessageID
			stats.LastMessageTime = e.SendTime
		}
	}

	k := keyConv(owner, conv)
	c, ok := s.cursors[k]
	if !ok {
		now := time.Now()
		c = &model.MailboxCursor{OwnerID: owner, ConversationID: conv, CreateTime: now}
		s.cursors[k] = c
	}
	// max_seq 只升不降：副本可能已被保留期清理
	if c.MaxSeq > stats.MaxSeq {
		stats.MaxSeq = c.MaxSeq
	}
	c.MaxSeq = stats.MaxSeq
	c.UnreadCount = stats.UnreadCount
	if stats.LastMessageID != "" {
		c.LastMessageID = stats.LastMessageID
		c.LastMessageTime = stats.LastMessageTime
	}
	c.UpdateTime = time.Now()
	return stats, nil
}

func (s *memStore) IsDupEntry(err error) bool { return errors.Is(err, ErrUniqueMsg) }

func (s *memStore) IsNotFound(err error) bool { return errs.IsNotFound(err) }

func (s *memStore) IsTransient(err error) bool { return false } // 内存版无瞬时错误
