package mailbox

import (
	"context"

	"FleetsIM/module/mailbox/model"
	errs "FleetsIM/tools/errs"
)

// SyncResult 增量同步的一页。
// HasMore 是 len(entries)==pageSize 的启发式判断：恰好整页收尾时会多出
// 一次空页拉取。这是既有契约，客户端按空页终止即可。
type SyncResult struct {
	Entries []*model.MailboxEntry `json:"entries"`
	HasMore bool                  `json:"has_more"`
	MaxSeq  int64                 `json:"max_seq"` // 当前游标最大序列（同步进度上界）
}

// Pull 增量拉取：seq > fromSeq 的副本，升序、限页
func (s *Service) Pull(ctx context.Context, owner, conv string, fromSeq, pageSize int64) (*SyncResult, error) {
	if owner == "" || conv == "" || fromSeq < 0 {
		return nil, errs.ErrArgs.WrapMsg("pull", "owner", owner, "conv", conv, "fromSeq", fromSeq)
	}
	if pageSize <= 0 || pageSize > int64(s.cfg.PullPageSize) {
		pageSize = int64(s.cfg.PullPageSize)
	}

	entries, err := s.store.RangeEntries(ctx, owner, conv, fromSeq, pageSize)
	if err != nil {
		return nil, errs.WrapMsg(err, "range entries", "owner", owner, "conv", conv)
	}

	var maxSeq int64
	if c, err := s.store.GetCursor(ctx, owner, conv); err == nil {
		maxSeq = c.MaxSeq
	} else if !s.store.IsNotFound(err) {
		return nil, errs.WrapMsg(err, "get cursor", "owner", owner, "conv", conv)
	}

	return &SyncResult{
		Entries: entries,
		HasMore: int64(len(entries)) == pageSize,
		MaxSeq:  maxSeq,
	}, nil
}

// PullAllOffline 离线全量：遍历 owner 的全部会话信箱，各自从 lastSeq 之后
// 拉到尾部再合并。仅保证单会话内升序；会话之间没有全局顺序。
func (s *Service) PullAllOffline(ctx context.Context, owner string, lastSeq int64) ([]*model.MailboxEntry, error) {
	if owner == "" || lastSeq < 0 {
		return nil, errs.ErrArgs.WrapMsg("pullAllOffline", "owner", owner, "lastSeq", lastSeq)
	}

	cursors, err := s.store.ListCursors(ctx, owner)
	if err != nil {
		return nil, errs.WrapMsg(err, "list cursors", "owner", owner)
	}

	page := int64(s.cfg.PullPageSize)
	var out []*model.MailboxEntry
	for _, c := range cursors {
		from := lastSeq
		for {
			entries, err := s.store.RangeEntries(ctx, owner, c.ConversationID, from, page)
			if err != nil {
				return nil, errs.WrapMsg(err, "range entries",
					"owner", owner, "conv", c.ConversationID)
			}
			out = append(out, entries...)
			if int64(len(entries)) < page {
				break
			}
			from = entries[len(entries)-1].Seq
		}
	}
	return out, nil
}
