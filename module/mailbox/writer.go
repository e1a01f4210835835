package mailbox

import (
	"context"
	"sync"
	"time"

	"FleetsIM/logger"
	"FleetsIM/module/mailbox/model"
	errs "FleetsIM/tools/errs"

	"go.uber.org/zap"
)

// WriteOne 写一份接收者副本并推进游标。
//
// 幂等键 (owner, conversation, messageId)：重试命中唯一约束时直接返回已落的
// 副本，不重复推进游标，未读数只会 +1 一次。副本落库与游标推进之间没有
// 事务：中间失败时副本已可见、游标落后，由 Repair 从副本集重导。
func (s *Service) WriteOne(ctx context.Context, owner, conv string, in *Incoming) (*model.MailboxEntry, error) {
	if owner == "" || conv == "" {
		return nil, errs.ErrArgs.WrapMsg("writeOne", "owner", owner, "conv", conv)
	}
	if in == nil || in.MessageID == "" {
		return nil, errs.ErrArgs.WrapMsg("writeOne: empty message", "owner", owner, "conv", conv)
	}

	if err := s.withRetry(ctx, "ensure cursor", func() error {
		return s.store.EnsureCursor(ctx, owner, conv, in.SessionType)
	}); err != nil {
		return nil, err
	}

	sequence, err := s.alloc.Allocate(ctx, owner, conv)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	entry := &model.MailboxEntry{
		OwnerID:        owner,
		ConversationID: conv,
		Seq:            sequence,
		MessageID:      in.MessageID,
		SenderID:       in.SenderID,
		SessionType:    in.SessionType,
		ContentType:    in.ContentType,
		Content:        in.Content,
		Status:         model.EntryStatusUnread,
		SendTime:       in.SendTime,
		CreateTime:     now,
		ExpireTime:     now.Add(s.cfg.EntryTTL()),
	}

	err = s.withRetry(ctx, "insert entry", func() error {
		return s.store.InsertEntry(ctx, entry)
	})
	if err != nil {
		if s.store.IsDupEntry(err) {
			// 重放：该消息已写过，按已应用处理
			logger.Debug("mailbox write replayed",
				zap.String("owner", owner), zap.String("conv", conv),
				zap.String("messageId", in.MessageID))
			return s.store.GetEntryByMessageID(ctx, owner, conv, in.MessageID)
		}
		return nil, errs.WrapMsg(err, "insert entry",
			"owner", owner, "conv", conv, "messageId", in.MessageID)
	}

	incr := owner != in.SenderID // 自己的副本不计未读
	if err := s.withRetry(ctx, "bump cursor", func() error {
		return s.store.BumpCursor(ctx, owner, conv, sequence, in.MessageID, in.SendTime, incr)
	}); err != nil {
		// 半程写：副本已落，游标待修复。记全量定位信息供补偿扫描
		logger.Error("cursor bump failed after entry write",
			zap.String("owner", owner), zap.String("conv", conv),
			zap.String("messageId", in.MessageID), zap.Int64("seq", sequence),
			zap.Error(err))
		return entry, errs.WrapMsg(err, "bump cursor",
			"owner", owner, "conv", conv, "messageId", in.MessageID)
	}

	s.invalidateUnread(ctx, owner)
	return entry, nil
}

// BatchFailure 单个接收者的失败明细
type BatchFailure struct {
	OwnerID string
	Err     error
}

// BatchResult 批量写入的部分成功报告（不是异常）
type BatchResult struct {
	Succeeded []string
	Failed    []BatchFailure
}

func (r *BatchResult) AllOK() bool { return len(r.Failed) == 0 }

// Err 部分失败的带码汇总；全部成功返回 nil
func (r *BatchResult) Err() error {
	if len(r.Failed) == 0 {
		return nil
	}
	return errs.ErrPartialFanout.WrapMsg("batch write",
		"failed", len(r.Failed), "succeeded", len(r.Succeeded))
}

// WriteBatch 按接收者扇出 WriteOne。接收者之间相互独立：单个失败不回滚
// 也不阻塞其他人。并发由 worker 上限约束（背压，防止万人群写穿存储）。
func (s *Service) WriteBatch(ctx context.Context, owners []string, conv string, in *Incoming) *BatchResult {
	res := &BatchResult{}
	if len(owners) == 0 {
		return res
	}

	workers := s.cfg.FanoutWorkers
	if workers <= 0 {
		workers = 1
	}
	chunk := s.cfg.BatchWriteLimit
	if chunk <= 0 {
		chunk = len(owners)
	}

	var mu sync.Mutex
	sem := make(chan struct{}, workers)
	var wg sync.WaitGroup

	for start := 0; start < len(owners); start += chunk {
		end := start + chunk
		if end > len(owners) {
			end = len(owners)
		}
		for _, owner := range owners[start:end] {
			owner := owner
			wg.Add(1)
			sem <- struct{}{}
			go func() {
				defer wg.Done()
				defer func() { <-sem }()
				_, err := s.WriteOne(ctx, owner, conv, in)
				mu.Lock()
				defer mu.Unlock()
				if err != nil {
					res.Failed = append(res.Failed, BatchFailure{OwnerID: owner, Err: err})
					return
				}
				res.Succeeded = append(res.Succeeded, owner)
			}()
		}
		wg.Wait()
	}

	if len(res.Failed) > 0 {
		for _, f := range res.Failed {
			logger.Error("fanout write failed",
				zap.String("owner", f.OwnerID), zap.String("conv", conv),
				zap.String("messageId", in.MessageID), zap.Error(f.Err))
		}
	}
	return res
}
