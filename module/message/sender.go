package message

import (
	"context"
	"encoding/json"
	"time"

	"FleetsIM/global"
	"FleetsIM/logger"
	"FleetsIM/module/conversation"
	"FleetsIM/module/mailbox"
	errs "FleetsIM/tools/errs"
	"FleetsIM/tools/ids"
	"FleetsIM/tools/safe"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Sender 写路径编排：正本落库 → 确认发送方 → 扇出信箱副本与会话摘要 → 发事件。
// 正本落库失败整单拒绝；扇出失败不回滚已成功的接收者，出部分失败报告。
type Sender struct {
	canonical CanonicalStore
	groups    GroupResolver
	mailbox   *mailbox.Service
	summary   *conversation.Updater
	pub       Publisher
	sink      ReportSink

	topic string
	cfg   *global.MessageConfig

	// syncFanout 为真时扇出在调用方协程同步执行（测试用；线上走 safe.Go）
	syncFanout bool
}

func NewSender(canonical CanonicalStore, groups GroupResolver, mbox *mailbox.Service,
	summary *conversation.Updater, pub Publisher, sink ReportSink,
	topic string, cfg *global.MessageConfig) *Sender {
	safe.MustNotNil(canonical, "canonical store")
	safe.MustNotNil(groups, "group resolver")
	safe.MustNotNil(mbox, "mailbox service")
	safe.MustNotNil(summary, "summary updater")
	safe.MustNotNil(pub, "event publisher")
	safe.MustNotNil(cfg, "message config")
	return &Sender{
		canonical: canonical,
		groups:    groups,
		mailbox:   mbox,
		summary:   summary,
		pub:       pub,
		sink:      sink,
		topic:     topic,
		cfg:       cfg,
	}
}

func (s *Sender) Canonical() CanonicalStore { return s.canonical }

// SyncFanout 切换为同步扇出（测试可确定性断言扇出结果）
func (s *Sender) SyncFanout() *Sender {
	s.syncFanout = true
	return s
}

// SendReq 发送请求。ID/SendTime 留空由服务端赋值。
type SendReq struct {
	SenderID    string `json:"sender_id"`
	TargetID    string `json:"target_id"`
	SessionType int32  `json:"session_type"`
	ContentType int32  `json:"content_type"`
	Content     string `json:"content"`
}

func (s *Sender) validate(req *SendReq) error {
	if req.SenderID == "" || req.TargetID == "" {
		return errs.ErrArgs.WrapMsg("send", "sender", req.SenderID, "target", req.TargetID)
	}
	if req.SessionType != SessionSingle && req.SessionType != SessionGroup {
		return errs.ErrArgs.WrapMsg("send", "sessionType", req.SessionType)
	}
	if req.Content == "" {
		return errs.ErrArgs.WrapMsg("send", "reason", "empty content")
	}
	if max := s.cfg.MaxContentLength; max > 0 && len([]rune(req.Content)) > max {
		return errs.ErrArgs.WrapMsg("send", "reason", "content too long", "max", max)
	}
	return nil
}

// Send 接收一条消息。正本落库即返回——发送方的确认不等扇出。
func (s *Sender) Send(ctx context.Context, req *SendReq) (*Message, error) {
	if err := s.validate(req); err != nil {
		return nil, err
	}

	msg := &Message{
		ID:          ids.GenerateString(),
		SenderID:    req.SenderID,
		TargetID:    req.TargetID,
		SessionType: req.SessionType,
		ContentType: req.ContentType,
		Content:     req.Content,
		SendTime:    time.Now().UnixMilli(),
	}

	// 正本是事实源：落库失败直接拒绝，不产生任何副本
	if err := s.canonical.Save(ctx, msg); err != nil {
		return nil, errs.WrapMsg(err, "save canonical", "msgId", msg.ID)
	}

	if s.syncFanout {
		s.fanout(ctx, msg)
	} else {
		safe.Go(func() {
			// 脱离请求上下文：确认已经返回，扇出自管生命周期
			fctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()
			s.fanout(fctx, msg)
		})
	}
	return msg, nil
}

// recipients 解析除发送方外的接收者集合
func (s *Sender) recipients(ctx context.Context, msg *Message) ([]string, error) {
	if msg.SessionType == SessionSingle {
		return []string{msg.TargetID}, nil
	}
	members, err := s.groups.GetMemberIDs(ctx, msg.TargetID)
	if err != nil {
		return nil, err
	}
	out := members[:0]
	for _, id := range members {
		if id != msg.SenderID {
			out = append(out, id)
		}
	}
	return out, nil
}

// ownerTarget 摘要行里的对端：单聊是对话另一方，群聊是群ID
func ownerTarget(msg *Message, owner string) string {
	if msg.SessionType == SessionSingle {
		if owner == msg.SenderID {
			return msg.TargetID
		}
		return msg.SenderID
	}
	return msg.TargetID
}

func (s *Sender) fanout(ctx context.Context, msg *Message) {
	convID := conversation.ConvID(msg.SessionType, msg.SenderID, msg.TargetID)
	report := &FanoutReport{
		MessageID:      msg.ID,
		ConversationID: convID,
		State:          StateFanoutInFlight,
	}

	in := &mailbox.Incoming{
		MessageID:   msg.ID,
		SenderID:    msg.SenderID,
		SessionType: msg.SessionType,
		ContentType: msg.ContentType,
		Content:     msg.Content,
		SendTime:    msg.SendTime,
	}

	// 发送方自己的副本与摘要（未读不加）
	if _, err := s.mailbox.WriteOne(ctx, msg.SenderID, convID, in); err != nil {
		logger.Error("sender copy write failed",
			zap.String("msgId", msg.ID), zap.String("sender", msg.SenderID), zap.Error(err))
		report.Failed = append(report.Failed, msg.SenderID)
	} else {
		report.Succeeded = append(report.Succeeded, msg.SenderID)
		s.applySummary(ctx, msg, convID, msg.SenderID, false)
	}

	others, err := s.recipients(ctx, msg)
	if err != nil {
		// 成员不可得：副本投不了，事件照发（下游补偿侧据正本重投）
		logger.Error("resolve recipients failed",
			zap.String("msgId", msg.ID), zap.String("target", msg.TargetID), zap.Error(err))
		report.State = StateFanoutPartial
	} else {
		res := s.mailbox.WriteBatch(ctx, others, convID, in)
		report.Succeeded = append(report.Succeeded, res.Succeeded...)
		for _, f := range res.Failed {
			report.Failed = append(report.Failed, f.OwnerID)
		}
		for _, owner := range res.Succeeded {
			s.applySummary(ctx, msg, convID, owner, true)
		}
		if res.AllOK() {
			report.State = StateFanoutComplete
		} else {
			report.State = StateFanoutPartial
			logger.Error("fanout partial failure",
				zap.String("msgId", msg.ID), zap.String("conv", convID),
				zap.Error(res.Err()))
		}
	}

	s.publishEvent(ctx, msg, convID)
	if s.sink != nil {
		s.sink.Report(ctx, report)
	}
}

// applySummary 摘要失败不影响信箱副本结果，只记日志
func (s *Sender) applySummary(ctx context.Context, msg *Message, convID, owner string, asReceiver bool) {
	apply := s.summary.ApplyAsSender
	if asReceiver {
		apply = s.summary.ApplyAsReceiver
	}
	if _, err := apply(ctx, owner, ownerTarget(msg, owner), msg.SessionType,
		convID, msg.ID, msg.Content, msg.SendTime, msg.SenderID); err != nil {
		logger.Warn("summary update failed",
			zap.String("owner", owner), zap.String("conv", convID),
			zap.String("msgId", msg.ID), zap.Error(err))
	}
}

// messageEvent 下游事件体。event_id 每次发布唯一，消费端按 message.id 去重。
type messageEvent struct {
	EventID string   `json:"event_id"`
	ConvID  string   `json:"conv_id"`
	Message *Message `json:"message"`
}

// publishEvent 单条消息只发一次事件，按会话键分区保同会话顺序
func (s *Sender) publishEvent(ctx context.Context, msg *Message, convID string) {
	payload, err := json.Marshal(&messageEvent{
		EventID: uuid.NewString(),
		ConvID:  convID,
		Message: msg,
	})
	if err != nil {
		logger.Error("marshal message event failed", zap.String("msgId", msg.ID), zap.Error(err))
		return
	}
	if err := s.pub.Publish(ctx, s.topic, convID, payload); err != nil {
		logger.Error("publish message event failed",
			zap.String("msgId", msg.ID), zap.String("topic", s.topic), zap.Error(err))
	}
}
