package message

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"FleetsIM/global"
	"FleetsIM/module/conversation"
	"FleetsIM/module/mailbox"
	"FleetsIM/module/mailbox/seq"
	"FleetsIM/module/mailbox/store"
	errs "FleetsIM/tools/errs"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testEnv struct {
	sender    *Sender
	mailbox   *mailbox.Service
	summary   *conversation.Updater
	canonical *memCanonicalStore
	groups    *memGroupResolver
	pub       *memPublisher
	sink      *memReportSink
	store     interface {
		store.Store
		FailOwner(owner string, err error)
	}
}

func newTestEnv() *testEnv {
	cfg := global.DefaultConfig()
	st := store.NewMemStore()
	alloc := seq.NewAllocator(seq.NewMemCounter(), st, cfg.Keys.SequencePrefix, time.Hour)
	mbox := mailbox.NewService(st, alloc, mailbox.NewMemUnreadCache(), &cfg.Mailbox)
	summary := conversation.NewUpdater(conversation.NewMemSummaryStore(), cfg.Message.SummarySnippetLength)

	env := &testEnv{
		mailbox:   mbox,
		summary:   summary,
		canonical: NewMemCanonicalStore(),
		groups:    NewMemGroupResolver(),
		pub:       NewMemPublisher(),
		sink:      NewMemReportSink(),
		store:     st,
	}
	env.sender = NewSender(env.canonical, env.groups, mbox, summary, env.pub, env.sink,
		cfg.MessageTopic, &cfg.Message).SyncFanout()
	return env
}

func TestSendDirectChat(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()

	msg, err := env.sender.Send(ctx, &SendReq{
		SenderID: "u1", TargetID: "u2", SessionType: SessionSingle,
		ContentType: 1, Content: "hello",
	})
	require.NoError(t, err)
	require.NotEmpty(t, msg.ID)
	conv := conversation.ConvID(SessionSingle, "u1", "u2")

	// 正本可回查
	got, err := env.canonical.Get(ctx, msg.ID)
	require.NoError(t, err)
	assert.Equal(t, "hello", got.Content)

	// 双方信箱各有一份副本；发送方不计未读
	for _, owner := range []string{"u1", "u2"} {
		e, err := env.mailbox.Store().GetEntryByMessageID(ctx, owner, conv, msg.ID)
		require.NoError(t, err)
		assert.Equal(t, int64(1), e.Seq)
	}
	n, err := env.mailbox.GetConversationUnreadCount(ctx, "u1", conv)
	require.NoError(t, err)
	assert.Equal(t, int64(0), n)
	n, err = env.mailbox.GetConversationUnreadCount(ctx, "u2", conv)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	// 摘要：接收方未读1，发送方未读0，指针一致
	recv, err := env.summary.Get(ctx, conv, "u2")
	require.NoError(t, err)
	assert.Equal(t, int64(1), recv.UnreadCount)
	assert.Equal(t, msg.ID, recv.LastMessageID)
	assert.Equal(t, "u1", recv.TargetID)
	sent, err := env.summary.Get(ctx, conv, "u1")
	require.NoError(t, err)
	assert.Equal(t, int64(0), sent.UnreadCount)
	assert.Equal(t, "u2", sent.TargetID)

	// 一条消息只发一次事件，按会话键分区
	events := env.pub.Events()
	require.Len(t, events, 1)
	assert.Equal(t, conv, events[0].Key)
	var ev messageEvent
	require.NoError(t, json.Unmarshal(events[0].Payload, &ev))
	assert.Equal(t, msg.ID, ev.Message.ID)
	assert.NotEmpty(t, ev.EventID)

	reports := env.sink.Reports()
	require.Len(t, reports, 1)
	assert.Equal(t, StateFanoutComplete, reports[0].State)
	assert.ElementsMatch(t, []string{"u1", "u2"}, reports[0].Succeeded)
}

func TestSendGroupChat(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()
	env.groups.SetMembers("g1", []string{"u1", "u2", "u3"})

	msg, err := env.sender.Send(ctx, &SendReq{
		SenderID: "u1", TargetID: "g1", SessionType: SessionGroup,
		ContentType: 1, Content: "all hands",
	})
	require.NoError(t, err)
	conv := conversation.ConvID(SessionGroup, "u1", "g1")
	assert.Equal(t, "conv_group_g1", conv)

	for _, owner := range []string{"u1", "u2", "u3"} {
		_, err := env.mailbox.Store().GetEntryByMessageID(ctx, owner, conv, msg.ID)
		require.NoError(t, err, "owner %s missing copy", owner)
	}

	// 群聊摘要的对端统一是群ID
	recv, err := env.summary.Get(ctx, conv, "u2")
	require.NoError(t, err)
	assert.Equal(t, "g1", recv.TargetID)
	assert.Equal(t, int64(1), recv.UnreadCount)
	sent, err := env.summary.Get(ctx, conv, "u1")
	require.NoError(t, err)
	assert.Equal(t, int64(0), sent.UnreadCount)

	reports := env.sink.Reports()
	require.Len(t, reports, 1)
	assert.Equal(t, StateFanoutComplete, reports[0].State)
	assert.ElementsMatch(t, []string{"u1", "u2", "u3"}, reports[0].Succeeded)
}

func TestSendGroupResolverFailureStillPublishes(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()
	env.groups.FailWith(fmt.Errorf("member service down"))

	msg, err := env.sender.Send(ctx, &SendReq{
		SenderID: "u1", TargetID: "g1", SessionType: SessionGroup,
		ContentType: 1, Content: "hello",
	})
	require.NoError(t, err, "canonical persisted, send must still ack")

	// 发送方自己的副本照常写；事件照发，补偿侧据正本重投
	conv := conversation.ConvID(SessionGroup, "u1", "g1")
	_, err = env.mailbox.Store().GetEntryByMessageID(ctx, "u1", conv, msg.ID)
	require.NoError(t, err)
	assert.Len(t, env.pub.Events(), 1)

	reports := env.sink.Reports()
	require.Len(t, reports, 1)
	assert.Equal(t, StateFanoutPartial, reports[0].State)
}

func TestSendPartialFanoutReported(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()
	env.groups.SetMembers("g1", []string{"u1", "u2", "u3", "u4"})
	env.store.FailOwner("u3", fmt.Errorf("write refused"))

	msg, err := env.sender.Send(ctx, &SendReq{
		SenderID: "u1", TargetID: "g1", SessionType: SessionGroup,
		ContentType: 1, Content: "hello",
	})
	require.NoError(t, err)

	reports := env.sink.Reports()
	require.Len(t, reports, 1)
	assert.Equal(t, StateFanoutPartial, reports[0].State)
	assert.ElementsMatch(t, []string{"u1", "u2", "u4"}, reports[0].Succeeded)
	assert.Equal(t, []string{"u3"}, reports[0].Failed)

	// 失败接收者之外不受影响
	conv := conversation.ConvID(SessionGroup, "u1", "g1")
	_, err = env.mailbox.Store().GetEntryByMessageID(ctx, "u2", conv, msg.ID)
	require.NoError(t, err)
	_, err = env.mailbox.Store().GetEntryByMessageID(ctx, "u3", conv, msg.ID)
	require.Error(t, err)
}

type failingCanonical struct{ err error }

func (f *failingCanonical) Save(context.Context, *Message) error { return f.err }
func (f *failingCanonical) Get(context.Context, string) (*Message, error) {
	return nil, errs.ErrRecordNotFound
}

func TestSendCanonicalFailureAborts(t *testing.T) {
	env := newTestEnv()
	cfg := global.DefaultConfig()
	sender := NewSender(&failingCanonical{err: fmt.Errorf("mongo down")},
		env.groups, env.mailbox, env.summary, env.pub, env.sink,
		cfg.MessageTopic, &cfg.Message).SyncFanout()

	_, err := sender.Send(context.Background(), &SendReq{
		SenderID: "u1", TargetID: "u2", SessionType: SessionSingle,
		ContentType: 1, Content: "hello",
	})
	require.Error(t, err)

	// 整单拒绝：没有任何副本、事件和报告
	assert.Empty(t, env.pub.Events())
	assert.Empty(t, env.sink.Reports())
}

func TestSendValidation(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()

	cases := []SendReq{
		{TargetID: "u2", SessionType: SessionSingle, Content: "hi"},        // 缺 sender
		{SenderID: "u1", SessionType: SessionSingle, Content: "hi"},        // 缺 target
		{SenderID: "u1", TargetID: "u2", SessionType: 9, Content: "hi"},    // 非法会话类型
		{SenderID: "u1", TargetID: "u2", SessionType: SessionSingle},       // 空内容
	}
	for i, req := range cases {
		_, err := env.sender.Send(ctx, &req)
		assert.True(t, errs.IsArgs(err), "case %d", i)
	}

	long := make([]rune, global.DefaultConfig().Message.MaxContentLength+1)
	for i := range long {
		long[i] = '字'
	}
	_, err := env.sender.Send(ctx, &SendReq{
		SenderID: "u1", TargetID: "u2", SessionType: SessionSingle,
		ContentType: 1, Content: string(long),
	})
	assert.True(t, errs.IsArgs(err))
}

func TestSendAssignsServerSideIDAndTime(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()

	before := time.Now().UnixMilli()
	m1, err := env.sender.Send(ctx, &SendReq{
		SenderID: "u1", TargetID: "u2", SessionType: SessionSingle,
		ContentType: 1, Content: "a",
	})
	require.NoError(t, err)
	m2, err := env.sender.Send(ctx, &SendReq{
		SenderID: "u1", TargetID: "u2", SessionType: SessionSingle,
		ContentType: 1, Content: "b",
	})
	require.NoError(t, err)

	assert.NotEqual(t, m1.ID, m2.ID)
	assert.Less(t, m1.ID, m2.ID, "snowflake ids are time ordered")
	assert.GreaterOrEqual(t, m1.SendTime, before)
}
