package mailbox

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"FleetsIM/global"
	"FleetsIM/module/mailbox/seq"
	"FleetsIM/module/mailbox/store"
	errs "FleetsIM/tools/errs"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testStore interface {
	store.Store
	FailOwner(owner string, err error)
}

func newTestService() (*Service, testStore) {
	st := store.NewMemStore()
	cfg := global.DefaultConfig().Mailbox
	alloc := seq.NewAllocator(seq.NewMemCounter(), st, "mailbox:seq:", time.Hour)
	return NewService(st, alloc, NewMemUnreadCache(), &cfg), st
}

func incoming(msgID, sender string) *Incoming {
	return &Incoming{
		MessageID:   msgID,
		SenderID:    sender,
		SessionType: 0,
		ContentType: 1,
		Content:     "hello " + msgID,
		SendTime:    time.Now().UnixMilli(),
	}
}

func TestWriteOneAssignsSequenceAndBumpsCursor(t *testing.T) {
	svc, st := newTestService()
	ctx := context.Background()
	conv := "conv_u1_u2"

	for i := 1; i <= 3; i++ {
		e, err := svc.WriteOne(ctx, "u1", conv, incoming(fmt.Sprintf("m%d", i), "u2"))
		require.NoError(t, err)
		assert.Equal(t, int64(i), e.Seq)
	}

	c, err := st.GetCursor(ctx, "u1", conv)
	require.NoError(t, err)
	assert.Equal(t, int64(3), c.MaxSeq)
	assert.Equal(t, int64(3), c.UnreadCount)
	assert.Equal(t, "m3", c.LastMessageID)
}

func TestWriteOneReplayIsIdempotent(t *testing.T) {
	svc, st := newTestService()
	ctx := context.Background()
	conv := "conv_u1_u2"

	first, err := svc.WriteOne(ctx, "u1", conv, incoming("m1", "u2"))
	require.NoError(t, err)

	// 重试同一条消息：返回已落副本，游标与未读不再推进
	again, err := svc.WriteOne(ctx, "u1", conv, incoming("m1", "u2"))
	require.NoError(t, err)
	assert.Equal(t, first.Seq, again.Seq)
	assert.Equal(t, first.MessageID, again.MessageID)

	c, err := st.GetCursor(ctx, "u1", conv)
	require.NoError(t, err)
	assert.Equal(t, int64(1), c.UnreadCount)
	assert.Equal(t, first.Seq, c.MaxSeq)
}

func TestWriteOneSenderCopySkipsUnread(t *testing.T) {
	svc, st := newTestService()
	ctx := context.Background()
	conv := "conv_u1_u2"

	_, err := svc.WriteOne(ctx, "u1", conv, incoming("m1", "u1"))
	require.NoError(t, err)

	c, err := st.GetCursor(ctx, "u1", conv)
	require.NoError(t, err)
	assert.Equal(t, int64(0), c.UnreadCount)
	assert.Equal(t, int64(1), c.MaxSeq)
}

func TestWriteBatchIsolatesFailures(t *testing.T) {
	svc, st := newTestService()
	ctx := context.Background()
	conv := "conv_group_g1"
	st.FailOwner("u3", fmt.Errorf("disk on fire"))

	owners := []string{"u1", "u2", "u3", "u4", "u5"}
	res := svc.WriteBatch(ctx, owners, conv, incoming("m1", "u9"))

	assert.False(t, res.AllOK())
	assert.True(t, errors.Is(res.Err(), errs.ErrPartialFanout))
	assert.Len(t, res.Succeeded, 4)
	require.Len(t, res.Failed, 1)
	assert.Equal(t, "u3", res.Failed[0].OwnerID)

	// 失败不影响其他接收者的副本
	for _, owner := range []string{"u1", "u2", "u4", "u5"} {
		e, err := st.GetEntryByMessageID(ctx, owner, conv, "m1")
		require.NoError(t, err)
		assert.Equal(t, int64(1), e.Seq)
	}
	_, err := st.GetEntryByMessageID(ctx, "u3", conv, "m1")
	require.Error(t, err)
}

func TestMarkReadIsIdempotent(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()
	conv := "conv_u1_u2"

	e, err := svc.WriteOne(ctx, "u1", conv, incoming("m1", "u2"))
	require.NoError(t, err)

	require.NoError(t, svc.MarkRead(ctx, "u1", conv, e.Seq))
	n, err := svc.GetConversationUnreadCount(ctx, "u1", conv)
	require.NoError(t, err)
	assert.Equal(t, int64(0), n)

	// 重复标记：空操作成功，不会把未读数减成负数
	require.NoError(t, svc.MarkRead(ctx, "u1", conv, e.Seq))
	n, err = svc.GetConversationUnreadCount(ctx, "u1", conv)
	require.NoError(t, err)
	assert.Equal(t, int64(0), n)
}

func TestMarkReadUpTo(t *testing.T) {
	svc, st := newTestService()
	ctx := context.Background()
	conv := "conv_u1_u2"

	for i := 1; i <= 5; i++ {
		_, err := svc.WriteOne(ctx, "u1", conv, incoming(fmt.Sprintf("m%d", i), "u2"))
		require.NoError(t, err)
	}

	n, err := svc.MarkReadUpTo(ctx, "u1", conv, 3)
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)

	c, err := st.GetCursor(ctx, "u1", conv)
	require.NoError(t, err)
	assert.Equal(t, int64(2), c.UnreadCount)

	n, err = svc.MarkReadUpTo(ctx, "u1", conv, 3)
	require.NoError(t, err)
	assert.Equal(t, int64(0), n)
}

func TestGetUnreadCountAggregates(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()

	for i := 1; i <= 2; i++ {
		_, err := svc.WriteOne(ctx, "u1", "conv_u1_u2", incoming(fmt.Sprintf("a%d", i), "u2"))
		require.NoError(t, err)
	}
	_, err := svc.WriteOne(ctx, "u1", "conv_group_g1", incoming("b1", "u3"))
	require.NoError(t, err)

	uc, err := svc.GetUnreadCount(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, int64(3), uc.Total)
	assert.Equal(t, int64(2), uc.PerConversation["conv_u1_u2"])
	assert.Equal(t, int64(1), uc.PerConversation["conv_group_g1"])

	// 已读后缓存被失效，重新聚合
	require.NoError(t, svc.MarkRead(ctx, "u1", "conv_group_g1", 1))
	uc, err = svc.GetUnreadCount(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, int64(2), uc.Total)
	assert.NotContains(t, uc.PerConversation, "conv_group_g1")
}

func TestPullPagination(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()
	conv := "conv_u1_u2"

	for i := 1; i <= 250; i++ {
		_, err := svc.WriteOne(ctx, "u1", conv, incoming(fmt.Sprintf("m%03d", i), "u2"))
		require.NoError(t, err)
	}

	res, err := svc.Pull(ctx, "u1", conv, 0, 0)
	require.NoError(t, err)
	assert.Len(t, res.Entries, 100)
	assert.True(t, res.HasMore)
	assert.Equal(t, int64(1), res.Entries[0].Seq)
	assert.Equal(t, int64(250), res.MaxSeq)

	res, err = svc.Pull(ctx, "u1", conv, 100, 0)
	require.NoError(t, err)
	assert.Len(t, res.Entries, 100)
	assert.True(t, res.HasMore)
	assert.Equal(t, int64(101), res.Entries[0].Seq)

	res, err = svc.Pull(ctx, "u1", conv, 200, 0)
	require.NoError(t, err)
	assert.Len(t, res.Entries, 50)
	assert.False(t, res.HasMore)
	assert.Equal(t, int64(250), res.Entries[len(res.Entries)-1].Seq)
}

func TestPullAllOffline(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()

	for i := 1; i <= 3; i++ {
		_, err := svc.WriteOne(ctx, "u1", "conv_u1_u2", incoming(fmt.Sprintf("a%d", i), "u2"))
		require.NoError(t, err)
	}
	for i := 1; i <= 2; i++ {
		_, err := svc.WriteOne(ctx, "u1", "conv_group_g1", incoming(fmt.Sprintf("b%d", i), "u3"))
		require.NoError(t, err)
	}

	entries, err := svc.PullAllOffline(ctx, "u1", 0)
	require.NoError(t, err)
	assert.Len(t, entries, 5)

	// 单会话内升序
	var last int64
	for _, e := range entries {
		if e.ConversationID != "conv_u1_u2" {
			continue
		}
		assert.Greater(t, e.Seq, last)
		last = e.Seq
	}

	entries, err = svc.PullAllOffline(ctx, "u1", 2)
	require.NoError(t, err)
	assert.Len(t, entries, 1)
	assert.Equal(t, int64(3), entries[0].Seq)
}

func TestClearConversation(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()
	conv := "conv_u1_u2"

	for i := 1; i <= 3; i++ {
		_, err := svc.WriteOne(ctx, "u1", conv, incoming(fmt.Sprintf("m%d", i), "u2"))
		require.NoError(t, err)
	}

	n, err := svc.ClearConversation(ctx, "u1", conv)
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)

	res, err := svc.Pull(ctx, "u1", conv, 0, 0)
	require.NoError(t, err)
	assert.Empty(t, res.Entries)

	unread, err := svc.GetConversationUnreadCount(ctx, "u1", conv)
	require.NoError(t, err)
	assert.Equal(t, int64(0), unread)
}

func TestClearKeepsSequenceMonotonic(t *testing.T) {
	svc, st := newTestService()
	ctx := context.Background()
	conv := "conv_u1_u2"

	for i := 1; i <= 3; i++ {
		_, err := svc.WriteOne(ctx, "u1", conv, incoming(fmt.Sprintf("m%d", i), "u2"))
		require.NoError(t, err)
	}
	_, err := svc.ClearConversation(ctx, "u1", conv)
	require.NoError(t, err)

	// 清空后继续发号：软删副本仍占据水位，序列不回退
	e, err := svc.WriteOne(ctx, "u1", conv, incoming("m4", "u2"))
	require.NoError(t, err)
	assert.Equal(t, int64(4), e.Seq)

	max, err := st.MaxEntrySeq(ctx, "u1", conv)
	require.NoError(t, err)
	assert.Equal(t, int64(4), max)
}

func TestWriteResumesAboveCursorAfterRetentionPurge(t *testing.T) {
	st := store.NewMemStore()
	cfg := global.DefaultConfig().Mailbox
	counter := seq.NewMemCounter()
	alloc := seq.NewAllocator(counter, st, "mailbox:seq:", time.Hour)
	svc := NewService(st, alloc, NewMemUnreadCache(), &cfg)
	ctx := context.Background()
	conv := "conv_u1_u2"

	for i := 1; i <= 100; i++ {
		_, err := svc.WriteOne(ctx, "u1", conv, incoming(fmt.Sprintf("m%03d", i), "u2"))
		require.NoError(t, err)
	}

	// 长期闲置：计数器 TTL 过期，副本全部被保留期 TTL 清理。游标从不删除，
	// 回填水位由它兜底。
	counter.(interface{ Forget(key string) }).Forget("mailbox:seq:u1:conv_u1_u2")
	st.PurgeEntries("u1", conv)

	e, err := svc.WriteOne(ctx, "u1", conv, incoming("m101", "u2"))
	require.NoError(t, err)
	assert.Equal(t, int64(101), e.Seq, "sequence must resume above the cursor, not restart at 1")

	c, err := st.GetCursor(ctx, "u1", conv)
	require.NoError(t, err)
	assert.Equal(t, int64(101), c.MaxSeq)

	// 旧同步位点之后的新消息照常可拉
	res, err := svc.Pull(ctx, "u1", conv, 100, 0)
	require.NoError(t, err)
	require.Len(t, res.Entries, 1)
	assert.Equal(t, "m101", res.Entries[0].MessageID)

	// 副本再次被清理后做游标修复：水位同样不得回退
	st.PurgeEntries("u1", conv)
	stats, err := svc.Repair(ctx, "u1", conv)
	require.NoError(t, err)
	assert.Equal(t, int64(101), stats.MaxSeq)
}

func TestDeleteMessage(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()
	conv := "conv_u1_u2"

	e, err := svc.WriteOne(ctx, "u1", conv, incoming("m1", "u2"))
	require.NoError(t, err)

	require.NoError(t, svc.DeleteMessage(ctx, "u1", conv, e.Seq))
	unread, err := svc.GetConversationUnreadCount(ctx, "u1", conv)
	require.NoError(t, err)
	assert.Equal(t, int64(0), unread)

	err = svc.DeleteMessage(ctx, "u1", conv, 999)
	require.Error(t, err)
	assert.True(t, errs.IsNotFound(err))
}

func TestRepairRebuildsCursorFromEntries(t *testing.T) {
	svc, st := newTestService()
	ctx := context.Background()
	conv := "conv_u1_u2"

	for i := 1; i <= 4; i++ {
		_, err := svc.WriteOne(ctx, "u1", conv, incoming(fmt.Sprintf("m%d", i), "u2"))
		require.NoError(t, err)
	}
	require.NoError(t, svc.MarkRead(ctx, "u1", conv, 1))

	// 人为制造游标漂移（模拟半程写）
	require.NoError(t, st.SetUnread(ctx, "u1", conv, 99))

	stats, err := svc.Repair(ctx, "u1", conv)
	require.NoError(t, err)
	assert.Equal(t, int64(4), stats.MaxSeq)
	assert.Equal(t, int64(3), stats.UnreadCount)
	assert.Equal(t, "m4", stats.LastMessageID)

	c, err := st.GetCursor(ctx, "u1", conv)
	require.NoError(t, err)
	assert.Equal(t, int64(3), c.UnreadCount)
}

func TestWriteOneRejectsBadArgs(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()

	_, err := svc.WriteOne(ctx, "", "conv", incoming("m1", "u2"))
	assert.True(t, errs.IsArgs(err))
	_, err = svc.WriteOne(ctx, "u1", "", incoming("m1", "u2"))
	assert.True(t, errs.IsArgs(err))
	_, err = svc.WriteOne(ctx, "u1", "conv", nil)
	assert.True(t, errs.IsArgs(err))
	_, err = svc.WriteOne(ctx, "u1", "conv", &Incoming{})
	assert.True(t, errs.IsArgs(err))
}
