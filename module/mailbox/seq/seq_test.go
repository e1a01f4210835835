package seq

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// floorStub 模拟持久层序列水位
type floorStub struct {
	mu  sync.Mutex
	max map[string]int64
	err error
}

func newFloorStub() *floorStub { return &floorStub{max: make(map[string]int64)} }

func (f *floorStub) set(owner, conv string, v int64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.max[owner+":"+conv] = v
}

func (f *floorStub) MaxDurableSeq(_ context.Context, owner, conv string) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return 0, f.err
	}
	return f.max[owner+":"+conv], nil
}

func newTestAllocator(floor FloorSource) (*Allocator, *memCounter) {
	c := NewMemCounter().(*memCounter)
	return NewAllocator(c, floor, "mailbox:seq:", time.Hour), c
}

func TestAllocateStartsAtOneAndIsContiguous(t *testing.T) {
	a, _ := newTestAllocator(newFloorStub())
	ctx := context.Background()

	for want := int64(1); want <= 10; want++ {
		got, err := a.Allocate(ctx, "u1", "conv_u1_u2")
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
}

func TestAllocateIsolatedPerOwnerAndConversation(t *testing.T) {
	a, _ := newTestAllocator(newFloorStub())
	ctx := context.Background()

	s1, err := a.Allocate(ctx, "u1", "conv_u1_u2")
	require.NoError(t, err)
	s2, err := a.Allocate(ctx, "u2", "conv_u1_u2")
	require.NoError(t, err)
	s3, err := a.Allocate(ctx, "u1", "conv_group_g1")
	require.NoError(t, err)

	assert.Equal(t, int64(1), s1)
	assert.Equal(t, int64(1), s2)
	assert.Equal(t, int64(1), s3)
}

func TestConcurrentAllocateNoDuplicates(t *testing.T) {
	a, _ := newTestAllocator(newFloorStub())
	ctx := context.Background()

	const n = 200
	out := make(chan int64, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s, err := a.Allocate(ctx, "u1", "conv_u1_u2")
			assert.NoError(t, err)
			out <- s
		}()
	}
	wg.Wait()
	close(out)

	seen := make(map[int64]bool, n)
	var max int64
	for s := range out {
		assert.False(t, seen[s], "duplicate seq %d", s)
		seen[s] = true
		if s > max {
			max = s
		}
	}
	assert.Equal(t, int64(n), max, "no gaps expected")
}

func TestAllocateReseedsAfterCounterLoss(t *testing.T) {
	floor := newFloorStub()
	a, c := newTestAllocator(floor)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		_, err := a.Allocate(ctx, "u1", "conv_u1_u2")
		require.NoError(t, err)
	}
	// 模拟 TTL 过期：计数器丢失，但持久层水位还在
	floor.set("u1", "conv_u1_u2", 5)
	c.Forget("mailbox:seq:u1:conv_u1_u2")

	got, err := a.Allocate(ctx, "u1", "conv_u1_u2")
	require.NoError(t, err)
	assert.Equal(t, int64(6), got, "must continue past durable floor, not restart at 1")
}

// expireSpy 记录 Expire 调用的计数器包装
type expireSpy struct {
	Counter
	mu      sync.Mutex
	expired []string
}

func (s *expireSpy) Expire(ctx context.Context, key string, ttl time.Duration) error {
	s.mu.Lock()
	s.expired = append(s.expired, key)
	s.mu.Unlock()
	return s.Counter.Expire(ctx, key, ttl)
}

func TestReseededCounterGetsTTLArmed(t *testing.T) {
	floor := newFloorStub()
	mem := NewMemCounter().(*memCounter)
	spy := &expireSpy{Counter: mem}
	a := NewAllocator(spy, floor, "mailbox:seq:", time.Hour)
	ctx := context.Background()
	key := "mailbox:seq:u1:conv_u1_u2"

	_, err := a.Allocate(ctx, "u1", "conv_u1_u2")
	require.NoError(t, err)
	assert.Equal(t, []string{key}, spy.expired, "first allocation arms the TTL")

	floor.set("u1", "conv_u1_u2", 1)
	mem.Forget(key)

	got, err := a.Allocate(ctx, "u1", "conv_u1_u2")
	require.NoError(t, err)
	assert.Equal(t, int64(2), got)
	// 回填重建的 key 不是首号，也必须重新布防过期
	assert.Equal(t, []string{key, key}, spy.expired)
}

func TestAllocateFloorErrorSurfacesAsTransient(t *testing.T) {
	floor := newFloorStub()
	floor.err = assert.AnError
	a, _ := newTestAllocator(floor)

	_, err := a.Allocate(context.Background(), "u1", "conv_u1_u2")
	require.Error(t, err)
}

func TestBatchAllocateIndependentOwners(t *testing.T) {
	a, _ := newTestAllocator(newFloorStub())
	ctx := context.Background()

	owners := []string{"u1", "u2", "u3"}
	seqs, fails := a.BatchAllocate(ctx, owners, "conv_group_g1")
	require.Empty(t, fails)
	for _, owner := range owners {
		assert.Equal(t, int64(1), seqs[owner])
	}

	seqs, fails = a.BatchAllocate(ctx, owners, "conv_group_g1")
	require.Empty(t, fails)
	for _, owner := range owners {
		assert.Equal(t, int64(2), seqs[owner])
	}
}

func TestPeekDoesNotAdvance(t *testing.T) {
	a, _ := newTestAllocator(newFloorStub())
	ctx := context.Background()

	v, err := a.Peek(ctx, "u1", "conv_u1_u2")
	require.NoError(t, err)
	assert.Equal(t, int64(0), v)

	_, err = a.Allocate(ctx, "u1", "conv_u1_u2")
	require.NoError(t, err)

	v, err = a.Peek(ctx, "u1", "conv_u1_u2")
	require.NoError(t, err)
	assert.Equal(t, int64(1), v)

	v, err = a.Peek(ctx, "u1", "conv_u1_u2")
	require.NoError(t, err)
	assert.Equal(t, int64(1), v)
}

func TestAllocateRejectsEmptyArgs(t *testing.T) {
	a, _ := newTestAllocator(newFloorStub())
	_, err := a.Allocate(context.Background(), "", "conv")
	require.Error(t, err)
	_, err = a.Allocate(context.Background(), "u1", "")
	require.Error(t, err)
}
