package message

import (
	"context"
	"sync"

	errs "FleetsIM/tools/errs"
)

// 内存实现，仅测试用。

type memCanonicalStore struct {
	mu   sync.Mutex
	rows map[string]*Message
}

func NewMemCanonicalStore() *memCanonicalStore {
	return &memCanonicalStore{rows: make(map[string]*Message)}
}

func (m *memCanonicalStore) Save(_ context.Context, msg *Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *msg
	m.rows[msg.ID] = &cp
	return nil
}

func (m *memCanonicalStore) Get(_ context.Context, id string) (*Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	row, ok := m.rows[id]
	if !ok {
		return nil, errs.ErrRecordNotFound.WrapMsg("message", "id", id)
	}
	cp := *row
	return &cp, nil
}

type memGroupResolver struct {
	mu      sync.Mutex
	members map[string][]string
	err     error
}

func NewMemGroupResolver() *memGroupResolver {
	return &memGroupResolver{members: make(map[string][]string)}
}

func (m *memGroupResolver) SetMembers(groupID string, ids []string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.members[groupID] = ids
}

// FailWith 注入解析失败，测试"群成员不可得"分支
func (m *memGroupResolver) FailWith(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
}

func (m *memGroupResolver) GetMemberIDs(_ context.Context, groupID string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	return append([]string(nil), m.members[groupID]...), nil
}

type PublishedEvent struct {
	Topic   string
	Key     string
	Payload []byte
}

type memPublisher struct {
	mu     sync.Mutex
	events []PublishedEvent
	err    error
}

func NewMemPublisher() *memPublisher {
	return &memPublisher{}
}

func (m *memPublisher) FailWith(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
}

func (m *memPublisher) Publish(_ context.Context, topic, key string, payload []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.events = append(m.events, PublishedEvent{Topic: topic, Key: key, Payload: append([]byte(nil), payload...)})
	return nil
}

func (m *memPublisher) Events() []PublishedEvent {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]PublishedEvent(nil), m.events...)
}

type memReportSink struct {
	mu      sync.Mutex
	reports []*FanoutReport
}

func NewMemReportSink() *memReportSink {
	return &memReportSink{}
}

func (m *memReportSink) Report(_ context.Context, r *FanoutReport) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.reports = append(m.reports, r)
}

func (m *memReportSink) Reports() []*FanoutReport {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*FanoutReport(nil), m.reports...)
}
