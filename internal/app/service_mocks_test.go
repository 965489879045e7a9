package app

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/stagecast-live/stagecast/internal/domain"
)

// --- Mock implementations ---

type mockChannelRepo struct {
	getByOwnerFn func(ctx context.Context, ownerID uuid.UUID) (*domain.Channel, error)
	getByIDFn    func(ctx context.Context, channelID uuid.UUID) (*domain.Channel, error)
	upsertFn     func(ctx context.Context, ownerID uuid.UUID, description, streamSecret string) (*domain.Channel, error)
	setEnabledFn func(ctx context.Context, ownerID uuid.UUID, enabled bool) (*domain.Channel, error)
}

func (m *mockChannelRepo) GetByOwner(ctx context.Context, ownerID uuid.UUID) (*domain.Channel, error) {
	if m.getByOwnerFn != nil {
		return m.getByOwnerFn(ctx, ownerID)
	}
	return nil, fmt.Errorf("not implemented")
}

func (m *mockChannelRepo) GetByID(ctx context.Context, channelID uuid.UUID) (*domain.Channel, error) {
	if m.getByIDFn != nil {
		return m.getByIDFn(ctx, channelID)
	}
	return nil, fmt.Errorf("not implemented")
}

func (m *mockChannelRepo) Upsert(ctx context.Context, ownerID uuid.UUID, description, streamSecret string) (*domain.Channel, error) {
	if m.upsertFn != nil {
		return m.upsertFn(ctx, ownerID, description, streamSecret)
	}
	return nil, fmt.Errorf("not implemented")
}

func (m *mockChannelRepo) SetEnabled(ctx context.Context, ownerID uuid.UUID, enabled bool) (*domain.Channel, error) {
	if m.setEnabledFn != nil {
		return m.setEnabledFn(ctx, ownerID, enabled)
	}
	return nil, fmt.Errorf("not implemented")
}

type mockSessionRepo struct {
	insertLiveFn        func(ctx context.Context, channelID uuid.UUID, title, roomName string, startedAt time.Time) (*domain.Session, error)
	getLiveByChannelFn  func(ctx context.Context, channelID uuid.UUID) (*domain.Session, error)
	getLiveByRoomNameFn func(ctx context.Context, roomName string) (*domain.Session, error)
	endLiveFn           func(ctx context.Context, channelID uuid.UUID, endedAt time.Time) (*domain.Session, error)
	updateViewerCountFn func(ctx context.Context, sessionID uuid.UUID, count int) error
	listLiveFn          func(ctx context.Context) ([]domain.Session, error)
}

func (m *mockSessionRepo) InsertLive(ctx context.Context, channelID uuid.UUID, title, roomName string, startedAt time.Time) (*domain.Session, error) {
	if m.insertLiveFn != nil {
		return m.insertLiveFn(ctx, channelID, title, roomName, startedAt)
	}
	return nil, fmt.Errorf("not implemented")
}

func (m *mockSessionRepo) GetLiveByChannel(ctx context.Context, channelID uuid.UUID) (*domain.Session, error) {
	if m.getLiveByChannelFn != nil {
		return m.getLiveByChannelFn(ctx, channelID)
	}
	return nil, domain.ErrNoActiveSession
}

func (m *mockSessionRepo) GetLiveByRoomName(ctx context.Context, roomName string) (*domain.Session, error) {
	if m.getLiveByRoomNameFn != nil {
		return m.getLiveByRoomNameFn(ctx, roomName)
	}
	return nil, domain.ErrRoomNotFound
}

func (m *mockSessionRepo) EndLive(ctx context.Context, channelID uuid.UUID, endedAt time.Time) (*domain.Session, error) {
	if m.endLiveFn != nil {
		return m.endLiveFn(ctx, channelID, endedAt)
	}
	return nil, fmt.Errorf("not implemented")
}

func (m *mockSessionRepo) UpdateViewerCount(ctx context.Context, sessionID uuid.UUID, count int) error {
	if m.updateViewerCountFn != nil {
		return m.updateViewerCountFn(ctx, sessionID, count)
	}
	return nil
}

func (m *mockSessionRepo) ListLive(ctx context.Context) ([]domain.Session, error) {
	if m.listLiveFn != nil {
		return m.listLiveFn(ctx)
	}
	return nil, nil
}

type mockFollowRepo struct {
	toggleFn          func(ctx context.Context, followerID, channelID uuid.UUID) (bool, error)
	listChannelsFn    func(ctx context.Context, followerID uuid.UUID) ([]domain.Channel, error)
	countForChannelFn func(ctx context.Context, channelID uuid.UUID) (int, error)
}

func (m *mockFollowRepo) Toggle(ctx context.Context, followerID, channelID uuid.UUID) (bool, error) {
	if m.toggleFn != nil {
		return m.toggleFn(ctx, followerID, channelID)
	}
	return false, fmt.Errorf("not implemented")
}

func (m *mockFollowRepo) ListChannels(ctx context.Context, followerID uuid.UUID) ([]domain.Channel, error) {
	if m.listChannelsFn != nil {
		return m.listChannelsFn(ctx, followerID)
	}
	return nil, nil
}

func (m *mockFollowRepo) CountForChannel(ctx context.Context, channelID uuid.UUID) (int, error) {
	if m.countForChannelFn != nil {
		return m.countForChannelFn(ctx, channelID)
	}
	return 0, nil
}

// mockProvider records every call so tests can assert on the exact
// create/delete sequence.
type mockProvider struct {
	mu          sync.Mutex
	createCalls []string
	deleteCalls []string
	mintCalls   []mintCall

	createFn func(ctx context.Context, name string) error
	deleteFn func(ctx context.Context, name string) error
	mintFn   func(ctx context.Context, room string, identity uuid.UUID, role domain.Role, ttl time.Duration) (string, error)
	endpoint string
}

type mintCall struct {
	room     string
	identity uuid.UUID
	role     domain.Role
	ttl      time.Duration
}

func (m *mockProvider) CreateRoom(ctx context.Context, name string) error {
	m.mu.Lock()
	m.createCalls = append(m.createCalls, name)
	m.mu.Unlock()
	if m.createFn != nil {
		return m.createFn(ctx, name)
	}
	return nil
}

func (m *mockProvider) DeleteRoom(ctx context.Context, name string) error {
	m.mu.Lock()
	m.deleteCalls = append(m.deleteCalls, name)
	m.mu.Unlock()
	if m.deleteFn != nil {
		return m.deleteFn(ctx, name)
	}
	return nil
}

func (m *mockProvider) MintToken(ctx context.Context, room string, identity uuid.UUID, role domain.Role, ttl time.Duration) (string, error) {
	m.mu.Lock()
	m.mintCalls = append(m.mintCalls, mintCall{room: room, identity: identity, role: role, ttl: ttl})
	m.mu.Unlock()
	if m.mintFn != nil {
		return m.mintFn(ctx, room, identity, role, ttl)
	}
	return "token-" + string(role), nil
}

func (m *mockProvider) Endpoint() string {
	if m.endpoint != "" {
		return m.endpoint
	}
	return "wss://rooms.example.com"
}

type mockLedger struct {
	mu       sync.Mutex
	recorded []string

	recordFn func(ctx context.Context, roomName string) error
	listFn   func(ctx context.Context) ([]string, error)
	removeFn func(ctx context.Context, roomName string) error
	removed  []string
}

func (m *mockLedger) Record(ctx context.Context, roomName string) error {
	m.mu.Lock()
	m.recorded = append(m.recorded, roomName)
	m.mu.Unlock()
	if m.recordFn != nil {
		return m.recordFn(ctx, roomName)
	}
	return nil
}

func (m *mockLedger) List(ctx context.Context) ([]string, error) {
	if m.listFn != nil {
		return m.listFn(ctx)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.recorded...), nil
}

func (m *mockLedger) Remove(ctx context.Context, roomName string) error {
	m.mu.Lock()
	m.removed = append(m.removed, roomName)
	m.mu.Unlock()
	if m.removeFn != nil {
		return m.removeFn(ctx, roomName)
	}
	return nil
}

type mockViewerCache struct {
	mu     sync.Mutex
	counts map[uuid.UUID]int

	setFn    func(ctx context.Context, sessionID uuid.UUID, count int) error
	getFn    func(ctx context.Context, sessionID uuid.UUID) (int, bool, error)
	deleteFn func(ctx context.Context, sessionID uuid.UUID) error
}

func (m *mockViewerCache) Set(ctx context.Context, sessionID uuid.UUID, count int) error {
	if m.setFn != nil {
		return m.setFn(ctx, sessionID, count)
	}
	m.mu.Lock()
	if m.counts == nil {
		m.counts = make(map[uuid.UUID]int)
	}
	m.counts[sessionID] = count
	m.mu.Unlock()
	return nil
}

func (m *mockViewerCache) Get(ctx context.Context, sessionID uuid.UUID) (int, bool, error) {
	if m.getFn != nil {
		return m.getFn(ctx, sessionID)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	count, ok := m.counts[sessionID]
	return count, ok, nil
}

func (m *mockViewerCache) Delete(ctx context.Context, sessionID uuid.UUID) error {
	if m.deleteFn != nil {
		return m.deleteFn(ctx, sessionID)
	}
	m.mu.Lock()
	delete(m.counts, sessionID)
	m.mu.Unlock()
	return nil
}

type mockPublisher struct {
	mu     sync.Mutex
	events []domain.SessionEvent

	publishFn func(ctx context.Context, event domain.SessionEvent) error
}

func (m *mockPublisher) PublishSessionEvent(ctx context.Context, event domain.SessionEvent) error {
	m.mu.Lock()
	m.events = append(m.events, event)
	m.mu.Unlock()
	if m.publishFn != nil {
		return m.publishFn(ctx, event)
	}
	return nil
}

// fakeSessionStore is a stateful, mutex-guarded SessionRepository that
// enforces the one-live-session invariant the way the real store's partial
// unique index does. Used by the concurrency and scenario tests.
type fakeSessionStore struct {
	mu       sync.Mutex
	sessions []*domain.Session
}

func (f *fakeSessionStore) InsertLive(_ context.Context, channelID uuid.UUID, title, roomName string, startedAt time.Time) (*domain.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, s := range f.sessions {
		if s.ChannelID == channelID && s.IsLive {
			return nil, domain.ErrAlreadyLive
		}
	}
	session := &domain.Session{
		ID:        uuid.New(),
		ChannelID: channelID,
		Title:     title,
		RoomName:  roomName,
		IsLive:    true,
		StartedAt: startedAt,
	}
	f.sessions = append(f.sessions, session)
	copied := *session
	return &copied, nil
}

func (f *fakeSessionStore) GetLiveByChannel(_ context.Context, channelID uuid.UUID) (*domain.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, s := range f.sessions {
		if s.ChannelID == channelID && s.IsLive {
			copied := *s
			return &copied, nil
		}
	}
	return nil, domain.ErrNoActiveSession
}

func (f *fakeSessionStore) GetLiveByRoomName(_ context.Context, roomName string) (*domain.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, s := range f.sessions {
		if s.RoomName == roomName && s.IsLive {
			copied := *s
			return &copied, nil
		}
	}
	return nil, domain.ErrRoomNotFound
}

func (f *fakeSessionStore) EndLive(_ context.Context, channelID uuid.UUID, endedAt time.Time) (*domain.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, s := range f.sessions {
		if s.ChannelID == channelID && s.IsLive {
			s.IsLive = false
			ended := endedAt
			s.EndedAt = &ended
			copied := *s
			return &copied, nil
		}
	}
	return nil, domain.ErrNoActiveSession
}

func (f *fakeSessionStore) UpdateViewerCount(_ context.Context, sessionID uuid.UUID, count int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, s := range f.sessions {
		if s.ID == sessionID {
			s.ViewerCount = count
			return nil
		}
	}
	return fmt.Errorf("session %s not found", sessionID)
}

func (f *fakeSessionStore) ListLive(_ context.Context) ([]domain.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var live []domain.Session
	for _, s := range f.sessions {
		if s.IsLive {
			live = append(live, *s)
		}
	}
	return live, nil
}

func (f *fakeSessionStore) liveCount(channelID uuid.UUID) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	count := 0
	for _, s := range f.sessions {
		if s.ChannelID == channelID && s.IsLive {
			count++
		}
	}
	return count
}
