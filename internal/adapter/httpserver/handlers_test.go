package httpserver

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stagecast-live/stagecast/internal/domain"
	"github.com/stagecast-live/stagecast/internal/platform/config"
)

// mockApp is the handler-level test double for the application service.
type mockApp struct {
	configureChannelFn     func(ctx context.Context, ownerID uuid.UUID, description, suppliedSecret string) (*domain.Channel, error)
	getChannelStatusFn     func(ctx context.Context, ownerID uuid.UUID) (*domain.ChannelStatus, error)
	toggleChannelActiveFn  func(ctx context.Context, ownerID uuid.UUID, desired bool) (*domain.Channel, error)
	startSessionFn         func(ctx context.Context, ownerID uuid.UUID, title string) (*domain.Session, error)
	endSessionFn           func(ctx context.Context, ownerID uuid.UUID) (*domain.Session, error)
	issueTokenFn           func(ctx context.Context, requesterID uuid.UUID, roomName string, requestedRole domain.Role) (*domain.AccessGrant, error)
	toggleFollowFn         func(ctx context.Context, followerID, channelID uuid.UUID) (bool, error)
	listFollowedChannelsFn func(ctx context.Context, followerID uuid.UUID) ([]domain.Channel, error)
	recordRoomStatsFn      func(ctx context.Context, roomName string, participants int) error
	handleRoomFinishedFn   func(ctx context.Context, roomName string)
}

func (m *mockApp) ConfigureChannel(ctx context.Context, ownerID uuid.UUID, description, suppliedSecret string) (*domain.Channel, error) {
	if m.configureChannelFn != nil {
		return m.configureChannelFn(ctx, ownerID, description, suppliedSecret)
	}
	return nil, fmt.Errorf("not implemented")
}

func (m *mockApp) GetChannelStatus(ctx context.Context, ownerID uuid.UUID) (*domain.ChannelStatus, error) {
	if m.getChannelStatusFn != nil {
		return m.getChannelStatusFn(ctx, ownerID)
	}
	return nil, fmt.Errorf("not implemented")
}

func (m *mockApp) ToggleChannelActive(ctx context.Context, ownerID uuid.UUID, desired bool) (*domain.Channel, error) {
	if m.toggleChannelActiveFn != nil {
		return m.toggleChannelActiveFn(ctx, ownerID, desired)
	}
	return nil, fmt.Errorf("not implemented")
}

func (m *mockApp) StartSession(ctx context.Context, ownerID uuid.UUID, title string) (*domain.Session, error) {
	if m.startSessionFn != nil {
		return m.startSessionFn(ctx, ownerID, title)
	}
	return nil, fmt.Errorf("not implemented")
}

func (m *mockApp) EndSession(ctx context.Context, ownerID uuid.UUID) (*domain.Session, error) {
	if m.endSessionFn != nil {
		return m.endSessionFn(ctx, ownerID)
	}
	return nil, fmt.Errorf("not implemented")
}

func (m *mockApp) IssueToken(ctx context.Context, requesterID uuid.UUID, roomName string, requestedRole domain.Role) (*domain.AccessGrant, error) {
	if m.issueTokenFn != nil {
		return m.issueTokenFn(ctx, requesterID, roomName, requestedRole)
	}
	return nil, fmt.Errorf("not implemented")
}

func (m *mockApp) ToggleFollow(ctx context.Context, followerID, channelID uuid.UUID) (bool, error) {
	if m.toggleFollowFn != nil {
		return m.toggleFollowFn(ctx, followerID, channelID)
	}
	return false, fmt.Errorf("not implemented")
}

func (m *mockApp) ListFollowedChannels(ctx context.Context, followerID uuid.UUID) ([]domain.Channel, error) {
	if m.listFollowedChannelsFn != nil {
		return m.listFollowedChannelsFn(ctx, followerID)
	}
	return nil, nil
}

func (m *mockApp) RecordRoomStats(ctx context.Context, roomName string, participants int) error {
	if m.recordRoomStatsFn != nil {
		return m.recordRoomStatsFn(ctx, roomName, participants)
	}
	return nil
}

func (m *mockApp) HandleRoomFinished(ctx context.Context, roomName string) {
	if m.handleRoomFinishedFn != nil {
		m.handleRoomFinishedFn(ctx, roomName)
	}
}

const testWebhookSecret = "webhook-secret-for-tests"

func newTestServer(app *mockApp) *Server {
	cfg := &config.Config{
		AppEnv:             "test",
		Port:               "0",
		SessionSecret:      "test-session-secret",
		WebhookSecret:      testWebhookSecret,
		TokenTTL:           10 * time.Minute,
		TokenRatePerSecond: 1000,
		TokenRateBurst:     1000,
	}
	return NewServer(cfg, app, nil)
}

// authCookie obtains a signed identity cookie through the dev session
// endpoint, the same path a developer uses locally.
func authCookie(t *testing.T, srv *Server, identity uuid.UUID) *http.Cookie {
	t.Helper()

	body := fmt.Sprintf(`{"identity":%q}`, identity.String())
	req := httptest.NewRequest(http.MethodPost, "/auth/dev-session", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	srv.echo.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	for _, cookie := range rec.Result().Cookies() {
		if cookie.Name == sessionName {
			return cookie
		}
	}
	t.Fatal("dev session did not set an identity cookie")
	return nil
}

func doJSON(srv *Server, method, path, body string, cookie *http.Cookie) *httptest.ResponseRecorder {
	var reader *strings.Reader
	if body == "" {
		reader = strings.NewReader("")
	} else {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if cookie != nil {
		req.AddCookie(cookie)
	}
	rec := httptest.NewRecorder()
	srv.echo.ServeHTTP(rec, req)
	return rec
}

func TestAPI_RequiresAuthCookie(t *testing.T) {
	srv := newTestServer(&mockApp{})

	paths := []struct {
		method, path string
	}{
		{http.MethodPut, "/api/channel"},
		{http.MethodGet, "/api/channel"},
		{http.MethodPost, "/api/sessions"},
		{http.MethodDelete, "/api/sessions/current"},
		{http.MethodPost, "/api/rooms/room-1/token"},
		{http.MethodPost, "/api/follows/" + uuid.NewString()},
		{http.MethodGet, "/api/follows"},
	}

	for _, p := range paths {
		rec := doJSON(srv, p.method, p.path, "{}", nil)
		assert.Equal(t, http.StatusUnauthorized, rec.Code, "%s %s", p.method, p.path)
	}
}

func TestConfigureChannel_ReturnsFullSecretOnce(t *testing.T) {
	identity := uuid.New()
	app := &mockApp{
		configureChannelFn: func(_ context.Context, ownerID uuid.UUID, description, suppliedSecret string) (*domain.Channel, error) {
			require.Equal(t, identity, ownerID)
			require.Equal(t, "my stream", description)
			require.Empty(t, suppliedSecret)
			return &domain.Channel{
				ID:           uuid.New(),
				OwnerID:      ownerID,
				Description:  description,
				Enabled:      true,
				StreamSecret: "full-secret-value",
			}, nil
		},
	}
	srv := newTestServer(app)
	cookie := authCookie(t, srv, identity)

	rec := doJSON(srv, http.MethodPut, "/api/channel", `{"description":"my stream"}`, cookie)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "full-secret-value", resp["stream_secret"])
}

func TestConfigureChannel_RejectsOversizedDescription(t *testing.T) {
	srv := newTestServer(&mockApp{})
	cookie := authCookie(t, srv, uuid.New())

	body := fmt.Sprintf(`{"description":%q}`, strings.Repeat("x", 501))
	rec := doJSON(srv, http.MethodPut, "/api/channel", body, cookie)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGetChannel_MasksSecret(t *testing.T) {
	identity := uuid.New()
	app := &mockApp{
		getChannelStatusFn: func(_ context.Context, _ uuid.UUID) (*domain.ChannelStatus, error) {
			return &domain.ChannelStatus{
				Channel: &domain.Channel{
					ID:           uuid.New(),
					OwnerID:      identity,
					Enabled:      true,
					StreamSecret: "full-secret-value",
				},
				FollowerCount: 3,
			}, nil
		},
	}
	srv := newTestServer(app)
	cookie := authCookie(t, srv, identity)

	rec := doJSON(srv, http.MethodGet, "/api/channel", "", cookie)
	require.Equal(t, http.StatusOK, rec.Code)

	body := rec.Body.String()
	assert.NotContains(t, body, "full-secret-value")
	assert.Contains(t, body, `"follower_count":3`)
}

func TestGetChannel_NotFound(t *testing.T) {
	app := &mockApp{
		getChannelStatusFn: func(_ context.Context, _ uuid.UUID) (*domain.ChannelStatus, error) {
			return nil, domain.ErrChannelNotFound
		},
	}
	srv := newTestServer(app)
	cookie := authCookie(t, srv, uuid.New())

	rec := doJSON(srv, http.MethodGet, "/api/channel", "", cookie)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestToggleChannelActive_RequiresActiveField(t *testing.T) {
	srv := newTestServer(&mockApp{})
	cookie := authCookie(t, srv, uuid.New())

	rec := doJSON(srv, http.MethodPost, "/api/channel/active", `{}`, cookie)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestToggleChannelActive_Disable(t *testing.T) {
	identity := uuid.New()
	app := &mockApp{
		toggleChannelActiveFn: func(_ context.Context, ownerID uuid.UUID, desired bool) (*domain.Channel, error) {
			require.Equal(t, identity, ownerID)
			require.False(t, desired)
			return &domain.Channel{ID: uuid.New(), OwnerID: ownerID, Enabled: false, StreamSecret: "s"}, nil
		},
	}
	srv := newTestServer(app)
	cookie := authCookie(t, srv, identity)

	rec := doJSON(srv, http.MethodPost, "/api/channel/active", `{"active":false}`, cookie)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"enabled":false`)
}

func TestStartSession_Created(t *testing.T) {
	identity := uuid.New()
	app := &mockApp{
		startSessionFn: func(_ context.Context, ownerID uuid.UUID, title string) (*domain.Session, error) {
			require.Equal(t, "first stream", title)
			return &domain.Session{
				ID:        uuid.New(),
				ChannelID: uuid.New(),
				Title:     title,
				RoomName:  "room-abc-123",
				IsLive:    true,
			}, nil
		},
	}
	srv := newTestServer(app)
	cookie := authCookie(t, srv, identity)

	rec := doJSON(srv, http.MethodPost, "/api/sessions", `{"title":"first stream"}`, cookie)
	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Contains(t, rec.Body.String(), `"room_name":"room-abc-123"`)
}

func TestStartSession_ConflictStatuses(t *testing.T) {
	tests := []struct {
		name string
		err  error
		code int
	}{
		{"already live", domain.ErrAlreadyLive, http.StatusConflict},
		{"channel disabled", domain.ErrChannelDisabled, http.StatusConflict},
		{"channel not found", domain.ErrChannelNotFound, http.StatusNotFound},
		{"provider down", fmt.Errorf("%w: create room: boom", domain.ErrRoomProvider), http.StatusBadGateway},
		{"orphaned room", fmt.Errorf("%w: room-x", domain.ErrOrphanedRoom), http.StatusBadGateway},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			app := &mockApp{
				startSessionFn: func(_ context.Context, _ uuid.UUID, _ string) (*domain.Session, error) {
					return nil, tt.err
				},
			}
			srv := newTestServer(app)
			cookie := authCookie(t, srv, uuid.New())

			rec := doJSON(srv, http.MethodPost, "/api/sessions", `{}`, cookie)
			assert.Equal(t, tt.code, rec.Code)
		})
	}
}

func TestStartSession_OrphanedRoomHasDistinctErrorType(t *testing.T) {
	app := &mockApp{
		startSessionFn: func(_ context.Context, _ uuid.UUID, _ string) (*domain.Session, error) {
			return nil, fmt.Errorf("%w: room-x", domain.ErrOrphanedRoom)
		},
	}
	srv := newTestServer(app)
	cookie := authCookie(t, srv, uuid.New())

	rec := doJSON(srv, http.MethodPost, "/api/sessions", `{}`, cookie)
	require.Equal(t, http.StatusBadGateway, rec.Code)
	assert.Contains(t, rec.Body.String(), "orphaned_resource")
}

func TestEndSession_NoActiveSessionIsConflict(t *testing.T) {
	app := &mockApp{
		endSessionFn: func(_ context.Context, _ uuid.UUID) (*domain.Session, error) {
			return nil, domain.ErrNoActiveSession
		},
	}
	srv := newTestServer(app)
	cookie := authCookie(t, srv, uuid.New())

	rec := doJSON(srv, http.MethodDelete, "/api/sessions/current", "", cookie)
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestIssueToken_UnknownRoleRequestsViewer(t *testing.T) {
	identity := uuid.New()
	var gotRole domain.Role
	app := &mockApp{
		issueTokenFn: func(_ context.Context, requesterID uuid.UUID, roomName string, requestedRole domain.Role) (*domain.AccessGrant, error) {
			require.Equal(t, identity, requesterID)
			require.Equal(t, "room-1", roomName)
			gotRole = requestedRole
			return &domain.AccessGrant{
				Token:     "signed-token",
				Endpoint:  "wss://rooms.example.com",
				Role:      domain.RoleViewer,
				ExpiresAt: time.Now().Add(10 * time.Minute),
			}, nil
		},
	}
	srv := newTestServer(app)
	cookie := authCookie(t, srv, identity)

	rec := doJSON(srv, http.MethodPost, "/api/rooms/room-1/token", `{"role":"superadmin"}`, cookie)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, domain.RoleViewer, gotRole, "unrecognized role strings request viewer")
	assert.Contains(t, rec.Body.String(), `"token":"signed-token"`)
	assert.Contains(t, rec.Body.String(), `"endpoint":"wss://rooms.example.com"`)
}

func TestIssueToken_StaleRoomIs404(t *testing.T) {
	app := &mockApp{
		issueTokenFn: func(_ context.Context, _ uuid.UUID, _ string, _ domain.Role) (*domain.AccessGrant, error) {
			return nil, domain.ErrRoomNotFound
		},
	}
	srv := newTestServer(app)
	cookie := authCookie(t, srv, uuid.New())

	rec := doJSON(srv, http.MethodPost, "/api/rooms/room-old/token", `{"role":"viewer"}`, cookie)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestToggleFollow_InvalidChannelID(t *testing.T) {
	srv := newTestServer(&mockApp{})
	cookie := authCookie(t, srv, uuid.New())

	rec := doJSON(srv, http.MethodPost, "/api/follows/not-a-uuid", "", cookie)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestToggleFollow_ReturnsFollowState(t *testing.T) {
	channelID := uuid.New()
	app := &mockApp{
		toggleFollowFn: func(_ context.Context, _, id uuid.UUID) (bool, error) {
			require.Equal(t, channelID, id)
			return true, nil
		},
	}
	srv := newTestServer(app)
	cookie := authCookie(t, srv, uuid.New())

	rec := doJSON(srv, http.MethodPost, "/api/follows/"+channelID.String(), "", cookie)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"following":true}`, rec.Body.String())
}

func TestListFollows_NeverLeaksSecrets(t *testing.T) {
	app := &mockApp{
		listFollowedChannelsFn: func(_ context.Context, _ uuid.UUID) ([]domain.Channel, error) {
			return []domain.Channel{
				{ID: uuid.New(), Description: "other channel", Enabled: true, StreamSecret: "someone-elses-secret"},
			}, nil
		},
	}
	srv := newTestServer(app)
	cookie := authCookie(t, srv, uuid.New())

	rec := doJSON(srv, http.MethodGet, "/api/follows", "", cookie)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.NotContains(t, rec.Body.String(), "secret")
	assert.Contains(t, rec.Body.String(), "other channel")
}

func signWebhookBody(body string) string {
	mac := hmac.New(sha256.New, []byte(testWebhookSecret))
	mac.Write([]byte(body))
	return hex.EncodeToString(mac.Sum(nil))
}

func TestWebhook_ValidSignatureUpdatesStats(t *testing.T) {
	var gotRoom string
	var gotCount int
	app := &mockApp{
		recordRoomStatsFn: func(_ context.Context, roomName string, participants int) error {
			gotRoom = roomName
			gotCount = participants
			return nil
		},
	}
	srv := newTestServer(app)

	body := `{"event":"participant_joined","room":"room-1","participants":5}`
	req := httptest.NewRequest(http.MethodPost, "/webhooks/room-events", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(signatureHeader, signWebhookBody(body))
	rec := httptest.NewRecorder()
	srv.echo.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "room-1", gotRoom)
	assert.Equal(t, 5, gotCount)
}

func TestWebhook_BadSignatureRejected(t *testing.T) {
	called := false
	app := &mockApp{
		recordRoomStatsFn: func(_ context.Context, _ string, _ int) error {
			called = true
			return nil
		},
	}
	srv := newTestServer(app)

	body := `{"event":"participant_joined","room":"room-1","participants":5}`
	req := httptest.NewRequest(http.MethodPost, "/webhooks/room-events", strings.NewReader(body))
	req.Header.Set(signatureHeader, "deadbeef")
	rec := httptest.NewRecorder()
	srv.echo.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.False(t, called)
}

func TestWebhook_MissingSignatureRejected(t *testing.T) {
	srv := newTestServer(&mockApp{})

	body := `{"event":"participant_joined","room":"room-1"}`
	req := httptest.NewRequest(http.MethodPost, "/webhooks/room-events", strings.NewReader(body))
	rec := httptest.NewRecorder()
	srv.echo.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestWebhook_LateStatsForEndedRoomDropped(t *testing.T) {
	app := &mockApp{
		recordRoomStatsFn: func(_ context.Context, _ string, _ int) error {
			return domain.ErrRoomNotFound
		},
	}
	srv := newTestServer(app)

	body := `{"event":"participant_left","room":"room-ended","participants":0}`
	req := httptest.NewRequest(http.MethodPost, "/webhooks/room-events", strings.NewReader(body))
	req.Header.Set(signatureHeader, signWebhookBody(body))
	rec := httptest.NewRecorder()
	srv.echo.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code, "late callbacks are acknowledged, not errored")
}

func TestWebhook_RoomFinishedDelegated(t *testing.T) {
	var gotRoom string
	app := &mockApp{
		handleRoomFinishedFn: func(_ context.Context, roomName string) {
			gotRoom = roomName
		},
	}
	srv := newTestServer(app)

	body := `{"event":"room_finished","room":"room-1"}`
	req := httptest.NewRequest(http.MethodPost, "/webhooks/room-events", strings.NewReader(body))
	req.Header.Set(signatureHeader, signWebhookBody(body))
	rec := httptest.NewRecorder()
	srv.echo.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "room-1", gotRoom)
}

func TestHealthz(t *testing.T) {
	srv := newTestServer(&mockApp{})

	rec := doJSON(srv, http.MethodGet, "/healthz", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestReadyz_FailingCheckIs503(t *testing.T) {
	cfg := &config.Config{
		AppEnv:             "test",
		SessionSecret:      "test-session-secret",
		WebhookSecret:      testWebhookSecret,
		TokenTTL:           10 * time.Minute,
		TokenRatePerSecond: 1000,
		TokenRateBurst:     1000,
	}
	srv := NewServer(cfg, &mockApp{}, []HealthCheck{
		{Name: "postgres", Check: func(context.Context) error { return fmt.Errorf("down") }},
	})

	rec := doJSON(srv, http.MethodGet, "/readyz", "", nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}
