package routes

import (
	"Fedipub/internal/core/accounts"
	"Fedipub/internal/core/events"
	"Fedipub/internal/core/feeds"
	"Fedipub/internal/core/notifications"
	"Fedipub/internal/core/posts"
	"Fedipub/internal/core/result"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type siteResult = result.Result[*accounts.Account, accounts.SiteLookupError]

type MockAccountLookup struct {
	mock.Mock
}

func (m *MockAccountLookup) GetBySite(ctx context.Context, host string) (siteResult, error) {
	args := m.Called(ctx, host)
	return args.Get(0).(siteResult), args.Error(1)
}

type MockNotificationReader struct {
	mock.Mock
}

func (m *MockNotificationReader) List(ctx context.Context, recipientID int64, limit int) ([]*notifications.Notification, error) {
	args := m.Called(ctx, recipientID, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*notifications.Notification), args.Error(1)
}

func (m *MockNotificationReader) UnreadCount(ctx context.Context, recipientID int64) (int, error) {
	args := m.Called(ctx, recipientID)
	return args.Int(0), args.Error(1)
}

type MockFeedReader struct {
	mock.Mock
}

func (m *MockFeedReader) Feed(ctx context.Context, ownerID int64, limit int) ([]feeds.Entry, error) {
	args := m.Called(ctx, ownerID, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]feeds.Entry), args.Error(1)
}

type MockEmitter struct {
	mock.Mock
}

func (m *MockEmitter) EmitAsync(ctx context.Context, e events.Event) error {
	return m.Called(ctx, e).Error(0)
}

type fakePinger struct{ err error }

func (p fakePinger) PingContext(context.Context) error { return p.err }

func serve(r http.Handler, method, target string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestSiteAccountRoute(t *testing.T) {
	acc, err := accounts.NewExternal(accounts.ExternalAccountData{
		ApID:    "https://alice.example/.ghost/activitypub/users/index",
		Profile: accounts.Profile{Username: "index", Name: "Alice"},
	})
	require.NoError(t, err)
	require.NoError(t, acc.AssignID(7))

	tests := []struct {
		name       string
		res        siteResult
		err        error
		wantStatus int
		wantError  string
	}{
		{name: "found", res: result.Ok[*accounts.Account, accounts.SiteLookupError](acc), wantStatus: http.StatusOK},
		{name: "no site", res: result.Error[*accounts.Account](accounts.SiteNotFound), wantStatus: http.StatusNotFound, wantError: "SiteNotFound"},
		{name: "no account", res: result.Error[*accounts.Account](accounts.SiteAccountNotFound), wantStatus: http.StatusNotFound, wantError: "AccountNotFound"},
		{name: "several accounts", res: result.Error[*accounts.Account](accounts.MultipleAccountsForSite), wantStatus: http.StatusConflict, wantError: "MultipleAccountsForSite"},
		{name: "storage failure", err: errors.New("connection refused"), wantStatus: http.StatusInternalServerError, wantError: "InternalServerError"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			lookup := new(MockAccountLookup)
			lookup.On("GetBySite", mock.Anything, "alice.example").Return(tt.res, tt.err)
			r := chi.NewRouter()
			RegisterSiteRoutes(r, lookup, nil)

			w := serve(r, http.MethodGet, "/v1/sites/alice.example/account")

			assert.Equal(t, tt.wantStatus, w.Code)
			var body map[string]any
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
			if tt.wantError != "" {
				assert.Equal(t, tt.wantError, body["error"])
			} else {
				assert.Equal(t, float64(7), body["id"])
				assert.Equal(t, "@index@alice.example", body["handle"])
				assert.Equal(t, "Alice", body["name"])
			}
			lookup.AssertExpectations(t)
		})
	}
}

func newAccountRouter(n *MockNotificationReader, f *MockFeedReader, e *MockEmitter) http.Handler {
	r := chi.NewRouter()
	RegisterAccountRoutes(r, n, f, e, nil)
	return r
}

func TestNotificationsRoute_List(t *testing.T) {
	reader := new(MockNotificationReader)
	postID := int64(10)
	reader.On("List", mock.Anything, int64(3), 5).Return([]*notifications.Notification{
		{ID: 2, RecipientID: 3, ActorID: 4, PostID: &postID, Type: notifications.TypeLike, CreatedAt: time.Now()},
	}, nil)
	reader.On("UnreadCount", mock.Anything, int64(3)).Return(1, nil)

	w := serve(newAccountRouter(reader, new(MockFeedReader), new(MockEmitter)), http.MethodGet, "/v1/accounts/3/notifications?limit=5")

	require.Equal(t, http.StatusOK, w.Code)
	var body struct {
		Notifications []notifications.Notification `json:"notifications"`
		UnreadCount   int                          `json:"unreadCount"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	require.Len(t, body.Notifications, 1)
	assert.Equal(t, notifications.TypeLike, body.Notifications[0].Type)
	assert.Equal(t, 1, body.UnreadCount)
	reader.AssertExpectations(t)
}

func TestNotificationsRoute_EmptyListIsArray(t *testing.T) {
	reader := new(MockNotificationReader)
	reader.On("List", mock.Anything, int64(3), 20).Return(nil, nil)
	reader.On("UnreadCount", mock.Anything, int64(3)).Return(0, nil)

	w := serve(newAccountRouter(reader, new(MockFeedReader), new(MockEmitter)), http.MethodGet, "/v1/accounts/3/notifications")

	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"notifications":[],"unreadCount":0}`, w.Body.String())
}

func TestAccountRoutes_BadRequests(t *testing.T) {
	reader := new(MockNotificationReader)
	feedReader := new(MockFeedReader)
	r := newAccountRouter(reader, feedReader, new(MockEmitter))

	for _, target := range []string{
		"/v1/accounts/abc/notifications",
		"/v1/accounts/0/feed",
		"/v1/accounts/3/notifications?limit=0",
		"/v1/accounts/3/feed?limit=1000",
	} {
		w := serve(r, http.MethodGet, target)
		assert.Equal(t, http.StatusBadRequest, w.Code, target)
	}
	reader.AssertNotCalled(t, "List", mock.Anything, mock.Anything, mock.Anything)
	feedReader.AssertNotCalled(t, "Feed", mock.Anything, mock.Anything, mock.Anything)
}

func TestNotificationsRoute_MarkRead(t *testing.T) {
	emitter := new(MockEmitter)
	emitter.On("EmitAsync", mock.Anything, events.NotificationsRead{AccountID: 3}).Return(nil).Once()
	r := newAccountRouter(new(MockNotificationReader), new(MockFeedReader), emitter)

	w := serve(r, http.MethodPost, "/v1/accounts/3/notifications/read")

	assert.Equal(t, http.StatusNoContent, w.Code)
	emitter.AssertExpectations(t)
}

func TestNotificationsRoute_MarkReadHandlerFailure(t *testing.T) {
	emitter := new(MockEmitter)
	emitter.On("EmitAsync", mock.Anything, mock.Anything).
		Return(&events.HandlerError{Kind: events.KindNotificationsRead, Err: errors.New("db down")})
	r := newAccountRouter(new(MockNotificationReader), new(MockFeedReader), emitter)

	w := serve(r, http.MethodPost, "/v1/accounts/3/notifications/read")

	assert.Equal(t, http.StatusInternalServerError, w.Code)
}

func TestFeedRoute(t *testing.T) {
	feedReader := new(MockFeedReader)
	reposter := int64(9)
	feedReader.On("Feed", mock.Anything, int64(3), 20).Return([]feeds.Entry{
		{OwnerID: 3, PostID: 11, AuthorID: 4, RepostedByID: &reposter, PostType: posts.TypeNote, Audience: posts.AudiencePublic},
	}, nil)

	w := serve(newAccountRouter(new(MockNotificationReader), feedReader, new(MockEmitter)), http.MethodGet, "/v1/accounts/3/feed")

	require.Equal(t, http.StatusOK, w.Code)
	var body struct {
		Entries []feeds.Entry `json:"entries"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	require.Len(t, body.Entries, 1)
	assert.Equal(t, int64(11), body.Entries[0].PostID)
	assert.Equal(t, int64(9), *body.Entries[0].RepostedByID)
}

func TestHealthRoute(t *testing.T) {
	r := chi.NewRouter()
	RegisterHealthRoutes(r, fakePinger{})
	assert.Equal(t, http.StatusOK, serve(r, http.MethodGet, "/health").Code)

	w := serve(r, http.MethodGet, "/metrics")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "go_goroutines")

	down := chi.NewRouter()
	RegisterHealthRoutes(down, fakePinger{err: errors.New("down")})
	assert.Equal(t, http.StatusServiceUnavailable, serve(down, http.MethodGet, "/health").Code)
}
