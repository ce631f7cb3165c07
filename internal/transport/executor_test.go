package transport

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tasklist/internal/apierr"
	"tasklist/internal/domain"
	"tasklist/internal/tokenstore"
)

type recordedSleeps struct {
	mu     sync.Mutex
	delays []time.Duration
}

func (r *recordedSleeps) sleep(_ context.Context, d time.Duration) error {
	r.mu.Lock()
	r.delays = append(r.delays, d)
	r.mu.Unlock()
	return nil
}

func (r *recordedSleeps) all() []time.Duration {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]time.Duration(nil), r.delays...)
}

func quietLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

func newTestExecutor(t *testing.T, srv *httptest.Server, sleeps *recordedSleeps, creds CredentialSource) *Executor {
	t.Helper()
	cfg := Config{
		BaseURL: srv.URL,
		Timeout: 200 * time.Millisecond,
		Logger:  quietLogger(),
	}
	if sleeps != nil {
		cfg.Sleep = sleeps.sleep
	}
	exec, err := New(cfg, creds)
	require.NoError(t, err)
	return exec
}

func TestExecute_AttachesBearerAndDecodes(t *testing.T) {
	var gotAuth, gotRequestID, gotContentType string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotRequestID = r.Header.Get(RequestIDHeader)
		gotContentType = r.Header.Get("Content-Type")
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"id":7,"email":"a@x.com","created_at":"2026-01-10T12:00:00","updated_at":"2026-01-10T12:00:00"}`)
	}))
	defer srv.Close()

	store := tokenstore.NewMemory()
	require.NoError(t, store.Set(context.Background(), domain.Credential{Token: "tok-123"}))
	exec := newTestExecutor(t, srv, nil, store)

	user, err := Do[domain.UserIdentity](context.Background(), exec, http.MethodPost, "/api/auth/me", map[string]string{"x": "y"})
	require.NoError(t, err)
	require.NotNil(t, user)
	assert.Equal(t, int64(7), user.ID)
	assert.Equal(t, "Bearer tok-123", gotAuth)
	assert.NotEmpty(t, gotRequestID)
	assert.Equal(t, "application/json", gotContentType)
}

func TestExecute_NoCredentialNoHeader(t *testing.T) {
	var gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	exec := newTestExecutor(t, srv, nil, tokenstore.NewMemory())
	resp, err := exec.Execute(context.Background(), http.MethodDelete, "/api/tasks/1", nil)
	require.NoError(t, err)
	assert.True(t, resp.Null())
	assert.Empty(t, gotAuth)

	task, err := Do[domain.Task](context.Background(), exec, http.MethodDelete, "/api/tasks/1", nil)
	require.NoError(t, err)
	assert.Nil(t, task)
}

func TestExecute_RateLimitedThenSuccess(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusTooManyRequests)
			_, _ = io.WriteString(w, `{"detail":"Rate limit exceeded."}`)
			return
		}
		_, _ = io.WriteString(w, `[]`)
	}))
	defer srv.Close()

	sleeps := &recordedSleeps{}
	exec := newTestExecutor(t, srv, sleeps, nil)

	resp, err := exec.Execute(context.Background(), http.MethodGet, "/api/tasks", nil)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, int32(2), calls.Load())

	delays := sleeps.all()
	require.Len(t, delays, 1)
	assert.GreaterOrEqual(t, delays[0], time.Second)
	assert.Less(t, delays[0], 2*time.Second)
}

func TestExecute_FirstRetryWaitsAtLeastOneSecond(t *testing.T) {
	if testing.Short() {
		t.Skip("waits for a real backoff")
	}

	var (
		mu    sync.Mutex
		times []time.Time
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		times = append(times, time.Now())
		n := len(times)
		mu.Unlock()
		if n == 1 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	exec := newTestExecutor(t, srv, nil, nil)
	_, err := exec.Execute(context.Background(), http.MethodGet, "/api/tasks", nil)
	require.NoError(t, err)

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, times, 2)
	gap := times[1].Sub(times[0])
	assert.GreaterOrEqual(t, gap, time.Second)
	assert.Less(t, gap, 2*time.Second)
}

func TestExecute_BackoffDoublesAndCaps(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	sleeps := &recordedSleeps{}
	exec, err := New(Config{
		BaseURL:    srv.URL,
		Timeout:    200 * time.Millisecond,
		MaxRetries: 5,
		Logger:     quietLogger(),
		Sleep:      sleeps.sleep,
	}, nil)
	require.NoError(t, err)

	_, err = exec.Execute(context.Background(), http.MethodGet, "/api/tasks", nil)
	require.Error(t, err)
	assert.Equal(t, apierr.KindServerError, apierr.KindOf(err))
	assert.Equal(t, int32(6), calls.Load())
	assert.Equal(t, []time.Duration{
		time.Second, 2 * time.Second, 4 * time.Second, 8 * time.Second, 10 * time.Second,
	}, sleeps.all())
}

func TestExecute_TimeoutExhaustsBudget(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer srv.Close()

	sleeps := &recordedSleeps{}
	exec, err := New(Config{
		BaseURL: srv.URL,
		Timeout: 50 * time.Millisecond,
		Logger:  quietLogger(),
		Sleep:   sleeps.sleep,
	}, nil)
	require.NoError(t, err)

	_, err = exec.Execute(context.Background(), http.MethodGet, "/api/tasks", nil)
	require.Error(t, err)

	ce := apierr.As(err)
	assert.Equal(t, apierr.KindTimeout, ce.Kind)
	assert.True(t, ce.Retryable)
	assert.Equal(t, int32(DefaultMaxRetries+1), calls.Load())
	assert.Len(t, sleeps.all(), DefaultMaxRetries)
}

func TestExecute_ClientErrorsAreNotRetried(t *testing.T) {
	for _, status := range []int{400, 401, 403, 404, 409, 422} {
		var calls atomic.Int32
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			calls.Add(1)
			w.WriteHeader(status)
		}))

		exec := newTestExecutor(t, srv, &recordedSleeps{}, nil)
		_, err := exec.Execute(context.Background(), http.MethodPost, "/api/tasks", map[string]string{"title": ""})
		require.Error(t, err)
		assert.Equal(t, status, apierr.As(err).StatusCode)
		assert.Equal(t, int32(1), calls.Load(), "status %d must not be retried", status)
		srv.Close()
	}
}

func TestExecute_NetworkFailureIsClassified(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	sleeps := &recordedSleeps{}
	exec, err := New(Config{BaseURL: url, Logger: quietLogger(), Sleep: sleeps.sleep}, nil)
	require.NoError(t, err)

	_, err = exec.Execute(context.Background(), http.MethodGet, "/api/tasks", nil)
	require.Error(t, err)
	assert.Equal(t, apierr.KindNetwork, apierr.KindOf(err))
	assert.Len(t, sleeps.all(), DefaultMaxRetries)
}

func TestExecute_CanceledContextStopsRetrying(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	exec, err := New(Config{
		BaseURL: srv.URL,
		Logger:  quietLogger(),
		Sleep: func(ctx context.Context, d time.Duration) error {
			cancel()
			return ctx.Err()
		},
	}, nil)
	require.NoError(t, err)

	_, err = exec.Execute(ctx, http.MethodGet, "/api/tasks", nil)
	require.Error(t, err)
	assert.Equal(t, apierr.KindServerError, apierr.KindOf(err))
	assert.Equal(t, int32(1), calls.Load())
}

func TestExecute_CookiesAndClearCookies(t *testing.T) {
	var sawCookie atomic.Bool
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/login":
			http.SetCookie(w, &http.Cookie{Name: "auth-token", Value: "cookie-tok", Path: "/", HttpOnly: true})
		case "/check":
			_, err := r.Cookie("auth-token")
			sawCookie.Store(err == nil)
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	exec := newTestExecutor(t, srv, nil, nil)
	ctx := context.Background()

	_, err := exec.Execute(ctx, http.MethodPost, "/login", nil)
	require.NoError(t, err)
	_, err = exec.Execute(ctx, http.MethodGet, "/check", nil)
	require.NoError(t, err)
	assert.True(t, sawCookie.Load())

	exec.ClearCookies()
	_, err = exec.Execute(ctx, http.MethodGet, "/check", nil)
	require.NoError(t, err)
	assert.False(t, sawCookie.Load())
}

func TestExecute_MalformedPayload(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{not json`)
	}))
	defer srv.Close()

	exec := newTestExecutor(t, srv, nil, nil)
	_, err := Do[domain.Task](context.Background(), exec, http.MethodGet, "/api/tasks/1", nil)
	require.Error(t, err)
	assert.Equal(t, apierr.KindUnknown, apierr.KindOf(err))
}

func TestNew_RequiresBaseURL(t *testing.T) {
	_, err := New(Config{}, nil)
	assert.Error(t, err)
}
