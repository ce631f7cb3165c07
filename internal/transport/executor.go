// Package transport executes logical API calls with a per-attempt timeout,
// bounded retries and exponential backoff.
package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"tasklist/internal/apierr"
	"tasklist/internal/domain"
)

const (
	DefaultTimeout        = 10 * time.Second
	DefaultMaxRetries     = 2
	DefaultInitialBackoff = time.Second
	DefaultMaxBackoff     = 10 * time.Second

	// RequestIDHeader is set on every attempt.
	RequestIDHeader = "X-Request-ID"
)

// CredentialSource yields the credential to attach; tokenstore.Store satisfies it.
type CredentialSource interface {
	Get(ctx context.Context) (domain.Credential, bool)
}

// Doer is the request surface consumed by the session and task layers.
type Doer interface {
	Execute(ctx context.Context, method, path string, body any) (*Response, error)
}

// SleepFunc waits for d or until ctx is done.
type SleepFunc func(ctx context.Context, d time.Duration) error

type Config struct {
	BaseURL        string
	Timeout        time.Duration
	MaxRetries     int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	HTTPClient     *http.Client
	Logger         logrus.FieldLogger
	Sleep          SleepFunc
}

// Executor issues HTTP calls against one API origin.
type Executor struct {
	cfg     Config
	baseURL string
	client  *http.Client
	jar     *resettableJar
	creds   CredentialSource
	logger  logrus.FieldLogger
}

func New(cfg Config, creds CredentialSource) (*Executor, error) {
	base := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if base == "" {
		return nil, fmt.Errorf("api base url is required")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	if cfg.InitialBackoff <= 0 {
		cfg.InitialBackoff = DefaultInitialBackoff
	}
	if cfg.MaxBackoff <= 0 {
		cfg.MaxBackoff = DefaultMaxBackoff
	}
	if cfg.MaxBackoff < cfg.InitialBackoff {
		cfg.MaxBackoff = cfg.InitialBackoff
	}
	if cfg.Sleep == nil {
		cfg.Sleep = sleepContext
	}
	if cfg.Logger == nil {
		cfg.Logger = logrus.New()
	}

	jar, err := newResettableJar()
	if err != nil {
		return nil, err
	}

	client := &http.Client{}
	if cfg.HTTPClient != nil {
		c := *cfg.HTTPClient
		client = &c
	}
	client.Jar = jar
	// the per-attempt context carries the deadline
	client.Timeout = 0

	return &Executor{
		cfg:     cfg,
		baseURL: base,
		client:  client,
		jar:     jar,
		creds:   creds,
		logger:  cfg.Logger.WithField("component", "transport"),
	}, nil
}

// Execute runs one logical call. A non-nil error is always a *apierr.ClassifiedError.
func (e *Executor) Execute(ctx context.Context, method, path string, body any) (*Response, error) {
	payload, err := encodeBody(body)
	if err != nil {
		ce := apierr.New(apierr.KindUnknown, "could not encode request")
		ce.Retryable = false
		ce.Cause = err
		return nil, ce
	}

	schedule := e.newSchedule()
	attempts := e.cfg.MaxRetries + 1

	var last *apierr.ClassifiedError
	for attempt := 1; attempt <= attempts; attempt++ {
		resp, cerr := e.attempt(ctx, method, path, payload, attempt)
		if cerr == nil {
			return resp, nil
		}
		last = cerr

		if attempt == attempts || !apierr.ShouldRetry(cerr) || ctx.Err() != nil {
			break
		}

		delay := schedule.NextBackOff()
		if delay == backoff.Stop || delay > e.cfg.MaxBackoff {
			delay = e.cfg.MaxBackoff
		}
		e.logger.WithFields(logrus.Fields{
			"method":  method,
			"path":    path,
			"attempt": attempt,
			"kind":    cerr.Kind,
			"delay":   delay,
		}).Debug("retrying request")

		if err := e.cfg.Sleep(ctx, delay); err != nil {
			break
		}
	}

	e.logger.WithFields(logrus.Fields{
		"method": method,
		"path":   path,
		"kind":   last.Kind,
		"status": last.StatusCode,
	}).Debug("request failed")
	return nil, last
}

// ClearCookies drops every cookie held for the API origin.
func (e *Executor) ClearCookies() {
	e.jar.Reset()
}

func (e *Executor) attempt(ctx context.Context, method, path string, payload []byte, attempt int) (*Response, *apierr.ClassifiedError) {
	attemptCtx, cancel := context.WithTimeout(ctx, e.cfg.Timeout)
	defer cancel()

	var reader io.Reader = http.NoBody
	if payload != nil {
		reader = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(attemptCtx, method, e.baseURL+path, reader)
	if err != nil {
		ce := apierr.New(apierr.KindUnknown, "could not build request")
		ce.Retryable = false
		ce.Cause = err
		return nil, ce
	}

	requestID := uuid.NewString()
	req.Header.Set("Accept", "application/json")
	req.Header.Set(RequestIDHeader, requestID)
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if e.creds != nil {
		if cred, ok := e.creds.Get(ctx); ok {
			req.Header.Set("Authorization", "Bearer "+cred.Token)
		}
	}

	logger := e.logger.WithFields(logrus.Fields{
		"method":     method,
		"path":       path,
		"attempt":    attempt,
		"request_id": requestID,
	})

	resp, err := e.client.Do(req)
	if err != nil {
		ce := apierr.FromError(err)
		logger.WithField("kind", ce.Kind).Debug("request attempt failed")
		return nil, ce
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		ce := apierr.FromError(err)
		logger.WithField("kind", ce.Kind).Debug("reading response failed")
		return nil, ce
	}

	logger.WithField("status", resp.StatusCode).Debug("request attempt completed")
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return &Response{StatusCode: resp.StatusCode, Header: resp.Header, Body: data}, nil
	}
	return nil, apierr.FromResponse(resp.StatusCode, data)
}

func (e *Executor) newSchedule() *backoff.ExponentialBackOff {
	b := &backoff.ExponentialBackOff{
		InitialInterval:     e.cfg.InitialBackoff,
		RandomizationFactor: 0,
		Multiplier:          2,
		MaxInterval:         e.cfg.MaxBackoff,
	}
	b.Reset()
	return b
}

func encodeBody(body any) ([]byte, error) {
	switch v := body.(type) {
	case nil:
		return nil, nil
	case []byte:
		return v, nil
	case json.RawMessage:
		return v, nil
	default:
		return json.Marshal(v)
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
