// Package client wires the token store, executor, session and task board
// into one object that is constructed once per process.
package client

import (
	"context"
	"fmt"
	"io"

	"github.com/sirupsen/logrus"

	"tasklist/internal/config"
	"tasklist/internal/domain"
	"tasklist/internal/session"
	"tasklist/internal/tasks"
	"tasklist/internal/tokenstore"
	"tasklist/internal/transport"
)

type Client struct {
	Session *session.Controller
	Tasks   *tasks.Board

	executor *transport.Executor
	store    tokenstore.Store
	closer   io.Closer
	cancel   func()
}

// New builds the client from configuration. It does not contact the API;
// call Session.Init for that.
func New(ctx context.Context, cfg config.Config, logger *logrus.Logger) (*Client, error) {
	if logger == nil {
		logger = logrus.New()
		logger.SetOutput(io.Discard)
	}

	c := &Client{}
	switch cfg.Token.Store {
	case config.TokenStoreMemory:
		c.store = tokenstore.NewMemory()
	default:
		store, err := tokenstore.OpenSQLite(ctx, cfg.Token.Path, logger)
		if err != nil {
			return nil, fmt.Errorf("open token store: %w", err)
		}
		c.store = store
		c.closer = store
	}

	executor, err := transport.New(transport.Config{
		BaseURL:        cfg.API.BaseURL,
		Timeout:        cfg.Request.Timeout,
		MaxRetries:     cfg.Request.Retries,
		InitialBackoff: cfg.Request.Backoff.Initial,
		MaxBackoff:     cfg.Request.Backoff.Max,
		Logger:         logger,
	}, c.store)
	if err != nil {
		c.Close()
		return nil, fmt.Errorf("build executor: %w", err)
	}
	c.executor = executor

	c.Session = session.New(session.Config{
		Doer:    executor,
		Store:   c.store,
		Cookies: executor,
		Logger:  logger,
	})
	c.Tasks = tasks.NewBoard(c.Session, logger)

	// another user's tasks must never stay visible
	var owner int64
	c.cancel = c.Session.Subscribe(func(s domain.Session) {
		switch {
		case s.State == domain.AuthUnauthenticated:
			owner = 0
			c.Tasks.Clear()
		case s.CurrentUser != nil && s.CurrentUser.ID != owner:
			if owner != 0 {
				c.Tasks.Clear()
			}
			owner = s.CurrentUser.ID
		}
	})

	return c, nil
}

// Close releases the token store. The client must not be used afterwards.
func (c *Client) Close() error {
	if c.cancel != nil {
		c.cancel()
	}
	if c.closer != nil {
		return c.closer.Close()
	}
	return nil
}
