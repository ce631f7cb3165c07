// Package testserver starts the task list API in-process for tests.
package testserver

import (
	"context"
	"io"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	apphttp "tasklist/internal/http"
	"tasklist/internal/repository/sqlite"
	"tasklist/internal/service"
	"tasklist/internal/sqlitedb"
)

const Secret = "test-secret"

type Options struct {
	RateLimitPerMinute int
	TokenTTL           time.Duration
}

type Server struct {
	*httptest.Server
	Tokens *service.TokenService
	Users  service.UserService
	Tasks  service.TaskService
}

// Start serves a fresh database until the test ends.
func Start(t testing.TB, opts Options) *Server {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db, err := sqlitedb.Open(filepath.Join(t.TempDir(), "tasklist.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	userRepo := sqlite.NewUserRepository(db)
	taskRepo := sqlite.NewTaskRepository(db)
	ctx := context.Background()
	require.NoError(t, userRepo.Init(ctx))
	require.NoError(t, taskRepo.Init(ctx))

	tokens, err := service.NewTokenService(Secret, opts.TokenTTL)
	require.NoError(t, err)

	logger := logrus.New()
	logger.SetOutput(io.Discard)

	srv := &Server{
		Tokens: tokens,
		Users:  service.NewUserService(userRepo, bcrypt.MinCost),
		Tasks:  service.NewTaskService(taskRepo),
	}

	router := gin.New()
	router.Use(gin.Recovery())
	apphttp.NewHandler(srv.Users, srv.Tasks, tokens, apphttp.Options{
		RateLimitPerMinute: opts.RateLimitPerMinute,
		Logger:             logger,
	}).RegisterRoutes(router)

	srv.Server = httptest.NewServer(router)
	t.Cleanup(srv.Close)
	return srv
}
