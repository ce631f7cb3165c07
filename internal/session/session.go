// Package session owns the authentication lifecycle of the client: the auth
// state machine, the current user and every write to the token store.
package session

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"tasklist/internal/apierr"
	"tasklist/internal/domain"
	"tasklist/internal/tokenstore"
	"tasklist/internal/transport"
)

const (
	PathSignUp  = "/api/auth/signup"
	PathSignIn  = "/api/auth/signin"
	PathSignOut = "/api/auth/signout"
	PathMe      = "/api/auth/me"
)

// ErrSuperseded is returned when a later sign-in, sign-up or sign-out started
// before this operation's response arrived; its result was discarded.
var ErrSuperseded = errors.New("session: operation superseded by a later one")

// CookieClearer drops the secondary credential channel.
type CookieClearer interface {
	ClearCookies()
}

type Config struct {
	Doer    transport.Doer
	Store   tokenstore.Store
	Cookies CookieClearer
	Logger  logrus.FieldLogger
	Now     func() time.Time
}

// Controller is the single owner of the session. Construct one per process
// and share it by reference.
type Controller struct {
	doer    transport.Doer
	store   tokenstore.Store
	cookies CookieClearer
	logger  logrus.FieldLogger
	now     func() time.Time

	mu      sync.Mutex
	state   domain.AuthState
	user    *domain.UserIdentity
	epoch   uint64
	revoked bool

	notifyMu  sync.Mutex
	obsMu     sync.Mutex
	observers map[int]func(domain.Session)
	nextObs   int
}

type authResponse struct {
	User  domain.UserIdentity `json:"user"`
	Token string              `json:"token"`
}

func New(cfg Config) *Controller {
	if cfg.Logger == nil {
		cfg.Logger = logrus.New()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Controller{
		doer:      cfg.Doer,
		store:     cfg.Store,
		cookies:   cfg.Cookies,
		logger:    cfg.Logger.WithField("component", "session"),
		now:       cfg.Now,
		state:     domain.AuthUnknown,
		observers: make(map[int]func(domain.Session)),
	}
}

// Open builds a controller and runs the initial who-am-I check. The
// controller is returned even when the check fails with a transient error.
func Open(ctx context.Context, cfg Config) (*Controller, error) {
	c := New(cfg)
	return c, c.Init(ctx)
}

// Init resolves the Unknown state by asking the API who the credential
// belongs to. Transient failures leave the state Unknown and the credential intact.
func (c *Controller) Init(ctx context.Context) error {
	_, err := c.whoAmI(ctx)
	return err
}

// Refresh re-fetches the current user and replaces it wholesale.
func (c *Controller) Refresh(ctx context.Context) (domain.UserIdentity, error) {
	return c.whoAmI(ctx)
}

func (c *Controller) whoAmI(ctx context.Context) (domain.UserIdentity, error) {
	c.mu.Lock()
	epoch := c.epoch
	if cred, ok := c.store.Get(ctx); ok && cred.Status(c.now()) == domain.CredentialExpired {
		c.logger.Info("stored credential expired, signing out locally")
		c.clearLocked(ctx, false)
		c.epoch++
		c.mu.Unlock()
		c.notify()
		return domain.UserIdentity{}, apierr.New(apierr.KindAuthentication, "")
	}
	c.mu.Unlock()

	user, err := transport.Do[domain.UserIdentity](ctx, c.doer, http.MethodGet, PathMe, nil)
	if err == nil && user == nil {
		err = apierr.New(apierr.KindUnknown, "empty user payload")
	}

	c.mu.Lock()
	if epoch != c.epoch {
		c.mu.Unlock()
		return domain.UserIdentity{}, ErrSuperseded
	}
	switch {
	case err == nil:
		identity := *user
		c.state = domain.AuthAuthenticated
		c.user = &identity
		c.revoked = false
		c.mu.Unlock()
		c.notify()
		return identity, nil
	case apierr.IsKind(err, apierr.KindAuthentication):
		_, had := c.store.Get(ctx)
		c.clearLocked(ctx, had)
		c.epoch++
		c.mu.Unlock()
		c.notify()
		return domain.UserIdentity{}, err
	default:
		c.mu.Unlock()
		c.logger.WithField("kind", apierr.KindOf(err)).Warn("who-am-I check failed, keeping credential")
		return domain.UserIdentity{}, err
	}
}

// SignUp registers a new account and signs it in.
func (c *Controller) SignUp(ctx context.Context, email, password string) (domain.UserIdentity, error) {
	payload := SignUpPayload{Email: strings.TrimSpace(email), Password: password}
	if err := payload.Validate(); err != nil {
		return domain.UserIdentity{}, toValidationError(err)
	}

	user, err := c.authenticate(ctx, PathSignUp, payload)
	if apierr.IsKind(err, apierr.KindConflict) {
		ce := *apierr.As(err)
		ce.Message = apierr.MsgEmailExists
		return user, &ce
	}
	return user, err
}

// SignIn authenticates an existing account. Every Authentication failure
// surfaces the same generic message.
func (c *Controller) SignIn(ctx context.Context, email, password string) (domain.UserIdentity, error) {
	payload := SignInPayload{Email: strings.TrimSpace(email), Password: password}
	if payload.Email == "" || payload.Password == "" {
		return domain.UserIdentity{}, apierr.New(apierr.KindAuthentication, apierr.MsgInvalidCredentials)
	}

	user, err := c.authenticate(ctx, PathSignIn, payload)
	if apierr.IsKind(err, apierr.KindAuthentication) {
		ce := *apierr.As(err)
		ce.Message = apierr.MsgInvalidCredentials
		return user, &ce
	}
	return user, err
}

func (c *Controller) authenticate(ctx context.Context, path string, payload any) (domain.UserIdentity, error) {
	c.mu.Lock()
	c.epoch++
	epoch := c.epoch
	prevState, prevUser := c.state, c.user
	c.state = domain.AuthAuthenticating
	c.user = nil
	c.mu.Unlock()
	c.notify()

	resp, err := transport.Do[authResponse](ctx, c.doer, http.MethodPost, path, payload)
	if err == nil && (resp == nil || resp.Token == "") {
		err = apierr.New(apierr.KindUnknown, "server returned no credential")
	}

	c.mu.Lock()
	if epoch != c.epoch {
		c.mu.Unlock()
		c.logger.WithField("path", path).Debug("discarding superseded auth result")
		return domain.UserIdentity{}, ErrSuperseded
	}

	if err != nil {
		if apierr.IsKind(err, apierr.KindAuthentication) {
			c.clearLocked(ctx, false)
			c.epoch++
		} else {
			c.state, c.user = prevState, prevUser
		}
		c.mu.Unlock()
		c.notify()
		return domain.UserIdentity{}, err
	}

	cred := domain.NewCredential(resp.Token)
	if serr := c.store.Set(ctx, cred); serr != nil {
		c.clearLocked(ctx, false)
		c.epoch++
		c.mu.Unlock()
		c.notify()
		return domain.UserIdentity{}, fmt.Errorf("store credential: %w", serr)
	}
	identity := resp.User
	c.state = domain.AuthAuthenticated
	c.user = &identity
	c.revoked = false
	// requests started while authenticating carried the old credential
	c.epoch++
	c.mu.Unlock()

	c.logger.WithField("user_id", identity.ID).Info("signed in")
	c.notify()
	return identity, nil
}

// SignOut tells the API to end the session, best effort, then forgets the
// credential locally whatever the outcome. A sign-in started after this
// call wins over it.
func (c *Controller) SignOut(ctx context.Context) error {
	c.mu.Lock()
	c.epoch++
	epoch := c.epoch
	c.mu.Unlock()

	if _, err := c.doer.Execute(ctx, http.MethodPost, PathSignOut, nil); err != nil {
		c.logger.WithField("kind", apierr.KindOf(err)).Warnf("sign out request failed: %v", err)
	}

	c.mu.Lock()
	if epoch != c.epoch {
		c.mu.Unlock()
		return nil
	}
	c.clearLocked(ctx, false)
	c.epoch++
	c.mu.Unlock()

	c.logger.Info("signed out")
	c.notify()
	return nil
}

// Do executes an authenticated call. An Authentication failure clears the
// credential and the session before Do returns.
func (c *Controller) Do(ctx context.Context, method, path string, body any) (*transport.Response, error) {
	c.mu.Lock()
	epoch := c.epoch
	c.mu.Unlock()

	resp, err := c.doer.Execute(ctx, method, path, body)
	if apierr.IsKind(err, apierr.KindAuthentication) {
		c.invalidate(ctx, epoch)
	}
	return resp, err
}

// Execute lets the controller stand in for a transport.Doer.
func (c *Controller) Execute(ctx context.Context, method, path string, body any) (*transport.Response, error) {
	return c.Do(ctx, method, path, body)
}

func (c *Controller) invalidate(ctx context.Context, epoch uint64) {
	c.mu.Lock()
	if epoch != c.epoch {
		c.mu.Unlock()
		return
	}
	c.clearLocked(ctx, true)
	c.epoch++
	c.mu.Unlock()

	c.logger.Warn("credential rejected by server, signed out")
	c.notify()
}

// clearLocked forgets the credential and marks the session unauthenticated.
// Callers hold c.mu.
func (c *Controller) clearLocked(ctx context.Context, revoked bool) {
	if err := c.store.Clear(ctx); err != nil {
		c.logger.Warnf("clear credential: %v", err)
	}
	if c.cookies != nil {
		c.cookies.ClearCookies()
	}
	c.state = domain.AuthUnauthenticated
	c.user = nil
	c.revoked = revoked
}

// Snapshot returns a copy of the session.
func (c *Controller) Snapshot() domain.Session {
	c.mu.Lock()
	defer c.mu.Unlock()
	s := domain.Session{State: c.state}
	if c.user != nil {
		u := *c.user
		s.CurrentUser = &u
	}
	return s
}

func (c *Controller) State() domain.AuthState {
	return c.Snapshot().State
}

// CurrentUser returns the signed-in user, if any.
func (c *Controller) CurrentUser() (domain.UserIdentity, bool) {
	s := c.Snapshot()
	if s.CurrentUser == nil {
		return domain.UserIdentity{}, false
	}
	return *s.CurrentUser, true
}

// CredentialState reports the lifecycle position of the stored credential.
func (c *Controller) CredentialState(ctx context.Context) domain.CredentialState {
	c.mu.Lock()
	defer c.mu.Unlock()
	cred, ok := c.store.Get(ctx)
	if !ok {
		if c.revoked {
			return domain.CredentialRevoked
		}
		return domain.CredentialAbsent
	}
	return cred.Status(c.now())
}

// Subscribe registers fn to receive the session after every transition.
func (c *Controller) Subscribe(fn func(domain.Session)) (cancel func()) {
	c.obsMu.Lock()
	id := c.nextObs
	c.nextObs++
	c.observers[id] = fn
	c.obsMu.Unlock()

	return func() {
		c.obsMu.Lock()
		delete(c.observers, id)
		c.obsMu.Unlock()
	}
}

// notify publishes the current session. Observers run outside c.mu and may
// read the controller.
func (c *Controller) notify() {
	c.notifyMu.Lock()
	defer c.notifyMu.Unlock()

	snap := c.Snapshot()
	c.obsMu.Lock()
	fns := make([]func(domain.Session), 0, len(c.observers))
	for _, fn := range c.observers {
		fns = append(fns, fn)
	}
	c.obsMu.Unlock()

	for _, fn := range fns {
		fn(snap)
	}
}
