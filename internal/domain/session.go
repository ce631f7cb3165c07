package domain

// AuthState is the position of the client in the authentication lifecycle.
type AuthState string

const (
	AuthUnknown         AuthState = "unknown"
	AuthAuthenticating  AuthState = "authenticating"
	AuthAuthenticated   AuthState = "authenticated"
	AuthUnauthenticated AuthState = "unauthenticated"
)

// Session is the derived view of who is signed in.
// CurrentUser is non-nil iff State is AuthAuthenticated.
type Session struct {
	State       AuthState
	CurrentUser *UserIdentity
}

// Authenticated reports whether a user is signed in.
func (s Session) Authenticated() bool {
	return s.State == AuthAuthenticated && s.CurrentUser != nil
}
