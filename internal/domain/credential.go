package domain

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// CredentialState describes the lifecycle position of the stored credential.
type CredentialState string

const (
	CredentialValid   CredentialState = "valid"
	CredentialExpired CredentialState = "expired"
	CredentialRevoked CredentialState = "revoked"
	CredentialAbsent  CredentialState = "absent"
)

// Credential is the opaque signed token proving identity.
// IssuedAt and ExpiresAt are zero when the token carries no readable claims.
type Credential struct {
	Token     string    `json:"token"`
	IssuedAt  time.Time `json:"issued_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

// NewCredential wraps a token issued by the API and reads its iat/exp claims.
// The signature is not verified here; the server remains the authority.
func NewCredential(token string) Credential {
	cred := Credential{Token: token}

	var claims jwt.RegisteredClaims
	if _, _, err := jwt.NewParser().ParseUnverified(token, &claims); err != nil {
		return cred
	}
	if claims.IssuedAt != nil {
		cred.IssuedAt = claims.IssuedAt.UTC()
	}
	if claims.ExpiresAt != nil {
		cred.ExpiresAt = claims.ExpiresAt.UTC()
	}
	return cred
}

// IsZero reports whether no token is held.
func (c Credential) IsZero() bool {
	return c.Token == ""
}

// Status evaluates the credential at now. Revocation is only known to the
// session, so it is never returned here.
func (c Credential) Status(now time.Time) CredentialState {
	switch {
	case c.IsZero():
		return CredentialAbsent
	case !c.ExpiresAt.IsZero() && !now.Before(c.ExpiresAt):
		return CredentialExpired
	default:
		return CredentialValid
	}
}
