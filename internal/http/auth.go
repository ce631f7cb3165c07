package http

import (
	"errors"
	"net/http"
	"regexp"
	"strings"

	"github.com/gin-gonic/gin"
	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/go-ozzo/ozzo-validation/is"

	"tasklist/internal/domain"
	"tasklist/internal/service"
)

const userIDKey = "user_id"

var (
	upperRe = regexp.MustCompile(`[A-Z]`)
	lowerRe = regexp.MustCompile(`[a-z]`)
	digitRe = regexp.MustCompile(`\d`)
)

type signUpRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (r *signUpRequest) Validate() error {
	r.Email = strings.TrimSpace(r.Email)
	return validation.ValidateStruct(r,
		validation.Field(&r.Email, validation.Required, validation.Length(0, 255), is.Email),
		validation.Field(&r.Password,
			validation.Required,
			validation.Length(8, 0).Error("Password must be at least 8 characters"),
			validation.Match(upperRe).Error("Password must contain at least one uppercase letter"),
			validation.Match(lowerRe).Error("Password must contain at least one lowercase letter"),
			validation.Match(digitRe).Error("Password must contain at least one number"),
		),
	)
}

type signInRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (r *signInRequest) Validate() error {
	return validation.ValidateStruct(r,
		validation.Field(&r.Email, validation.Required),
		validation.Field(&r.Password, validation.Required),
	)
}

type authResponse struct {
	User  domain.UserIdentity `json:"user"`
	Token string              `json:"token"`
}

func (h *Handler) signUp(c *gin.Context) {
	var req signUpRequest
	if !bindBody(c, &req) {
		return
	}

	user, err := h.users.Register(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		if errors.Is(err, service.ErrUserAlreadyExists) {
			abortDetail(c, http.StatusConflict, "Email already exists")
			return
		}
		internalError(c, h, err)
		return
	}
	h.respondWithToken(c, http.StatusCreated, *user)
}

func (h *Handler) signIn(c *gin.Context) {
	var req signInRequest
	if !bindBody(c, &req) {
		return
	}

	user, err := h.users.Authenticate(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		if errors.Is(err, service.ErrInvalidCredentials) {
			abortDetail(c, http.StatusUnauthorized, "Invalid email or password")
			return
		}
		internalError(c, h, err)
		return
	}
	h.respondWithToken(c, http.StatusOK, *user)
}

// signOut only drops the cookie; tokens are stateless.
func (h *Handler) signOut(c *gin.Context) {
	h.setAuthCookie(c, "", -1)
	c.JSON(http.StatusOK, gin.H{"message": "Signed out successfully"})
}

func (h *Handler) me(c *gin.Context) {
	user, err := h.users.GetByID(c.Request.Context(), c.GetInt64(userIDKey))
	if err != nil {
		// the token outlived its account
		abortDetail(c, http.StatusUnauthorized, "Invalid or expired authentication token")
		return
	}
	c.JSON(http.StatusOK, user.Identity())
}

func (h *Handler) respondWithToken(c *gin.Context, status int, user domain.User) {
	token, err := h.tokens.Issue(user)
	if err != nil {
		internalError(c, h, err)
		return
	}
	h.setAuthCookie(c, token, int(h.tokens.TTL().Seconds()))
	c.JSON(status, authResponse{User: user.Identity(), Token: token})
}

func (h *Handler) setAuthCookie(c *gin.Context, value string, maxAge int) {
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(AuthCookie, value, maxAge, "/", "", h.secureCookie, true)
}

// requireUser resolves the caller from the bearer header, falling back to
// the auth cookie.
func (h *Handler) requireUser(c *gin.Context) {
	token := ""
	if header := c.GetHeader("Authorization"); strings.HasPrefix(header, "Bearer ") {
		token = strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
	}
	if token == "" {
		token, _ = c.Cookie(AuthCookie)
	}
	if token == "" {
		abortDetail(c, http.StatusUnauthorized, "Authentication required")
		return
	}

	id, err := h.tokens.Verify(token)
	if err != nil {
		abortDetail(c, http.StatusUnauthorized, "Invalid or expired authentication token")
		return
	}
	c.Set(userIDKey, id)
	c.Next()
}
