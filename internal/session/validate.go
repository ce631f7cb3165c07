package session

import (
	"errors"
	"regexp"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/go-ozzo/ozzo-validation/is"

	"tasklist/internal/apierr"
)

var (
	hasUpper = regexp.MustCompile(`[A-Z]`)
	hasLower = regexp.MustCompile(`[a-z]`)
	hasDigit = regexp.MustCompile(`\d`)
)

// SignUpPayload mirrors the registration body and the backend's password policy.
type SignUpPayload struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Validate checks the payload before it is sent.
func (p SignUpPayload) Validate() error {
	return validation.ValidateStruct(&p,
		validation.Field(&p.Email, validation.Required, validation.Length(3, 255), is.Email),
		validation.Field(&p.Password,
			validation.Required,
			validation.Length(8, 0).Error("must be at least 8 characters"),
			validation.Match(hasUpper).Error("must contain at least one uppercase letter"),
			validation.Match(hasLower).Error("must contain at least one lowercase letter"),
			validation.Match(hasDigit).Error("must contain at least one number"),
		),
	)
}

// SignInPayload is the sign-in body. It is deliberately not validated
// locally beyond presence so every failure looks the same.
type SignInPayload struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func toValidationError(err error) *apierr.ClassifiedError {
	var verrs validation.Errors
	if !errors.As(err, &verrs) {
		ce := apierr.Validation(err.Error(), nil)
		ce.Cause = err
		return ce
	}
	fields := make(map[string]string, len(verrs))
	for name, ferr := range verrs {
		if ferr != nil {
			fields[name] = ferr.Error()
		}
	}
	ce := apierr.Validation("", fields)
	ce.Cause = err
	return ce
}
