package http

import (
	"errors"
	"net/http"
	"sort"

	"github.com/gin-gonic/gin"
	validation "github.com/go-ozzo/ozzo-validation"
)

// fieldError is one entry of a 422 detail list.
type fieldError struct {
	Loc  []any  `json:"loc"`
	Msg  string `json:"msg"`
	Type string `json:"type"`
}

func abortDetail(c *gin.Context, status int, detail string) {
	c.AbortWithStatusJSON(status, gin.H{"detail": detail})
}

func validationFailed(c *gin.Context, fields []fieldError) {
	for i := range fields {
		if fields[i].Type == "" {
			fields[i].Type = "value_error"
		}
	}
	c.AbortWithStatusJSON(http.StatusUnprocessableEntity, gin.H{"detail": fields})
}

// bindBody decodes the JSON body and runs v's rules, answering 422 on failure.
func bindBody(c *gin.Context, v validation.Validatable) bool {
	if err := c.ShouldBindJSON(v); err != nil {
		validationFailed(c, []fieldError{{Loc: []any{"body"}, Msg: "invalid JSON body", Type: "json_invalid"}})
		return false
	}
	if err := v.Validate(); err != nil {
		validationFailed(c, toFieldErrors(err))
		return false
	}
	return true
}

func toFieldErrors(err error) []fieldError {
	var errs validation.Errors
	if !errors.As(err, &errs) {
		return []fieldError{{Loc: []any{"body"}, Msg: err.Error()}}
	}
	keys := make([]string, 0, len(errs))
	for k := range errs {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := make([]fieldError, 0, len(keys))
	for _, k := range keys {
		out = append(out, fieldError{Loc: []any{"body", k}, Msg: errs[k].Error()})
	}
	return out
}

func internalError(c *gin.Context, h *Handler, err error) {
	h.logger.WithError(err).WithField("request_id", c.GetString("request_id")).Error("request failed")
	abortDetail(c, http.StatusInternalServerError, "Internal server error")
}
