package apierr

// ShouldRetry reports whether the request executor may transparently retry
// after err. Only transient transport and server-side conditions qualify;
// client errors other than 429 are surfaced on first occurrence even when
// their kind is nominally retryable.
func ShouldRetry(err error) bool {
	if err == nil {
		return false
	}
	switch KindOf(err) {
	case KindNetwork, KindTimeout, KindRateLimited, KindServerError:
		return true
	default:
		return false
	}
}

// UserMessage renders the text shown to a person for err.
func UserMessage(err error) string {
	if err == nil {
		return ""
	}
	ce := As(err)
	switch ce.Kind {
	case KindAuthentication:
		return MsgInvalidCredentials
	case KindValidation:
		msg := ce.Message
		if msg == "" {
			msg = MsgValidation
		}
		return msg + formatFields(ce.FieldErrors)
	case KindConflict, KindNotFound, KindAuthorization:
		return ce.Message
	default:
		msg := defaultMessage(ce.Kind)
		if ce.Retryable {
			msg += ", please try again"
		}
		return msg
	}
}
