package login

import "fmt"

// Kind classifies every way a dispatch can fail.
type Kind int

const (
	// KindProfileMissing: no account bound to this session.
	KindProfileMissing Kind = iota + 1
	// KindInvalidLoginMode: login mode value not recognized.
	KindInvalidLoginMode
	// KindLoginMethodUnsupported: portal mode selected but the session
	// lacks the portal-extraction capability.
	KindLoginMethodUnsupported
	// KindInvalidLogin: no usable credential combination for the
	// selected mode.
	KindInvalidLogin

	// Application-level rejections reported by the token endpoint.
	KindCaptchaNeeded
	KindServerReportedConnectivity
	KindInvalidClient
	KindRegistrationAcceptanceNeeded
	KindPasswordChangeError
	KindPasswordChangeRequired
	KindInvalidGrant
	KindUnrecognizedRejection

	// KindTokenExchangeMalformed: success-shaped response missing
	// required fields.
	KindTokenExchangeMalformed
	// KindMaintenance: transport succeeded but the body was empty or
	// unparsable.
	KindMaintenance
	// KindOther: transport-level failure (connection, timeout,
	// unexpected status) or a credential-store failure.
	KindOther
)

func (k Kind) String() string {
	switch k {
	case KindProfileMissing:
		return "profile_missing"
	case KindInvalidLoginMode:
		return "invalid_login_mode"
	case KindLoginMethodUnsupported:
		return "login_method_unsupported"
	case KindInvalidLogin:
		return "invalid_login"
	case KindCaptchaNeeded:
		return "captcha_needed"
	case KindServerReportedConnectivity:
		return "server_reported_connectivity"
	case KindInvalidClient:
		return "invalid_client"
	case KindRegistrationAcceptanceNeeded:
		return "registration_acceptance_needed"
	case KindPasswordChangeError:
		return "password_change_error"
	case KindPasswordChangeRequired:
		return "password_change_required"
	case KindInvalidGrant:
		return "invalid_grant"
	case KindUnrecognizedRejection:
		return "unrecognized_rejection"
	case KindTokenExchangeMalformed:
		return "token_exchange_malformed"
	case KindMaintenance:
		return "maintenance"
	case KindOther:
		return "other"
	}
	return "unknown"
}

// Error is the typed outcome delivered to the completion callback when
// a dispatch fails. Marker is a stable numeric source-location tag for
// diagnostics; RawBody carries the offending response body when one
// exists.
type Error struct {
	Kind       Kind
	Origin     string
	Marker     int
	DispatchID string
	RawBody    []byte
	Err        error
}

func (e *Error) Error() string {
	msg := fmt.Sprintf("%s/%d: %s", e.Origin, e.Marker, e.Kind)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches two *Error values by kind, so callers can use errors.Is
// with a bare &Error{Kind: ...} probe.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}
