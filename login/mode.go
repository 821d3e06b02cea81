// Package login decides how an account proves its identity to the
// Librus API: it checks whether the stored access token is still
// usable and, if not, runs one of three mutually exclusive login
// modes, delivering the outcome to a completion callback that fires
// exactly once.
package login

import "github.com/szkolny-go/librus-auth/credentials"

// Mode selects the credential strategy for a login session. It is
// chosen when the session is created and never changes afterwards.
type Mode int

const (
	// ModePortal obtains Synergia tokens indirectly, by extracting
	// them from an authenticated web-portal session.
	ModePortal Mode = iota + 1
	// ModeSynergia authenticates with a Synergia login and password.
	ModeSynergia
	// ModeJST authenticates with a one-time code and PIN.
	ModeJST
)

func (m Mode) String() string {
	switch m {
	case ModePortal:
		return "portal"
	case ModeSynergia:
		return "synergia"
	case ModeJST:
		return "jst"
	}
	return "unknown"
}

// Method is a login capability a session may support. A session in
// portal mode must support MethodPortal for dispatch to proceed.
type Method int

const (
	MethodPortal Method = iota + 1
	MethodAPI
)

// Session carries the immutable login configuration: the selected
// mode, the supported methods, and the optional legacy credential
// blob left behind by older app versions.
type Session struct {
	Mode    Mode
	Methods []Method
	Legacy  *credentials.LegacyBlob
}

func (s *Session) SupportsMethod(m Method) bool {
	for _, sm := range s.Methods {
		if sm == m {
			return true
		}
	}
	return false
}
