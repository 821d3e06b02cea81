// Package tokenapi builds and sends the form-encoded token-exchange
// requests the Librus OAuth endpoints accept. Interpreting the
// response bodies is the login package's job; this package only knows
// the wire format.
package tokenapi

import (
	"net/url"

	"github.com/szkolny-go/librus-auth/internal/config"
)

// Variant tags a token request so the shared response handler knows
// which exchange is in flight.
type Variant int

const (
	SynergiaGrant Variant = iota + 1
	SynergiaRefresh
	JSTGrant
	JSTRefresh
)

func (v Variant) String() string {
	switch v {
	case SynergiaGrant:
		return "synergia_grant"
	case SynergiaRefresh:
		return "synergia_refresh"
	case JSTGrant:
		return "jst_grant"
	case JSTRefresh:
		return "jst_refresh"
	}
	return "unknown"
}

// Request is a fully parameterized token exchange, ready to be posted
// by Client.Exchange.
type Request struct {
	Variant Variant
	URL     string
	Form    url.Values

	// Authorization carries the fixed base64 client credential for the
	// Synergia family; empty for JST requests, which authenticate via
	// form parameters instead.
	Authorization string
}

// Builder constructs the four request variants from endpoint
// configuration.
type Builder struct {
	cfg config.EndpointConfig
}

func NewBuilder(cfg config.EndpointConfig) *Builder {
	return &Builder{cfg: cfg}
}

// SynergiaGrant exchanges a Synergia username and password for a
// long-term token pair.
func (b *Builder) SynergiaGrant(username, password string) Request {
	return Request{
		Variant: SynergiaGrant,
		URL:     b.cfg.GetTokenURL(),
		Form: url.Values{
			"grant_type":             {"password"},
			"username":               {username},
			"password":               {password},
			"librus_long_term_token": {"1"},
			"librus_rules_accepted":  {"1"},
		},
		Authorization: "Basic " + b.cfg.GetBasicAuthorization(),
	}
}

// SynergiaRefresh renews a Synergia token pair from its refresh token.
func (b *Builder) SynergiaRefresh(refreshToken string) Request {
	return Request{
		Variant: SynergiaRefresh,
		URL:     b.cfg.GetTokenURL(),
		Form: url.Values{
			"grant_type":             {"refresh_token"},
			"refresh_token":          {refreshToken},
			"librus_long_term_token": {"1"},
			"librus_rules_accepted":  {"1"},
		},
		Authorization: "Basic " + b.cfg.GetBasicAuthorization(),
	}
}

// JSTGrant exchanges a one-time code and PIN for a token pair at the
// JST endpoint.
func (b *Builder) JSTGrant(code, pin string) Request {
	return Request{
		Variant: JSTGrant,
		URL:     b.cfg.GetJSTTokenURL(),
		Form: url.Values{
			"grant_type":                   {"implicit_grant"},
			"client_id":                    {b.cfg.GetJSTClientID()},
			"secret":                       {b.cfg.GetJSTSecret()},
			"code":                         {code},
			"pin":                          {pin},
			"librus_rules_accepted":        {"1"},
			"librus_mobile_rules_accepted": {"1"},
			"librus_long_term_token":       {"1"},
		},
	}
}

// JSTRefresh renews a JST token pair from its refresh token.
func (b *Builder) JSTRefresh(refreshToken string) Request {
	return Request{
		Variant: JSTRefresh,
		URL:     b.cfg.GetJSTTokenURL(),
		Form: url.Values{
			"grant_type":              {"refresh_token"},
			"client_id":               {b.cfg.GetJSTClientID()},
			"refresh_token":           {refreshToken},
			"librus_long_term_token":  {"1"},
			"mobile_app_accept_rules": {"1"},
			"synergy_accept_rules":    {"1"},
		},
	}
}
