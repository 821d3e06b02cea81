package login

import (
	"bytes"
	"encoding/json"
	"time"

	"golang.org/x/oauth2"

	"github.com/szkolny-go/librus-auth/tokenapi"
)

const classifierOrigin = "ResponseClassifier"

// DefaultExpiresIn is assumed when the endpoint omits expires_in. The
// 24h figure is a convention inherited from the mobile clients, not a
// protocol guarantee.
const DefaultExpiresIn = 86400

// rejections maps the error strings the token endpoint is known to
// return onto their reported kinds. Anything else is an unrecognized
// rejection.
var rejections = map[string]Kind{
	"librus_captcha_needed":           KindCaptchaNeeded,
	"connection_problems":             KindServerReportedConnectivity,
	"invalid_client":                  KindInvalidClient,
	"librus_reg_accept_needed":        KindRegistrationAcceptanceNeeded,
	"librus_change_password_error":    KindPasswordChangeError,
	"librus_password_change_required": KindPasswordChangeRequired,
	"invalid_grant":                   KindInvalidGrant,
}

type tokenBody struct {
	Error        *string `json:"error"`
	AccessToken  string  `json:"access_token"`
	RefreshToken string  `json:"refresh_token"`
	ExpiresIn    *int64  `json:"expires_in"`
}

// Classify turns the raw outcome of any of the four token-exchange
// variants into either a token grant or a typed error. All variants
// share this one handler; the dispatcher decides what to do with the
// result.
func Classify(resp *tokenapi.Response, transportErr error, now time.Time) (*oauth2.Token, *Error) {
	if transportErr != nil {
		return nil, &Error{
			Kind:   KindOther,
			Origin: classifierOrigin,
			Marker: 159,
			Err:    transportErr,
		}
	}

	var body tokenBody
	if resp == nil || emptyBody(resp.Body) || json.Unmarshal(resp.Body, &body) != nil {
		return nil, &Error{
			Kind:    KindMaintenance,
			Origin:  classifierOrigin,
			Marker:  117,
			RawBody: rawBody(resp),
		}
	}

	if body.Error != nil {
		kind, ok := rejections[*body.Error]
		if !ok {
			kind = KindUnrecognizedRejection
		}
		return nil, &Error{
			Kind:    kind,
			Origin:  classifierOrigin,
			Marker:  124,
			RawBody: resp.Body,
		}
	}

	if body.AccessToken == "" || body.RefreshToken == "" {
		return nil, &Error{
			Kind:    KindTokenExchangeMalformed,
			Origin:  classifierOrigin,
			Marker:  154,
			RawBody: resp.Body,
		}
	}

	expiresIn := int64(DefaultExpiresIn)
	if body.ExpiresIn != nil {
		expiresIn = *body.ExpiresIn
	}
	return &oauth2.Token{
		AccessToken:  body.AccessToken,
		RefreshToken: body.RefreshToken,
		Expiry:       now.Add(time.Duration(expiresIn) * time.Second),
	}, nil
}

func emptyBody(b []byte) bool {
	s := string(bytes.TrimSpace(b))
	return s == "" || s == "null"
}

func rawBody(resp *tokenapi.Response) []byte {
	if resp == nil {
		return nil
	}
	return resp.Body
}
