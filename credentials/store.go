package credentials

import (
	"context"
	"errors"
)

// ErrFieldNotFound is returned by Store.Get when the field has never
// been written for the given account.
var ErrFieldNotFound = errors.New("credential field not found")

// Store persists per-account credential fields as named strings. All
// fields listed in this package survive process restarts; callers that
// need typed access should go through Account rather than use a Store
// directly.
type Store interface {
	Get(ctx context.Context, accountID, field string) (string, error)
	Set(ctx context.Context, accountID, field, value string) error
	Delete(ctx context.Context, accountID, field string) error
}

// Persisted field names, shared by every Store implementation. The
// "account*" names match the layout written by earlier versions of the
// app so that existing stores keep working.
const (
	FieldLogin        = "accountLogin"
	FieldPassword     = "accountPassword"
	FieldCode         = "accountCode"
	FieldPin          = "accountPin"
	FieldAccessToken  = "accountToken"
	FieldRefreshToken = "accountRefreshToken"
	FieldTokenExpiry  = "accountTokenTime"
	FieldPremium      = "isPremium"

	FieldPortalEmail    = "email"
	FieldPortalPassword = "password"
)

// SecretFields lists the fields whose values must never be persisted
// in plaintext by implementations that support sealing at rest.
var SecretFields = []string{FieldPassword, FieldPin, FieldPortalPassword}
