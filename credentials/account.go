package credentials

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
)

// Account is a typed, lazily cached view over one account's fields in
// a Store. Reads check an in-process cache first and fall through to
// the store on a miss; every write goes through to the store before
// the cache is updated. A missing field reads as the zero value.
type Account struct {
	id    string
	store Store

	mu    sync.Mutex
	cache map[string]string
}

func NewAccount(id string, store Store) *Account {
	return &Account{
		id:    id,
		store: store,
		cache: make(map[string]string),
	}
}

// ID returns the account identifier this view is bound to.
func (a *Account) ID() string { return a.id }

func (a *Account) getString(ctx context.Context, field string) (string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if v, ok := a.cache[field]; ok {
		return v, nil
	}
	v, err := a.store.Get(ctx, a.id, field)
	if errors.Is(err, ErrFieldNotFound) {
		a.cache[field] = ""
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("credentials: get %q: %w", field, err)
	}
	a.cache[field] = v
	return v, nil
}

func (a *Account) setString(ctx context.Context, field, value string) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if err := a.store.Set(ctx, a.id, field, value); err != nil {
		return fmt.Errorf("credentials: set %q: %w", field, err)
	}
	a.cache[field] = value
	return nil
}

func (a *Account) getInt64(ctx context.Context, field string) (int64, error) {
	s, err := a.getString(ctx, field)
	if err != nil || s == "" {
		return 0, err
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("credentials: field %q is not an integer: %w", field, err)
	}
	return n, nil
}

func (a *Account) Login(ctx context.Context) (string, error) {
	return a.getString(ctx, FieldLogin)
}

func (a *Account) SetLogin(ctx context.Context, v string) error {
	return a.setString(ctx, FieldLogin, v)
}

func (a *Account) Password(ctx context.Context) (string, error) {
	return a.getString(ctx, FieldPassword)
}

func (a *Account) SetPassword(ctx context.Context, v string) error {
	return a.setString(ctx, FieldPassword, v)
}

func (a *Account) Code(ctx context.Context) (string, error) {
	return a.getString(ctx, FieldCode)
}

func (a *Account) SetCode(ctx context.Context, v string) error {
	return a.setString(ctx, FieldCode, v)
}

func (a *Account) Pin(ctx context.Context) (string, error) {
	return a.getString(ctx, FieldPin)
}

func (a *Account) SetPin(ctx context.Context, v string) error {
	return a.setString(ctx, FieldPin, v)
}

func (a *Account) AccessToken(ctx context.Context) (string, error) {
	return a.getString(ctx, FieldAccessToken)
}

func (a *Account) RefreshToken(ctx context.Context) (string, error) {
	return a.getString(ctx, FieldRefreshToken)
}

func (a *Account) SetRefreshToken(ctx context.Context, v string) error {
	return a.setString(ctx, FieldRefreshToken, v)
}

// TokenExpiry returns the access token expiry as a unix timestamp, 0
// when no token has been stored yet.
func (a *Account) TokenExpiry(ctx context.Context) (int64, error) {
	return a.getInt64(ctx, FieldTokenExpiry)
}

// SetToken stores a complete token grant: the access token and its
// expiry are always written together, never independently.
func (a *Account) SetToken(ctx context.Context, access, refresh string, expiry int64) error {
	if err := a.setString(ctx, FieldAccessToken, access); err != nil {
		return err
	}
	if err := a.setString(ctx, FieldTokenExpiry, strconv.FormatInt(expiry, 10)); err != nil {
		return err
	}
	return a.setString(ctx, FieldRefreshToken, refresh)
}

func (a *Account) Premium(ctx context.Context) (bool, error) {
	s, err := a.getString(ctx, FieldPremium)
	if err != nil {
		return false, err
	}
	return s == "true", nil
}

func (a *Account) SetPremium(ctx context.Context, v bool) error {
	return a.setString(ctx, FieldPremium, strconv.FormatBool(v))
}

func (a *Account) PortalEmail(ctx context.Context) (string, error) {
	return a.getString(ctx, FieldPortalEmail)
}

func (a *Account) SetPortalEmail(ctx context.Context, v string) error {
	return a.setString(ctx, FieldPortalEmail, v)
}

func (a *Account) PortalPassword(ctx context.Context) (string, error) {
	return a.getString(ctx, FieldPortalPassword)
}

func (a *Account) SetPortalPassword(ctx context.Context, v string) error {
	return a.setString(ctx, FieldPortalPassword, v)
}
