package login

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/szkolny-go/librus-auth/credentials"
	"github.com/szkolny-go/librus-auth/tokenapi"
)

const dispatcherOrigin = "LoginDispatcher"

// tokenValidityMargin guards against a token expiring between the
// validity check and its first use.
const tokenValidityMargin = 30

// ErrAlreadyDispatched is returned by Dispatch when the dispatcher has
// been run before. Each dispatch attempt needs a fresh Dispatcher.
var ErrAlreadyDispatched = errors.New("login: dispatcher already dispatched")

// State tracks one dispatch through its lifecycle. Completed states
// are terminal.
type State int32

const (
	StateIdle State = iota
	StateCheckingToken
	StateSatisfied
	StateDispatching
	StateRequestInFlight
	StateCompletedSuccess
	StateCompletedError
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateCheckingToken:
		return "checking_token"
	case StateSatisfied:
		return "satisfied"
	case StateDispatching:
		return "dispatching"
	case StateRequestInFlight:
		return "request_in_flight"
	case StateCompletedSuccess:
		return "completed_success"
	case StateCompletedError:
		return "completed_error"
	}
	return "unknown"
}

// CompletionFunc receives the outcome of a dispatch: nil on success, a
// typed error otherwise. It is invoked exactly once per dispatch,
// either synchronously (token already valid, precondition failures) or
// from the goroutine handling the token-endpoint response.
type CompletionFunc func(err *Error)

// PortalExtractor obtains Synergia tokens from an authenticated
// web-portal session. Its mechanics are outside this package; it must
// call complete exactly once, with nil on success.
type PortalExtractor interface {
	Extract(ctx context.Context, account *credentials.Account, complete func(err *Error))
}

// Deps holds the collaborators a Dispatcher needs.
type Deps struct {
	// Account is the bound account's credential view; nil when the
	// session has no profile, which fails the dispatch immediately.
	Account *credentials.Account
	Session *Session
	Client  *tokenapi.Client
	Builder *tokenapi.Builder
	// Extractor is required only for portal mode.
	Extractor PortalExtractor
}

// Dispatcher runs one login attempt for one account. It is
// single-shot: construct, Dispatch once, receive the completion.
// Concurrent dispatchers for different accounts are fully independent.
type Dispatcher struct {
	deps       Deps
	complete   CompletionFunc
	nowTime    func() time.Time
	logger     zerolog.Logger
	dispatchID string

	mu    sync.Mutex
	state State
	once  sync.Once
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithNowTime sets the clock (primarily for testing).
func WithNowTime(nowFunc func() time.Time) Option {
	return func(d *Dispatcher) {
		d.nowTime = nowFunc
	}
}

// WithLogger attaches a logger; dispatch ID and mode fields are added
// automatically.
func WithLogger(logger zerolog.Logger) Option {
	return func(d *Dispatcher) {
		d.logger = logger
	}
}

// NewDispatcher validates the dependencies and prepares a single-shot
// dispatcher.
func NewDispatcher(deps Deps, complete CompletionFunc, options ...Option) (*Dispatcher, error) {
	if deps.Session == nil {
		return nil, errors.New("[NewDispatcher] Session is required")
	}
	if deps.Client == nil {
		return nil, errors.New("[NewDispatcher] Client is required")
	}
	if deps.Builder == nil {
		return nil, errors.New("[NewDispatcher] Builder is required")
	}
	if complete == nil {
		return nil, errors.New("[NewDispatcher] completion callback is required")
	}

	d := &Dispatcher{
		deps:       deps,
		complete:   complete,
		nowTime:    time.Now,
		logger:     zerolog.Nop(),
		dispatchID: uuid.NewString(),
	}
	for _, opt := range options {
		opt(d)
	}
	d.logger = d.logger.With().
		Str("dispatch_id", d.dispatchID).
		Str("mode", deps.Session.Mode.String()).
		Logger()
	return d, nil
}

// DispatchID returns the correlation ID attached to logs and errors of
// this dispatch.
func (d *Dispatcher) DispatchID() string { return d.dispatchID }

// State returns the dispatcher's current lifecycle state.
func (d *Dispatcher) State() State {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.state
}

func (d *Dispatcher) setState(s State) {
	d.mu.Lock()
	d.state = s
	d.mu.Unlock()
	d.logger.Debug().Str("state", s.String()).Msg("state transition")
}

// Dispatch runs the login attempt. It is synchronous up to issuing at
// most one token request; the completion callback then fires from the
// response goroutine. Calling Dispatch a second time returns
// ErrAlreadyDispatched without touching the continuation.
func (d *Dispatcher) Dispatch(ctx context.Context) error {
	d.mu.Lock()
	if d.state != StateIdle {
		d.mu.Unlock()
		return ErrAlreadyDispatched
	}
	d.state = StateCheckingToken
	d.mu.Unlock()

	if d.deps.Account == nil {
		d.fail(&Error{Kind: KindProfileMissing, Origin: dispatcherOrigin, Marker: 19})
		return nil
	}

	valid, err := d.tokenValid(ctx)
	if err != nil {
		d.fail(&Error{Kind: KindOther, Origin: dispatcherOrigin, Marker: 40, Err: err})
		return nil
	}
	if valid {
		d.setState(StateSatisfied)
		d.succeed()
		return nil
	}

	switch d.deps.Session.Mode {
	case ModePortal:
		d.loginWithPortal(ctx)
	case ModeSynergia:
		d.loginWithSynergia(ctx)
	case ModeJST:
		d.loginWithJST(ctx)
	default:
		d.fail(&Error{Kind: KindInvalidLoginMode, Origin: dispatcherOrigin, Marker: 25})
	}
	return nil
}

// tokenValid reports whether the stored access token can still be
// used, with a safety margin before its expiry.
func (d *Dispatcher) tokenValid(ctx context.Context) (bool, error) {
	expiry, err := d.deps.Account.TokenExpiry(ctx)
	if err != nil {
		return false, err
	}
	access, err := d.deps.Account.AccessToken(ctx)
	if err != nil {
		return false, err
	}
	return expiry-tokenValidityMargin > d.nowTime().Unix() && access != "", nil
}

func (d *Dispatcher) loginWithPortal(ctx context.Context) {
	if d.deps.Extractor == nil || !d.deps.Session.SupportsMethod(MethodPortal) {
		d.fail(&Error{Kind: KindLoginMethodUnsupported, Origin: dispatcherOrigin, Marker: 26})
		return
	}
	d.setState(StateDispatching)
	d.deps.Extractor.Extract(ctx, d.deps.Account, func(err *Error) {
		if err != nil {
			d.fail(err)
			return
		}
		d.succeed()
	})
}

func (d *Dispatcher) loginWithSynergia(ctx context.Context) {
	if err := d.migrateLegacy(ctx); err != nil {
		d.fail(&Error{Kind: KindOther, Origin: dispatcherOrigin, Marker: 87, Err: err})
		return
	}
	refresh, err := d.deps.Account.RefreshToken(ctx)
	if err != nil {
		d.fail(&Error{Kind: KindOther, Origin: dispatcherOrigin, Marker: 88, Err: err})
		return
	}
	if refresh != "" {
		d.send(ctx, d.deps.Builder.SynergiaRefresh(refresh))
		return
	}
	username, err := d.deps.Account.Login(ctx)
	if err == nil {
		var password string
		if password, err = d.deps.Account.Password(ctx); err == nil && username != "" && password != "" {
			d.send(ctx, d.deps.Builder.SynergiaGrant(username, password))
			return
		}
	}
	if err != nil {
		d.fail(&Error{Kind: KindOther, Origin: dispatcherOrigin, Marker: 89, Err: err})
		return
	}
	// token expired and no login data present
	d.fail(&Error{Kind: KindInvalidLogin, Origin: dispatcherOrigin, Marker: 91})
}

func (d *Dispatcher) loginWithJST(ctx context.Context) {
	if err := d.migrateLegacy(ctx); err != nil {
		d.fail(&Error{Kind: KindOther, Origin: dispatcherOrigin, Marker: 104, Err: err})
		return
	}
	refresh, err := d.deps.Account.RefreshToken(ctx)
	if err != nil {
		d.fail(&Error{Kind: KindOther, Origin: dispatcherOrigin, Marker: 105, Err: err})
		return
	}
	if refresh != "" {
		d.send(ctx, d.deps.Builder.JSTRefresh(refresh))
		return
	}
	code, err := d.deps.Account.Code(ctx)
	if err == nil {
		var pin string
		if pin, err = d.deps.Account.Pin(ctx); err == nil && code != "" && pin != "" {
			d.send(ctx, d.deps.Builder.JSTGrant(code, pin))
			return
		}
	}
	if err != nil {
		d.fail(&Error{Kind: KindOther, Origin: dispatcherOrigin, Marker: 106, Err: err})
		return
	}
	// token expired and no login data present
	d.fail(&Error{Kind: KindInvalidLogin, Origin: dispatcherOrigin, Marker: 110})
}

// migrateLegacy drains credential fields an older app version left in
// the session blob into the durable store. Absent fields are no-ops,
// so the migration is idempotent: after the first run the blob is
// empty and later dispatches skip it.
func (d *Dispatcher) migrateLegacy(ctx context.Context) error {
	blob := d.deps.Session.Legacy
	if blob == nil {
		return nil
	}
	setters := []struct {
		field string
		set   func(context.Context, string) error
	}{
		{credentials.FieldLogin, d.deps.Account.SetLogin},
		{credentials.FieldPassword, d.deps.Account.SetPassword},
		{credentials.FieldCode, d.deps.Account.SetCode},
		{credentials.FieldPin, d.deps.Account.SetPin},
	}
	for _, s := range setters {
		if !blob.Has(s.field) {
			continue
		}
		if err := s.set(ctx, blob.GetString(s.field)); err != nil {
			return err
		}
		blob.Remove(s.field)
		d.logger.Debug().Str("field", s.field).Msg("migrated legacy credential field")
	}
	return nil
}

// send issues the single outbound request of this dispatch and hands
// its outcome to the shared classifier on a transport goroutine.
func (d *Dispatcher) send(ctx context.Context, req tokenapi.Request) {
	d.setState(StateRequestInFlight)
	d.logger.Debug().Str("variant", req.Variant.String()).Msg("issuing token request")

	go func() {
		resp, err := d.deps.Client.Exchange(ctx, req)
		token, cerr := Classify(resp, err, d.nowTime())
		if cerr != nil {
			d.fail(cerr)
			return
		}
		if err := d.deps.Account.SetToken(ctx, token.AccessToken, token.RefreshToken, token.Expiry.Unix()); err != nil {
			d.fail(&Error{Kind: KindOther, Origin: dispatcherOrigin, Marker: 142, Err: err})
			return
		}
		d.succeed()
	}()
}

func (d *Dispatcher) succeed() {
	d.once.Do(func() {
		d.setState(StateCompletedSuccess)
		d.logger.Debug().Msg("dispatch completed")
		d.complete(nil)
	})
}

func (d *Dispatcher) fail(e *Error) {
	d.once.Do(func() {
		if e.DispatchID == "" {
			e.DispatchID = d.dispatchID
		}
		d.setState(StateCompletedError)
		d.logger.Warn().
			Str("kind", e.Kind.String()).
			Int("marker", e.Marker).
			Msg("dispatch failed")
		d.complete(e)
	})
}
