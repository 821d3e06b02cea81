package login_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/szkolny-go/librus-auth/credentials"
	"github.com/szkolny-go/librus-auth/credentials/repofake"
	"github.com/szkolny-go/librus-auth/internal/config"
	"github.com/szkolny-go/librus-auth/login"
	"github.com/szkolny-go/librus-auth/tokenapi"
)

const (
	testAccountID = "account-1"
	testLogin     = "1234567u"
	testPassword  = "secret-pass"
	testCode      = "ABC123"
	testPin       = "9876"
)

var testNow = time.Unix(1_700_000_000, 0)

type capturedRequest struct {
	path string
	form url.Values
	auth string
}

// testFixture wires a dispatcher against an in-memory store and a
// stubbed token endpoint.
type testFixture struct {
	t       *testing.T
	store   *repofake.FakeStore
	account *credentials.Account
	client  *tokenapi.Client
	builder *tokenapi.Builder

	mu       sync.Mutex
	requests []capturedRequest
	respond  func(w http.ResponseWriter, r *http.Request)

	done        chan *login.Error
	completions atomic.Int32
}

type testEndpoints struct {
	config.Endpoints
	tokenURL string
	jstURL   string
}

func (c testEndpoints) GetTokenURL() string    { return c.tokenURL }
func (c testEndpoints) GetJSTTokenURL() string { return c.jstURL }

func setupTestFixture(t *testing.T) *testFixture {
	t.Helper()

	f := &testFixture{
		t:     t,
		store: repofake.NewFakeStore(),
		done:  make(chan *login.Error, 4),
	}
	f.account = credentials.NewAccount(testAccountID, f.store)
	f.respond = func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte(`{"access_token":"A","refresh_token":"R","expires_in":100}`))
	}

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		f.mu.Lock()
		f.requests = append(f.requests, capturedRequest{
			path: r.URL.Path,
			form: r.PostForm,
			auth: r.Header.Get("Authorization"),
		})
		respond := f.respond
		f.mu.Unlock()
		respond(w, r)
	}))
	t.Cleanup(server.Close)

	cfg := testEndpoints{tokenURL: server.URL + "/token", jstURL: server.URL + "/jst"}
	f.client = tokenapi.NewClient(cfg)
	f.builder = tokenapi.NewBuilder(cfg)
	return f
}

func (f *testFixture) respondWith(status int, body string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.respond = func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(status)
		w.Write([]byte(body))
	}
}

func (f *testFixture) requestCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.requests)
}

func (f *testFixture) lastRequest() capturedRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	require.NotEmpty(f.t, f.requests)
	return f.requests[len(f.requests)-1]
}

// dispatch runs one full dispatch cycle and returns its outcome,
// verifying that the continuation fired exactly once.
func (f *testFixture) dispatch(account *credentials.Account, session *login.Session, opts ...login.Option) *login.Error {
	f.t.Helper()
	dispatcher := f.newDispatcher(account, session, opts...)
	return f.runDispatch(dispatcher)
}

func (f *testFixture) newDispatcher(account *credentials.Account, session *login.Session, opts ...login.Option) *login.Dispatcher {
	f.t.Helper()
	return f.newDispatcherWithExtractor(account, session, nil, opts...)
}

func (f *testFixture) newDispatcherWithExtractor(account *credentials.Account, session *login.Session, extractor login.PortalExtractor, opts ...login.Option) *login.Dispatcher {
	f.t.Helper()
	opts = append([]login.Option{login.WithNowTime(func() time.Time { return testNow })}, opts...)
	dispatcher, err := login.NewDispatcher(login.Deps{
		Account:   account,
		Session:   session,
		Client:    f.client,
		Builder:   f.builder,
		Extractor: extractor,
	}, func(err *login.Error) {
		f.completions.Add(1)
		f.done <- err
	}, opts...)
	require.NoError(f.t, err)
	return dispatcher
}

func (f *testFixture) runDispatch(dispatcher *login.Dispatcher) *login.Error {
	f.t.Helper()
	before := f.completions.Load()
	require.NoError(f.t, dispatcher.Dispatch(context.Background()))

	var outcome *login.Error
	select {
	case outcome = <-f.done:
	case <-time.After(2 * time.Second):
		f.t.Fatal("dispatch did not complete")
	}
	// Give a double completion a chance to show up before counting.
	time.Sleep(20 * time.Millisecond)
	require.Equal(f.t, before+1, f.completions.Load(), "continuation must fire exactly once")
	return outcome
}

func synergiaSession() *login.Session {
	return &login.Session{Mode: login.ModeSynergia, Methods: []login.Method{login.MethodAPI}}
}

func jstSession() *login.Session {
	return &login.Session{Mode: login.ModeJST, Methods: []login.Method{login.MethodAPI}}
}

func TestDispatchTokenStillValid(t *testing.T) {
	f := setupTestFixture(t)
	ctx := context.Background()
	require.NoError(t, f.account.SetToken(ctx, "stored", "refresh", testNow.Unix()+3600))

	outcome := f.dispatch(f.account, synergiaSession())

	require.Nil(t, outcome)
	require.Zero(t, f.requestCount(), "valid token must not trigger a network call")
}

func TestDispatchTokenInsideExpiryMargin(t *testing.T) {
	f := setupTestFixture(t)
	ctx := context.Background()
	// 20s of lifetime left is inside the 30s margin, so the token does
	// not count as valid and, with no credentials stored, the dispatch
	// fails.
	require.NoError(t, f.account.SetToken(ctx, "stored", "", testNow.Unix()+20))

	outcome := f.dispatch(f.account, synergiaSession())

	require.NotNil(t, outcome)
	require.Equal(t, login.KindInvalidLogin, outcome.Kind)
}

func TestDispatchProfileMissing(t *testing.T) {
	f := setupTestFixture(t)

	outcome := f.dispatch(nil, synergiaSession())

	require.NotNil(t, outcome)
	require.Equal(t, login.KindProfileMissing, outcome.Kind)
	require.Zero(t, f.requestCount())
}

func TestDispatchInvalidLoginMode(t *testing.T) {
	f := setupTestFixture(t)

	outcome := f.dispatch(f.account, &login.Session{Mode: login.Mode(99)})

	require.NotNil(t, outcome)
	require.Equal(t, login.KindInvalidLoginMode, outcome.Kind)
	require.Zero(t, f.requestCount())
}

func TestSynergiaFreshGrant(t *testing.T) {
	f := setupTestFixture(t)
	ctx := context.Background()
	require.NoError(t, f.account.SetLogin(ctx, testLogin))
	require.NoError(t, f.account.SetPassword(ctx, testPassword))

	outcome := f.dispatch(f.account, synergiaSession())

	require.Nil(t, outcome)
	req := f.lastRequest()
	require.Equal(t, "/token", req.path)
	require.Equal(t, "password", req.form.Get("grant_type"))
	require.Equal(t, testLogin, req.form.Get("username"))
	require.Equal(t, testPassword, req.form.Get("password"))
	require.Equal(t, "1", req.form.Get("librus_long_term_token"))
	require.Equal(t, "1", req.form.Get("librus_rules_accepted"))
	require.Contains(t, req.auth, "Basic ")
}

func TestSynergiaRefreshTakesPrecedence(t *testing.T) {
	f := setupTestFixture(t)
	ctx := context.Background()
	require.NoError(t, f.account.SetLogin(ctx, testLogin))
	require.NoError(t, f.account.SetPassword(ctx, testPassword))
	require.NoError(t, f.account.SetRefreshToken(ctx, "refresh-1"))

	outcome := f.dispatch(f.account, synergiaSession())

	require.Nil(t, outcome)
	req := f.lastRequest()
	require.Equal(t, "refresh_token", req.form.Get("grant_type"))
	require.Equal(t, "refresh-1", req.form.Get("refresh_token"))
	require.Empty(t, req.form.Get("username"))
}

func TestSynergiaNoUsableCredentials(t *testing.T) {
	f := setupTestFixture(t)

	outcome := f.dispatch(f.account, synergiaSession())

	require.NotNil(t, outcome)
	require.Equal(t, login.KindInvalidLogin, outcome.Kind)
	require.Zero(t, f.requestCount())
}

func TestDispatchPersistsGrant(t *testing.T) {
	f := setupTestFixture(t)
	ctx := context.Background()
	require.NoError(t, f.account.SetLogin(ctx, testLogin))
	require.NoError(t, f.account.SetPassword(ctx, testPassword))

	outcome := f.dispatch(f.account, synergiaSession())

	require.Nil(t, outcome)
	access, err := f.account.AccessToken(ctx)
	require.NoError(t, err)
	require.Equal(t, "A", access)
	refresh, err := f.account.RefreshToken(ctx)
	require.NoError(t, err)
	require.Equal(t, "R", refresh)
	expiry, err := f.account.TokenExpiry(ctx)
	require.NoError(t, err)
	require.Equal(t, testNow.Unix()+100, expiry)
}

func TestJSTGrantFromCode(t *testing.T) {
	f := setupTestFixture(t)
	ctx := context.Background()
	require.NoError(t, f.account.SetCode(ctx, testCode))
	require.NoError(t, f.account.SetPin(ctx, testPin))

	outcome := f.dispatch(f.account, jstSession())

	require.Nil(t, outcome)
	req := f.lastRequest()
	require.Equal(t, "/jst", req.path)
	require.Equal(t, "implicit_grant", req.form.Get("grant_type"))
	require.Equal(t, testCode, req.form.Get("code"))
	require.Equal(t, testPin, req.form.Get("pin"))
	require.NotEmpty(t, req.form.Get("client_id"))
	require.NotEmpty(t, req.form.Get("secret"))
	require.Empty(t, req.auth, "JST requests carry no Authorization header")
}

func TestJSTRefresh(t *testing.T) {
	f := setupTestFixture(t)
	ctx := context.Background()
	require.NoError(t, f.account.SetCode(ctx, testCode))
	require.NoError(t, f.account.SetPin(ctx, testPin))
	require.NoError(t, f.account.SetRefreshToken(ctx, "refresh-jst"))

	outcome := f.dispatch(f.account, jstSession())

	require.Nil(t, outcome)
	req := f.lastRequest()
	require.Equal(t, "/jst", req.path)
	require.Equal(t, "refresh_token", req.form.Get("grant_type"))
	require.Equal(t, "refresh-jst", req.form.Get("refresh_token"))
}

func TestJSTNoUsableCredentials(t *testing.T) {
	f := setupTestFixture(t)

	outcome := f.dispatch(f.account, jstSession())

	require.NotNil(t, outcome)
	require.Equal(t, login.KindInvalidLogin, outcome.Kind)
	require.Zero(t, f.requestCount())
}

func TestLegacyMigrationIsIdempotent(t *testing.T) {
	f := setupTestFixture(t)
	ctx := context.Background()

	blob := credentials.NewLegacyBlob()
	blob.Set(credentials.FieldLogin, testLogin)
	blob.Set(credentials.FieldPassword, testPassword)
	blob.Set(credentials.FieldCode, testCode)
	blob.Set(credentials.FieldPin, testPin)
	session := synergiaSession()
	session.Legacy = blob

	outcome := f.dispatch(f.account, session)
	require.Nil(t, outcome)

	require.True(t, blob.Empty(), "migration must drain the blob")
	migratedLogin, err := f.account.Login(ctx)
	require.NoError(t, err)
	require.Equal(t, testLogin, migratedLogin)
	migratedPin, err := f.account.Pin(ctx)
	require.NoError(t, err)
	require.Equal(t, testPin, migratedPin)
	fieldsAfterFirst := f.store.Len()

	// Second dispatch with the drained blob: the freshly granted token
	// is still valid, nothing migrates, nothing changes.
	outcome = f.dispatch(f.account, session)
	require.Nil(t, outcome)
	require.Equal(t, fieldsAfterFirst, f.store.Len())
	require.Equal(t, 1, f.requestCount())
}

func TestInvalidGrantRejection(t *testing.T) {
	f := setupTestFixture(t)
	ctx := context.Background()
	require.NoError(t, f.account.SetRefreshToken(ctx, "stale"))
	f.respondWith(http.StatusBadRequest, `{"error":"invalid_grant"}`)

	outcome := f.dispatch(f.account, synergiaSession())

	require.NotNil(t, outcome)
	require.Equal(t, login.KindInvalidGrant, outcome.Kind)
	require.NotEqual(t, login.KindMaintenance, outcome.Kind)
	require.NotEqual(t, login.KindOther, outcome.Kind)
}

func TestServerErrorIsTransportFailure(t *testing.T) {
	f := setupTestFixture(t)
	ctx := context.Background()
	require.NoError(t, f.account.SetRefreshToken(ctx, "refresh-1"))
	f.respondWith(http.StatusInternalServerError, `{"error":"invalid_grant"}`)

	outcome := f.dispatch(f.account, synergiaSession())

	require.NotNil(t, outcome)
	require.Equal(t, login.KindOther, outcome.Kind, "a 500 must never reach the rejection mapping")
}

func TestMaintenanceBody(t *testing.T) {
	f := setupTestFixture(t)
	ctx := context.Background()
	require.NoError(t, f.account.SetRefreshToken(ctx, "refresh-1"))
	f.respondWith(http.StatusOK, "")

	outcome := f.dispatch(f.account, synergiaSession())

	require.NotNil(t, outcome)
	require.Equal(t, login.KindMaintenance, outcome.Kind)
}

func TestPortalModeRequiresMethod(t *testing.T) {
	f := setupTestFixture(t)
	session := &login.Session{Mode: login.ModePortal, Methods: []login.Method{login.MethodAPI}}

	outcome := f.dispatch(f.account, session)

	require.NotNil(t, outcome)
	require.Equal(t, login.KindLoginMethodUnsupported, outcome.Kind)
	require.Zero(t, f.requestCount())
}

func TestPortalModeDelegatesToExtractor(t *testing.T) {
	f := setupTestFixture(t)
	session := &login.Session{Mode: login.ModePortal, Methods: []login.Method{login.MethodPortal}}
	extractor := &fakeExtractor{}

	dispatcher := f.newDispatcherWithExtractor(f.account, session, extractor)
	outcome := f.runDispatch(dispatcher)

	require.Nil(t, outcome)
	require.Equal(t, 1, extractor.calls)
	require.Zero(t, f.requestCount(), "portal mode issues no direct token request")
}

func TestPortalModeExtractorError(t *testing.T) {
	f := setupTestFixture(t)
	session := &login.Session{Mode: login.ModePortal, Methods: []login.Method{login.MethodPortal}}
	extractor := &fakeExtractor{err: &login.Error{Kind: login.KindMaintenance, Origin: "PortalExtractor", Marker: 1}}

	dispatcher := f.newDispatcherWithExtractor(f.account, session, extractor)
	outcome := f.runDispatch(dispatcher)

	require.NotNil(t, outcome)
	require.Equal(t, login.KindMaintenance, outcome.Kind)
}

func TestSecondDispatchRejected(t *testing.T) {
	f := setupTestFixture(t)
	ctx := context.Background()
	require.NoError(t, f.account.SetToken(ctx, "stored", "refresh", testNow.Unix()+3600))

	dispatcher := f.newDispatcher(f.account, synergiaSession())
	outcome := f.runDispatch(dispatcher)
	require.Nil(t, outcome)

	require.ErrorIs(t, dispatcher.Dispatch(ctx), login.ErrAlreadyDispatched)
	time.Sleep(20 * time.Millisecond)
	require.Equal(t, int32(1), f.completions.Load())
	require.Equal(t, login.StateCompletedSuccess, dispatcher.State())
}

func TestDispatchStateProgression(t *testing.T) {
	f := setupTestFixture(t)
	ctx := context.Background()
	require.NoError(t, f.account.SetRefreshToken(ctx, "refresh-1"))

	dispatcher := f.newDispatcher(f.account, synergiaSession())
	require.Equal(t, login.StateIdle, dispatcher.State())

	outcome := f.runDispatch(dispatcher)
	require.Nil(t, outcome)
	require.Equal(t, login.StateCompletedSuccess, dispatcher.State())
}

func TestErrorCarriesDispatchID(t *testing.T) {
	f := setupTestFixture(t)

	dispatcher := f.newDispatcher(f.account, synergiaSession())
	outcome := f.runDispatch(dispatcher)

	require.NotNil(t, outcome)
	require.Equal(t, dispatcher.DispatchID(), outcome.DispatchID)
}

type fakeExtractor struct {
	calls int
	err   *login.Error
}

func (e *fakeExtractor) Extract(_ context.Context, _ *credentials.Account, complete func(err *login.Error)) {
	e.calls++
	complete(e.err)
}
