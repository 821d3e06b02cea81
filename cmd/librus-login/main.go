package main

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"runtime/debug"
	"time"

	"github.com/common-nighthawk/go-figure"
	"github.com/golang-jwt/jwt/v5"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/szkolny-go/librus-auth/credentials"
	"github.com/szkolny-go/librus-auth/credentials/redisstore"
	"github.com/szkolny-go/librus-auth/credentials/repofake"
	"github.com/szkolny-go/librus-auth/internal/config"
	"github.com/szkolny-go/librus-auth/login"
	"github.com/szkolny-go/librus-auth/tokenapi"
)

func main() {
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	if err := run(); err != nil {
		log.Fatal().Err(err).Msg("librus-login failed")
	}
}

func run() (returnError error) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().Any("panic", r).Msg("recovered from panic")
			debug.PrintStack()
			returnError = errors.New("panic recovered")
		}
	}()

	c := config.New()
	displayAppname(c.GetAppName())

	if len(os.Args) > 2 && os.Args[1] == "inspect" {
		return inspectToken(os.Args[2])
	}
	return dispatch(c)
}

// dispatch runs a single login attempt with credentials taken from the
// environment and prints the stored token on success.
func dispatch(c config.Config) error {
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	store, err := newStore(c)
	if err != nil {
		return err
	}

	account := credentials.NewAccount(config.GetEnv("LIBRUS_ACCOUNT_ID", "default"), store)
	session, err := sessionFromEnv(ctx, account)
	if err != nil {
		return err
	}

	done := make(chan *login.Error, 1)
	dispatcher, err := login.NewDispatcher(login.Deps{
		Account: account,
		Session: session,
		Client:  tokenapi.NewClient(c),
		Builder: tokenapi.NewBuilder(c),
	}, func(err *login.Error) {
		done <- err
	}, login.WithLogger(log.Logger))
	if err != nil {
		return err
	}

	if err := dispatcher.Dispatch(ctx); err != nil {
		return err
	}
	if loginErr := <-done; loginErr != nil {
		return fmt.Errorf("login failed (%s): %w", loginErr.Kind, loginErr)
	}

	access, err := account.AccessToken(ctx)
	if err != nil {
		return err
	}
	expiry, err := account.TokenExpiry(ctx)
	if err != nil {
		return err
	}
	log.Info().
		Str("access_token", access).
		Time("expires", time.Unix(expiry, 0)).
		Msg("login succeeded")
	return nil
}

func newStore(c config.Config) (credentials.Store, error) {
	addr := c.GetRedisAddr()
	if addr == "" {
		log.Info().Msg("no REDIS_ADDR configured, credentials stay in process memory")
		return repofake.NewFakeStore(), nil
	}
	key, err := base64.StdEncoding.DecodeString(config.GetEnv("LIBRUS_SEAL_KEY", ""))
	if err != nil {
		return nil, fmt.Errorf("decode LIBRUS_SEAL_KEY: %w", err)
	}
	return redisstore.New(redis.NewClient(&redis.Options{Addr: addr}), key)
}

func sessionFromEnv(ctx context.Context, account *credentials.Account) (*login.Session, error) {
	session := &login.Session{Methods: []login.Method{login.MethodAPI}}

	switch mode := config.GetEnv("LIBRUS_MODE", "synergia"); mode {
	case "synergia":
		session.Mode = login.ModeSynergia
		if err := seed(ctx, account.SetLogin, "LIBRUS_LOGIN"); err != nil {
			return nil, err
		}
		if err := seed(ctx, account.SetPassword, "LIBRUS_PASSWORD"); err != nil {
			return nil, err
		}
	case "jst":
		session.Mode = login.ModeJST
		if err := seed(ctx, account.SetCode, "LIBRUS_CODE"); err != nil {
			return nil, err
		}
		if err := seed(ctx, account.SetPin, "LIBRUS_PIN"); err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("unsupported LIBRUS_MODE %q", mode)
	}
	return session, nil
}

func seed(ctx context.Context, set func(context.Context, string) error, envVar string) error {
	if v := os.Getenv(envVar); v != "" {
		return set(ctx, v)
	}
	return nil
}

// inspectToken decodes the claims of a JWT-shaped portal token without
// verifying its signature. Synergia API tokens are opaque and will not
// decode here.
func inspectToken(token string) error {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return fmt.Errorf("not a decodable JWT: %w", err)
	}
	out, err := json.MarshalIndent(claims, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(out))
	return nil
}

func displayAppname(appname string) {
	myFigure := figure.NewFigure(appname, "cybermedium", true)
	myFigure.Print()
	fmt.Println()
}
