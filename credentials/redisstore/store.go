package redisstore

import (
	"context"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
	"golang.org/x/crypto/chacha20poly1305"

	"github.com/szkolny-go/librus-auth/credentials"
)

var _ credentials.Store = (*Store)(nil)

// ErrKeySize is returned by New when the sealing key is not the
// 32 bytes chacha20poly1305 requires.
var ErrKeySize = errors.New("redisstore: sealing key must be 32 bytes")

// Store persists credential fields in redis under
// librus:cred:{account}:{field}. Fields listed in
// credentials.SecretFields are sealed with XChaCha20-Poly1305 before
// they reach redis, so passwords and PINs never appear there in
// plaintext.
type Store struct {
	rdb  redis.UniversalClient
	aead cipher.AEAD
}

func New(rdb redis.UniversalClient, sealingKey []byte) (*Store, error) {
	if len(sealingKey) != chacha20poly1305.KeySize {
		return nil, ErrKeySize
	}
	aead, err := chacha20poly1305.NewX(sealingKey)
	if err != nil {
		return nil, fmt.Errorf("redisstore: %w", err)
	}
	return &Store{rdb: rdb, aead: aead}, nil
}

func redisKey(accountID, field string) string {
	return "librus:cred:" + accountID + ":" + field
}

func isSecret(field string) bool {
	for _, f := range credentials.SecretFields {
		if f == field {
			return true
		}
	}
	return false
}

func (s *Store) Get(ctx context.Context, accountID, field string) (string, error) {
	v, err := s.rdb.Get(ctx, redisKey(accountID, field)).Result()
	if errors.Is(err, redis.Nil) {
		return "", credentials.ErrFieldNotFound
	}
	if err != nil {
		return "", fmt.Errorf("redisstore: get %q: %w", field, err)
	}
	if isSecret(field) {
		return s.unseal(accountID, field, v)
	}
	return v, nil
}

func (s *Store) Set(ctx context.Context, accountID, field, value string) error {
	if isSecret(field) {
		sealed, err := s.seal(accountID, field, value)
		if err != nil {
			return err
		}
		value = sealed
	}
	if err := s.rdb.Set(ctx, redisKey(accountID, field), value, 0).Err(); err != nil {
		return fmt.Errorf("redisstore: set %q: %w", field, err)
	}
	return nil
}

func (s *Store) Delete(ctx context.Context, accountID, field string) error {
	if err := s.rdb.Del(ctx, redisKey(accountID, field)).Err(); err != nil {
		return fmt.Errorf("redisstore: delete %q: %w", field, err)
	}
	return nil
}

// seal encrypts value with a random nonce and binds the ciphertext to
// its account and field so sealed values cannot be swapped between
// keys.
func (s *Store) seal(accountID, field, value string) (string, error) {
	nonce := make([]byte, s.aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("redisstore: nonce: %w", err)
	}
	box := s.aead.Seal(nonce, nonce, []byte(value), []byte(redisKey(accountID, field)))
	return base64.StdEncoding.EncodeToString(box), nil
}

func (s *Store) unseal(accountID, field, stored string) (string, error) {
	box, err := base64.StdEncoding.DecodeString(stored)
	if err != nil {
		return "", fmt.Errorf("redisstore: decode %q: %w", field, err)
	}
	if len(box) < s.aead.NonceSize() {
		return "", fmt.Errorf("redisstore: sealed value for %q too short", field)
	}
	nonce, ciphertext := box[:s.aead.NonceSize()], box[s.aead.NonceSize():]
	plain, err := s.aead.Open(nil, nonce, ciphertext, []byte(redisKey(accountID, field)))
	if err != nil {
		return "", fmt.Errorf("redisstore: unseal %q: %w", field, err)
	}
	return string(plain), nil
}
