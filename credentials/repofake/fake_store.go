package repofake

import (
	"context"
	"sync"

	"github.com/szkolny-go/librus-auth/credentials"
)

var _ credentials.Store = (*FakeStore)(nil)

// FakeStore keeps credential fields in process memory. Used by tests
// and by the CLI when no redis address is configured.
type FakeStore struct {
	fields map[string]string
	lock   sync.RWMutex
}

func NewFakeStore() *FakeStore {
	return &FakeStore{fields: make(map[string]string)}
}

func key(accountID, field string) string {
	return accountID + "\x00" + field
}

func (s *FakeStore) Get(_ context.Context, accountID, field string) (string, error) {
	s.lock.RLock()
	defer s.lock.RUnlock()
	v, ok := s.fields[key(accountID, field)]
	if !ok {
		return "", credentials.ErrFieldNotFound
	}
	return v, nil
}

func (s *FakeStore) Set(_ context.Context, accountID, field, value string) error {
	s.lock.Lock()
	defer s.lock.Unlock()
	s.fields[key(accountID, field)] = value
	return nil
}

func (s *FakeStore) Delete(_ context.Context, accountID, field string) error {
	s.lock.Lock()
	defer s.lock.Unlock()
	delete(s.fields, key(accountID, field))
	return nil
}

// Len reports the number of stored fields across all accounts.
func (s *FakeStore) Len() int {
	s.lock.RLock()
	defer s.lock.RUnlock()
	return len(s.fields)
}
