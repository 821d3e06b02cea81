package credentials

import (
	"encoding/json"
	"sync"
)

// LegacyBlob is a session-scoped bag of credential fields written by
// an older storage format (accountLogin, accountPassword, accountCode,
// accountPin). It exists only to be drained into a Store: the login
// flow copies each present field into the durable per-account fields
// and removes it here, so repeated logins find the blob empty.
type LegacyBlob struct {
	mu     sync.Mutex
	fields map[string]string
}

func NewLegacyBlob() *LegacyBlob {
	return &LegacyBlob{fields: make(map[string]string)}
}

// ParseLegacyBlob decodes the JSON object an older app version stored
// alongside the login session. Non-string values are ignored.
func ParseLegacyBlob(raw []byte) (*LegacyBlob, error) {
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, err
	}
	b := NewLegacyBlob()
	for k, v := range m {
		if s, ok := v.(string); ok {
			b.fields[k] = s
		}
	}
	return b, nil
}

func (b *LegacyBlob) Has(key string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	_, ok := b.fields[key]
	return ok
}

func (b *LegacyBlob) GetString(key string) string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.fields[key]
}

func (b *LegacyBlob) Set(key, value string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.fields[key] = value
}

func (b *LegacyBlob) Remove(key string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.fields, key)
}

func (b *LegacyBlob) Empty() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.fields) == 0
}

func (b *LegacyBlob) MarshalJSON() ([]byte, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return json.Marshal(b.fields)
}
