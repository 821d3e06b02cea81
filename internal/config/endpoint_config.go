package config

import "time"

type EndpointConfig interface {
	GetTokenURL() string
	GetJSTTokenURL() string
	GetBasicAuthorization() string
	GetJSTClientID() string
	GetJSTSecret() string
	GetUserAgent() string
	GetHTTPTimeout() time.Duration
	GetDefaultTokenLifetime() time.Duration
}

type Endpoints struct{}

var _ EndpointConfig = Endpoints{}

func (Endpoints) GetTokenURL() string {
	return GetEnv("LIBRUS_TOKEN_URL", "https://api.librus.pl/OAuth/Token")
}

func (Endpoints) GetJSTTokenURL() string {
	return GetEnv("LIBRUS_JST_TOKEN_URL", "https://api.librus.pl/OAuth/TokenJST")
}

// GetBasicAuthorization returns the fixed client credential sent with
// Synergia-family token requests, already base64-encoded.
func (Endpoints) GetBasicAuthorization() string {
	return GetEnv("LIBRUS_BASIC_AUTHORIZATION", "Mzc6ODM2NTE0OTM5ZWJjNWU1NDQ1ZWNjZGRmNDYxMDczNzY=")
}

func (Endpoints) GetJSTClientID() string {
	return GetEnv("LIBRUS_JST_CLIENT_ID", "wmSyUMo8llDAs4y9tJVYY92oyZ6h4lAt7KCuy0Gv")
}

func (Endpoints) GetJSTSecret() string {
	return GetEnv("LIBRUS_JST_SECRET", "fS8eao9jRZRCSqHN9cKzrwGvRMBRk4m16XuqpdYY")
}

func (Endpoints) GetUserAgent() string {
	return GetEnv("LIBRUS_USER_AGENT", "LibrusMobileApp")
}

func (Endpoints) GetHTTPTimeout() time.Duration {
	return 30 * time.Second
}

// GetDefaultTokenLifetime is used when the token endpoint omits
// expires_in. The 24h value is a convention inherited from the mobile
// clients, not a documented protocol guarantee.
func (Endpoints) GetDefaultTokenLifetime() time.Duration {
	return 24 * time.Hour
}
