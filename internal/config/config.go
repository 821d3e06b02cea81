package config

type Config interface {
	EnvConfig
	EndpointConfig
}

type mainConfig struct {
	EnvVars
	Endpoints
}

func New() Config {
	return mainConfig{}
}
