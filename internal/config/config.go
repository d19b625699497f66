package config

import (
	"fmt"
	"time"
)

type Config interface {
	EnvConfig
	CorsConfig
	SessionConfig
	OIDCConfig
	SecurityConfig
}

type EnvConfig interface {
	GetPort() string
	GetAppName() string
	GetBaseURL() string
	GetDBPath() string
	GetLogLevel() string
	GetEnv() string
}

type CorsConfig interface {
	GetAllowedOrigins() AllowedOrigins
	GetAllowedMethods() string
	GetAllowedHeaders() string
}

type mainConfig struct {
	EnvVars
	Cors
	Session
	OIDC
	Security
}

// New returns a configuration built from environment variables and defaults only.
func New() Config {
	return mainConfig{
		Session:  sessionFromEnv(),
		Security: securityFromEnv(),
	}
}

// Load builds the configuration from the environment, overlays the optional
// TOML session file named by SESSION_CONFIG_FILE and validates the result.
func Load() (Config, error) {
	c := mainConfig{
		Session:  sessionFromEnv(),
		Security: securityFromEnv(),
	}

	if path := GetEnv(sessionFileEnvVar, ""); path != "" {
		overlaid, err := overlaySessionFile(c.Session, path)
		if err != nil {
			return nil, fmt.Errorf("[config Load] %w", err)
		}
		c.Session = overlaid
	}

	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("[config Load] invalid configuration: %w", err)
	}
	return c, nil
}

// Validate checks the settings that would make the server misbehave at runtime.
func (c mainConfig) Validate() error {
	if err := c.Session.Validate(); err != nil {
		return err
	}
	if c.GetEnv() != "DEV" && c.GetCookieSecret() == defaultCookieSecret {
		return fmt.Errorf("%s must be set outside DEV", cookieSecretEnvVar)
	}
	if c.GetMaxSessionAge() < time.Minute {
		return fmt.Errorf("max session age must be at least a minute, got %s", c.GetMaxSessionAge())
	}
	return nil
}
