package config

import (
	"fmt"
)

// JWTConfig holds configuration for JWT token generation and validation.
type JWTConfig struct {
	Secret          string
	ExpirationHours int
}

// JWT returns the token configuration, or nil when no secret is configured
// and the API runs without authentication.
func (c *Config) JWT() (*JWTConfig, error) {
	if c.JWTSecret == "" {
		return nil, nil
	}
	hours := c.JWTExpirationHours
	if hours == 0 {
		hours = DefaultJWTExpiration
	}
	jwtCfg := &JWTConfig{Secret: c.JWTSecret, ExpirationHours: hours}
	if err := jwtCfg.normalize(); err != nil {
		return nil, err
	}
	return jwtCfg, nil
}

// normalize validates the configuration.
func (c *JWTConfig) normalize() error {
	if c.Secret == "" {
		return fmt.Errorf("JWT_SECRET cannot be empty")
	}
	if len(c.Secret) < 16 {
		return fmt.Errorf("JWT_SECRET must be at least 16 characters")
	}
	if c.ExpirationHours < 1 {
		return fmt.Errorf("JWT_EXPIRATION_HOURS must be at least 1 hour, got: %d", c.ExpirationHours)
	}
	return nil
}
