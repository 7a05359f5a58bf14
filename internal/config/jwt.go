package config

import "fmt"

// JWTConfig holds configuration for JWT token generation and validation.
// Loaded from JWT_SECRET and JWT_EXPIRATION_HOURS (default: 24).
type JWTConfig struct {
	Secret          string `koanf:"secret"`
	ExpirationHours int    `koanf:"expiration_hours"`
}

// Validate checks the JWT settings. Only commands that issue or verify tokens call it.
func (c *JWTConfig) Validate() error {
	if c.Secret == "" {
		return fmt.Errorf("JWT_SECRET is required but not set")
	}
	if c.ExpirationHours < 1 {
		return fmt.Errorf("JWT_EXPIRATION_HOURS must be at least 1 hour, got: %d", c.ExpirationHours)
	}
	return nil
}
