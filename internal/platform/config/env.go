package config

import (
	"fmt"

	"github.com/caarlos0/env/v11"
)

// ParseEnv populates target from environment variables according to its
// `env` struct tags. Defaults declared with `envDefault` apply when the
// variable is unset.
func ParseEnv(target any) error {
	if err := env.Parse(target); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}
	return nil
}
