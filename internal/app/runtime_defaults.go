package app

import (
	"fmt"
	"strings"

	"github.com/cloudsuite/cloudauth/pkg/crypto"
)

const (
	jwtSecretBytes      = 48
	boundarySecretBytes = 32
)

// ApplyRuntimeDefaults ensures critical secrets are populated even when no
// configuration file is supplied. It returns a map describing which keys were
// generated so callers can log the event without exposing values.
//
// A generated JWT secret only works for single-instance deployments: the
// gateway and auth service must share the secret, so clustered setups have to
// configure it explicitly.
func ApplyRuntimeDefaults(cfg *Config) (map[string]bool, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is nil")
	}

	generated := make(map[string]bool)

	if strings.TrimSpace(cfg.Auth.JWT.Secret) == "" {
		secret, err := crypto.GenerateSecret(jwtSecretBytes)
		if err != nil {
			return nil, fmt.Errorf("generate jwt secret: %w", err)
		}
		cfg.Auth.JWT.Secret = secret
		generated["auth.jwt.secret"] = true
	}

	if strings.TrimSpace(cfg.Auth.BoundarySecret) == "" {
		secret, err := crypto.GenerateSecret(boundarySecretBytes)
		if err != nil {
			return nil, fmt.Errorf("generate boundary secret: %w", err)
		}
		cfg.Auth.BoundarySecret = secret
		generated["auth.boundary_secret"] = true
	}

	return generated, nil
}
