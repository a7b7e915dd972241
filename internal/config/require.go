package config

import (
	"errors"
	"fmt"
	"slices"
	"strings"
)

var ErrMissingEnv = errors.New("missing required env")

// RequireServer reports every setting the API server cannot start without.
func (c Config) RequireServer() error {
	return missingEnv(map[string]bool{
		"DATABASE_URL":       c.DatabaseURL == "",
		"JWT_SECRET":         len(c.JWTAccessSecret) == 0,
		"JWT_REFRESH_SECRET": len(c.JWTRefreshSecret) == 0,
	})
}

// RequireDatabase reports a missing connection string.
func (c Config) RequireDatabase() error {
	return missingEnv(map[string]bool{"DATABASE_URL": c.DatabaseURL == ""})
}

func missingEnv(empty map[string]bool) error {
	var names []string
	for name, isEmpty := range empty {
		if isEmpty {
			names = append(names, name)
		}
	}
	if len(names) == 0 {
		return nil
	}
	slices.Sort(names)
	return fmt.Errorf("%w: %s", ErrMissingEnv, strings.Join(names, ", "))
}
