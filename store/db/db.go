// Package db selects a storage driver based on the profile.
package db

import (
	"github.com/pkg/errors"

	"github.com/hrygo/chatkit/internal/profile"
	"github.com/hrygo/chatkit/store"
	"github.com/hrygo/chatkit/store/db/postgres"
	"github.com/hrygo/chatkit/store/db/sqlite"
)

// NewDriver creates a storage driver based on the profile. SQLite is
// the default for local use; PostgreSQL is for deployments that share
// history across machines; memory keeps nothing across restarts.
func NewDriver(profile *profile.Profile) (store.Driver, error) {
	var driver store.Driver
	var err error

	switch profile.Driver {
	case "sqlite":
		driver, err = sqlite.NewDB(profile)
	case "postgres":
		driver, err = postgres.NewDB(profile)
	case "memory":
		driver = store.NewMemoryDriver()
	default:
		return nil, errors.Errorf("unknown storage driver %q: only 'sqlite', 'postgres' and 'memory' are supported", profile.Driver)
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to create storage driver")
	}
	return driver, nil
}
