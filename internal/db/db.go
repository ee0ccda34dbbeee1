// Package db exposes the database collaborator as a narrow set of fallible
// operations. The dump wire format is the vendor's; snapsync only moves it
// around.
package db

import "context"

// Client covers everything the snapshot lifecycle needs from a database
// host.
type Client interface {
	// ListDatabases returns every database visible to the configured
	// credentials, including system schemas.
	ListDatabases(ctx context.Context) ([]string, error)
	// Dump writes a full dump of the named database to dest.
	Dump(ctx context.Context, name, dest string) error
	// Drop removes the named database. A database that does not exist is
	// not an error.
	Drop(ctx context.Context, name string) error
	// Create creates the named database, empty.
	Create(ctx context.Context, name string) error
	// Load replays the dump file at src into the named database.
	Load(ctx context.Context, name, src string) error
}

// System schemas are never part of a discovered backup set.
var systemSchemas = map[string]struct{}{
	"mysql":              {},
	"information_schema": {},
	"performance_schema": {},
	"sys":                {},
}

// IsSystemSchema reports whether name is a server-internal schema.
func IsSystemSchema(name string) bool {
	_, ok := systemSchemas[name]
	return ok
}
