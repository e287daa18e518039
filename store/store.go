package store

import "github.com/HACKMANV8/saga/session"

// Store is the aggregate persistence interface. A single backend (sqlite,
// postgres, redis, memory) implements it in full, including the
// Migrate/Ping/Close lifecycle.
type Store interface {
	session.Store
}
