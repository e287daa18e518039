// Package store defines the aggregate persistence interface.
//
// The composite [Store] embeds the session persistence contract plus the
// lifecycle methods every backend provides:
//
//	type Store interface {
//	    session.Store
//	}
//
// # Available Backends
//
//   - store/memory — in-memory store for development and testing
//   - store/sqlite — embedded SQLite backend (no external service)
//   - store/postgres — PostgreSQL backend using pgx/v5
//   - store/redis — Redis backend
//
// # Usage
//
//	import "github.com/HACKMANV8/saga/store/sqlite"
//
//	s, err := sqlite.New(ctx, "saga.db")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer s.Close()
//
//	eng, err := engine.New(engine.WithStore(s))
//
// # Migrations
//
// Call Migrate once at startup to create or update the schema:
//
//	if err := s.Migrate(ctx); err != nil {
//	    log.Fatal(err)
//	}
package store
