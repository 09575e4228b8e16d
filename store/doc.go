// Package store defines the aggregate persistence interface.
//
// The job and setting subsystems define their own store interfaces. The
// composite [Store] composes them both plus lifecycle operations. A
// backend need only implement Store to serve the whole system.
//
// # Available Backends
//
//   - store/memory — in-memory store for development and testing
//   - store/sqlite — SQLite backend (database/sql + mattn/go-sqlite3)
//   - store/postgres — PostgreSQL backend using pgx/v5
//   - store/redis — Redis backend using go-redis/v9
//
// # Usage
//
//	s, err := sqlite.New("queue.db")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer s.Close()
//
//	if err := s.Migrate(ctx); err != nil {
//	    log.Fatal(err)
//	}
//
// All backends guarantee the claim contract: under any number of
// concurrently polling workers, an eligible job is handed to at most
// one of them.
package store
