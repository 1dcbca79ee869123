// Package store defines the [Store] interface for event recording backends
// and provides these implementations:
//
//   - [MemoryStore]: in-memory records that are lost on restart.
//   - [SQLiteStore]: persistent records backed by a SQLite database.
//   - [BoltStore]: persistent records backed by a bbolt file.
//   - [CachedStore]: a membership cache in front of any other Store.
//
// Redis and PostgreSQL backends live in the store/redis and store/postgres
// modules. Custom backends can be created by implementing the [Store]
// interface; Record must be atomic and return [ErrConflict] for contention
// that is safe to retry.
package store
