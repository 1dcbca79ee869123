// Package tally records events at most once per actor and keeps a counter of
// how many distinct actors triggered each event. It is meant for best-effort
// analytics such as download counts, where a failed write must never break
// the action being counted.
//
// # Key Concepts
//
//   - An actor is an opaque id: a signed-in user id, or a pseudo-anonymous id
//     kept on the client (see [ResolveActor] and [IDStore]).
//   - An event key is an opaque id for the countable thing, e.g. a file id.
//   - [Recorder.RecordOnce] adds the key to the actor's seen set and bumps the
//     key's counter in one store transaction, or does nothing if the actor
//     has seen the key before. Errors are logged and returned in a [Result]
//     that callers may ignore.
//   - [store.Store] is the transactional backend. An in-memory store is used
//     by default; SQLite, bbolt, Redis and PostgreSQL stores persist records.
//
// # Quick Start
//
//	recorder := tally.New(tally.WithStore(s), tally.WithLogger(logger))
//	defer recorder.Close()
//
//	recorder.RecordOnce(ctx, userID, fileID)
//
// # HTTP
//
// [Recorder.Middleware] records requests whose path matches a pattern. The
// event key is the part of the path matched by the wildcard:
//
//	"/downloads/*"       key is everything after /downloads/
//	"/files/*/download"  key is the single segment in place of *
//	"/brochure.pdf"      key is the whole path
//
//	mux.Handle("/downloads/", recorder.Middleware("/downloads/*", files))
package tally
