// Package storage persists the identity and enabled flag of every named
// background worker so that enable/disable decisions survive restarts.
//
// Backends:
//   - sqlite (default, modernc.org/sqlite, CGO-free)
//   - postgres (jackc/pgx stdlib driver)
//   - memory (process-local; tests and driver "none")
package storage
