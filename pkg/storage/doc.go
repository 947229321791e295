// Package storage is the durable credential store: users, their passkey
// credentials and the append-only audit trail of sessions.
//
// Two database/sql drivers are supported. PostgreSQL (lib/pq) is used in
// production; SQLite (mattn/go-sqlite3) backs local development and tests.
// The schema is applied on Open with embedded goose migrations.
//
//	store, err := storage.Open(ctx, storage.Config{
//		Driver: storage.DriverPostgres,
//		URL:    "postgres://localhost/turnstile?sslmode=disable",
//	}, logger)
//	user, err := store.Register(ctx, storage.RegisterInput{...})
//
// Queries use $N placeholders, numbered in order of first appearance and
// never repeated, so the same text is valid for both drivers.
//
// Domain failures are returned as *apperror.Error values (conflict,
// unauthorized, not found); everything else is a wrapped driver error.
package storage
