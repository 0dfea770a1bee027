package database

import _ "embed"

// Schema is the full table layout produced by the migrations. Tests apply it
// directly to in-memory databases.
//
//go:embed sqlc/schema.sql
var Schema string
