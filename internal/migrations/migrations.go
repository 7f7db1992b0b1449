package migrations

import "embed"

// Files holds the schema for the events and token_handoffs tables.
//
// Names sort in apply order (001_init.sql, 002_token_handoffs.sql, ...); the
// store's migration runner records each file name once it has been applied.
//
//go:embed *.sql
var Files embed.FS
