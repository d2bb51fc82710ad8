// Package db embeds the PostgreSQL schema applied at startup.
package db

import _ "embed"

// Schema creates the catalog, promotion, sale and refund ledger tables. It
// is idempotent.
//
//go:embed migrations/001_schema.sql
var Schema string
