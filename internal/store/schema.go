package store

import _ "embed"

// Schema is the DDL for every table the intake service uses. It is idempotent.
//
//go:embed schema.sql
var Schema string
