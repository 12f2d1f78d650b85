// Package migrations embeds the MySQL schema of the run history store.
package migrations

import "embed"

// Files exposes every SQL migration, applied in file name order.
//
//go:embed *.sql
var Files embed.FS
