// Package migrations embeds the schema applied at boot.
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS
