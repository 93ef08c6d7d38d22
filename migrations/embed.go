// Package migrations embeds the goose SQL migrations so binaries can
// migrate on startup without shipping files alongside them.
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS
