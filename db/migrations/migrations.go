// Package migrations embeds the coordinator schema migrations. Migrations
// are additive only: columns and tables are added, never dropped or renamed,
// so older binaries keep working against a newer file.
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS
