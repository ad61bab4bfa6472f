// Package migrations embeds the schema of every supported dialect.
package migrations

import "embed"

//go:embed sqlite/*.sql mysql/*.sql postgres/*.sql
var FS embed.FS
