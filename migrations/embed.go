// Package migrations embeds the service's SQL schema files so the migrate
// binary runs the same schema from any working directory.
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS
