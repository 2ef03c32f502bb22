// Package appfs embeds files needed at runtime (database migrations).
package appfs

import "embed"

//go:embed migrations
var FS embed.FS
