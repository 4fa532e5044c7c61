// Package appfs embeds non-Go assets shipped with the binary.
package appfs

import "embed"

//go:embed migrations assets
var FS embed.FS
