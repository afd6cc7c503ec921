// Package ui embeds the map page served at the site root.
package ui

import "embed"

//go:embed dist
var DistFS embed.FS
