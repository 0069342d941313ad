// Package ui embeds the browser frontend: the map screen and the booking screen.
package ui

import "embed"

// DistFS holds the built frontend under dist/.
//
//go:embed dist
var DistFS embed.FS
