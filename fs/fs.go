// Package appfs embeds the static files shipped with the binaries.
package appfs

import "embed"

//go:embed migrations/*.sql templates/email/* templates/web/*
var FS embed.FS
