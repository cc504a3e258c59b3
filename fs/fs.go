// Package appfs embeds the SQL migrations and email templates into the binary.
package appfs

import "embed"

//go:embed migrations/*.sql assets/templates/email/*
var FS embed.FS
