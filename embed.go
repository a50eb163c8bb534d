package spacetraveling

import "embed"

// EmbeddedAssets contains static assets shipped with the binary: styles.css.
//
//go:embed embedded/*
var EmbeddedAssets embed.FS
