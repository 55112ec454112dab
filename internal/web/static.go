package web

import (
	"embed"
)

// staticFiles embeds the monitor page so the daemon ships as a single
// binary; nothing on the Pi's filesystem is needed to serve it.
//
//go:embed static/*
var staticFiles embed.FS
