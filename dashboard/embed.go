// Package dashboard provides the embedded web UI assets.
//
// The dashboard HTML, CSS and JavaScript are embedded at compile time so the
// binary deploys without external asset files. The server package serves
// them at the root path ("/").
package dashboard

import "embed"

// Assets is an embedded filesystem containing the dashboard web UI.
//
// The filesystem structure is:
//
//	assets/
//	  index.html    - Channel table with inline CSS and JavaScript
//
//go:embed assets/*
var Assets embed.FS
