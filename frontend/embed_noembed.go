//go:build noembed

// Package frontend provides the embedded dashboard filesystem.
// This file is used when building with -tags noembed and serves a placeholder
// page instead of the dashboard.
package frontend

import (
	"io/fs"
	"testing/fstest"
)

// DistFS is a stub filesystem for noembed builds.
var DistFS fs.FS = fstest.MapFS{
	"index.html": &fstest.MapFile{Data: []byte("<!doctype html><title>visiondash</title><p>Dashboard not embedded in this build. Use the /api/v1 endpoints.</p>")},
}
