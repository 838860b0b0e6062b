// Package embedded provides embedded static assets for the application.
package embedded

import (
	"embed"
)

// Files contains the dashboard served by the HTTP server:
//   - static/index.html - single page dashboard
//   - static/app.js, static/style.css, static/favicon.svg
//
//go:embed static
var Files embed.FS
