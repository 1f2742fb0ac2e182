// Package ledgerconsole embeds the console's templates and static assets.
package ledgerconsole

import "embed"

// Production builds serve these; with IsDev the router reads the same
// directories from disk so template edits show up without a rebuild.

//go:embed all:frontend/static
var StaticFS embed.FS

//go:embed all:frontend/templates
var TemplateFS embed.FS
