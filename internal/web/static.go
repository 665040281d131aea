package web

import (
	"embed"
)

// staticFiles holds the status page assets served under / and /static/.
//
//go:embed static/*
var staticFiles embed.FS
