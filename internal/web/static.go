package web

import (
	"embed"
)

// staticFiles holds the embedded control page.
//
//go:embed static/*
var staticFiles embed.FS
