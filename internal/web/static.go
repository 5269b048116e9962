package web

import "embed"

// staticFiles carries the control page served at "/" and under /static/.
//
//go:embed static/*
var staticFiles embed.FS
