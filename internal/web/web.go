package web

import _ "embed"

// SurfaceHTML is the exam page the recorder films.
//
//go:embed surface.html
var SurfaceHTML []byte

// AuditionHTML is the review page served by the audition server.
//
//go:embed audition.html
var AuditionHTML []byte
