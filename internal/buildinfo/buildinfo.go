// Package buildinfo holds build-time metadata injected via -ldflags.
package buildinfo

// Version is the semantic version or tag for this build.
// Inject via: -X github.com/garyellow/ut-course-advisor/internal/buildinfo.Version=...
var Version = "dev"

// Commit is the git commit SHA for this build.
// Inject via: -X github.com/garyellow/ut-course-advisor/internal/buildinfo.Commit=...
var Commit = ""

// BuildDate is the RFC3339 build timestamp.
// Inject via: -X github.com/garyellow/ut-course-advisor/internal/buildinfo.BuildDate=...
var BuildDate = ""
