package eventbus

import "time"

// Build lifecycle event types published by the generator.
const (
	TypeBuildStarted  = "build.started"
	TypeBuildFinished = "build.finished"
)

// BuildStarted is the Data payload for TypeBuildStarted.
type BuildStarted struct {
	Project  string
	BuildID  string
	ServerID int
}

// BuildFinished is the Data payload for TypeBuildFinished.
// Forced marks a finish outside the build's scheduled timer
// (manual intervention or the shutdown sweep).
type BuildFinished struct {
	Project  string
	BuildID  string
	ServerID int
	Success  bool
	Forced   bool
	Duration time.Duration
}
