package core

import (
	"fmt"
)

// Stage names the build step that failed.
type Stage string

const (
	StageConfig     Stage = "config"
	StageAnnotation Stage = "annotation"
	StageMembership Stage = "membership"
	StageIndex      Stage = "index"
)

// BuildError rejects the whole index build. It is returned unchanged by
// every call made after the failure.
type BuildError struct {
	Species string
	Stage   Stage
	Err     error
}

func (e *BuildError) Error() string {
	if e.Species == "" {
		return fmt.Sprintf("build cluster index: %s: %v", e.Stage, e.Err)
	}
	return fmt.Sprintf("build cluster index: species %s: %s: %v", e.Species, e.Stage, e.Err)
}

func (e *BuildError) Unwrap() error { return e.Err }
