package renderer

import (
	"errors"
	"fmt"
)

// Kind classifies a failed render.
type Kind string

const (
	// KindLaunchError means the renderer could not be started at all.
	KindLaunchError Kind = "launch_error"
	// KindRendererError means the renderer exited with a nonzero status.
	KindRendererError Kind = "renderer_error"
	// KindMissingArtifact means the renderer exited 0 without producing every declared file.
	KindMissingArtifact Kind = "missing_artifact"
	// KindTimeout means the render exceeded its budget or the caller gave up.
	KindTimeout Kind = "timeout"
)

// Error is the failure value of Render.
type Error struct {
	Kind    Kind
	Message string
	// ExitCode is set for KindRendererError.
	ExitCode int
	// Missing lists absent artifacts for KindMissingArtifact.
	Missing []string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("renderer: %s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("renderer: %s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// Code exposes the kind for handler summaries.
func (e *Error) Code() string { return string(e.Kind) }

// KindOf extracts the failure kind from err.
func KindOf(err error) (Kind, bool) {
	var re *Error
	if errors.As(err, &re) {
		return re.Kind, true
	}
	return "", false
}
