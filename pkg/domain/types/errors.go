package types

import "github.com/m-mizutani/goerr/v2"

var (
	// ErrInvalidConfig indicates the pipeline configuration failed validation
	ErrInvalidConfig = goerr.New("invalid pipeline configuration")

	// ErrIncludeNotFound indicates an include reference could not be resolved
	ErrIncludeNotFound = goerr.New("include not found")

	// ErrRunNotFound indicates the requested pipeline run does not exist
	ErrRunNotFound = goerr.New("pipeline run not found")

	// ErrArtifactNotFound indicates no artifact is recorded for the job
	ErrArtifactNotFound = goerr.New("artifact not found")

	// ErrInvalidToken indicates a download token failed verification
	ErrInvalidToken = goerr.New("invalid download token")

	// ErrInvalidArgument indicates a malformed request parameter
	ErrInvalidArgument = goerr.New("invalid argument")
)
