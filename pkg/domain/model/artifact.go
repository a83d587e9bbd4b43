package model

import "time"

// Artifact is a packaged set of files produced by a successful job
type Artifact struct {
	ID        string    `json:"id"`
	RunID     string    `json:"run_id"`
	JobName   string    `json:"job_name"`
	Filename  string    `json:"filename"` // path of the zip relative to the artifact root
	SizeBytes int64     `json:"size_bytes"`
	Checksum  string    `json:"checksum"` // hex encoded SHA-256 of the zip
	CreatedAt time.Time `json:"created_at"`
}

// DownloadRecord authorizes one artifact download. A record is created
// when a token is issued and must exist when the token is redeemed.
type DownloadRecord struct {
	Token      string    `json:"token"`
	ArtifactID string    `json:"artifact_id"`
	CreatedAt  time.Time `json:"created_at"`
}
