package model

// TriggerInfo describes what initiated a pipeline run
type TriggerInfo struct {
	Source    string            // Configuration origin (repository or file path)
	Ref       string            // Git ref (branch/tag), if any
	CommitSHA string            // Commit SHA, if any
	Actor     string            // User or system that triggered the run
	Variables Variables         // Extra variable overrides for this run
	Metadata  map[string]string // Trigger-specific metadata
}
