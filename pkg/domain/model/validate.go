package model

import (
	"fmt"
	"os"
	"regexp"

	"github.com/m-mizutani/stagehand/pkg/domain/types"
)

// Severity classifies a validation finding
type Severity string

const (
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
)

// Finding is a single validation result for a pipeline configuration
type Finding struct {
	Severity Severity `json:"severity"`
	Job      string   `json:"job,omitempty"`
	Message  string   `json:"message"`
}

func (f Finding) String() string {
	if f.Job != "" {
		return fmt.Sprintf("%s: [%s] %s", f.Severity, f.Job, f.Message)
	}
	return fmt.Sprintf("%s: %s", f.Severity, f.Message)
}

// HasError reports whether any finding has error severity
func HasError(findings []Finding) bool {
	for _, f := range findings {
		if f.Severity == SeverityError {
			return true
		}
	}
	return false
}

var variableRefPattern = regexp.MustCompile(`\$\{?([A-Za-z_][A-Za-z0-9_]*)\}?`)

// Validate checks the configuration and returns all findings. A
// configuration with no error findings is runnable.
func (c *Config) Validate() []Finding {
	var findings []Finding

	seen := map[string]bool{}
	for _, stage := range c.Stages {
		if seen[stage] {
			findings = append(findings, Finding{
				Severity: SeverityError,
				Message:  fmt.Sprintf("duplicate stage %q", stage),
			})
		}
		seen[stage] = true
	}

	for _, name := range c.VisibleJobs() {
		job := c.Jobs[name]
		if job == nil {
			findings = append(findings, Finding{
				Severity: SeverityError,
				Job:      name,
				Message:  "job definition is empty",
			})
			continue
		}

		if len(job.Script) == 0 {
			findings = append(findings, Finding{
				Severity: SeverityError,
				Job:      name,
				Message:  "job has no script",
			})
		}

		jobStageIdx := c.StageIndex(job.Stage)
		if jobStageIdx < 0 {
			findings = append(findings, Finding{
				Severity: SeverityError,
				Job:      name,
				Message:  fmt.Sprintf("stage %q is not declared", job.Stage),
			})
		}

		for _, need := range job.Needs {
			needed, ok := c.Jobs[need]
			if !ok || IsHidden(need) {
				findings = append(findings, Finding{
					Severity: SeverityError,
					Job:      name,
					Message:  fmt.Sprintf("needs unknown job %q", need),
				})
				continue
			}
			if jobStageIdx >= 0 {
				if needIdx := c.StageIndex(needed.Stage); needIdx > jobStageIdx {
					findings = append(findings, Finding{
						Severity: SeverityError,
						Job:      name,
						Message:  fmt.Sprintf("needs job %q in later stage %q", need, needed.Stage),
					})
				}
			}
		}

		findings = append(findings, c.checkVariableRefs(name, job)...)
	}

	// Cycle detection only makes sense once the structural checks pass
	if !HasError(findings) {
		if _, err := c.BuildPlan(); err != nil {
			findings = append(findings, Finding{
				Severity: SeverityError,
				Message:  err.Error(),
			})
		}
	}

	return findings
}

// checkVariableRefs warns about references to variables that are defined
// neither in the configuration nor in the process environment
func (c *Config) checkVariableRefs(jobName string, job *JobSpec) []Finding {
	var findings []Finding

	lookup := func(ref string) bool {
		if _, ok := c.Variables[ref]; ok {
			return true
		}
		if _, ok := job.Variables[ref]; ok {
			return true
		}
		if _, ok := os.LookupEnv(ref); ok {
			return true
		}
		return isPredefined(ref)
	}

	for _, line := range job.Script {
		for _, m := range variableRefPattern.FindAllStringSubmatch(line, -1) {
			if !lookup(m[1]) {
				findings = append(findings, Finding{
					Severity: SeverityWarning,
					Job:      jobName,
					Message:  fmt.Sprintf("script references undefined variable $%s", m[1]),
				})
			}
		}
	}
	return findings
}

func isPredefined(name string) bool {
	switch name {
	case types.EnvPipelineID, types.EnvJobName, types.EnvJobStage,
		types.EnvProjectDir, types.EnvCommitSHA, types.EnvCommitRef:
		return true
	}
	return false
}
