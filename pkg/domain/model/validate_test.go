package model_test

import (
	"testing"

	"github.com/m-mizutani/gt"
	"github.com/m-mizutani/stagehand/pkg/domain/model"
)

func findingsFor(findings []model.Finding, job string) []model.Finding {
	var matched []model.Finding
	for _, f := range findings {
		if f.Job == job {
			matched = append(matched, f)
		}
	}
	return matched
}

func TestValidate_Clean(t *testing.T) {
	cfg := mustConfig(t, fairdataConfig)

	findings := cfg.Validate()
	gt.Value(t, model.HasError(findings)).Equal(false)
}

func TestValidate_DuplicateStage(t *testing.T) {
	cfg := mustConfig(t, `
stages: [test, deploy, test]
job:
  stage: test
  script: [echo ok]
`)

	findings := cfg.Validate()
	gt.Value(t, model.HasError(findings)).Equal(true)
	gt.String(t, findings[0].Message).Contains("duplicate stage")
}

func TestValidate_UndeclaredStage(t *testing.T) {
	cfg := mustConfig(t, `
stages: [test]
job:
  stage: release
  script: [echo ok]
`)

	findings := cfg.Validate()
	gt.Value(t, model.HasError(findings)).Equal(true)
	gt.String(t, findings[0].Message).Contains(`stage "release"`)
}

func TestValidate_EmptyScript(t *testing.T) {
	cfg := mustConfig(t, `
stages: [test]
job:
  stage: test
`)

	findings := cfg.Validate()
	gt.Value(t, model.HasError(findings)).Equal(true)
	gt.String(t, findings[0].Message).Contains("no script")
}

func TestValidate_UnknownNeeds(t *testing.T) {
	cfg := mustConfig(t, `
stages: [test]
job:
  stage: test
  script: [echo ok]
  needs: [missing]
`)

	findings := cfg.Validate()
	gt.Value(t, model.HasError(findings)).Equal(true)
	gt.String(t, findings[0].Message).Contains(`unknown job "missing"`)
}

func TestValidate_HiddenNeeds(t *testing.T) {
	cfg := mustConfig(t, `
stages: [test]
.base:
  stage: test
  script: [echo base]
job:
  stage: test
  script: [echo ok]
  needs: [.base]
`)

	findings := cfg.Validate()
	gt.Value(t, model.HasError(findings)).Equal(true)
}

func TestValidate_NeedsLaterStage(t *testing.T) {
	cfg := mustConfig(t, `
stages: [test, deploy]
run_unit_tests:
  stage: test
  script: [echo test]
  needs: [deploy_service]
deploy_service:
  stage: deploy
  script: [echo deploy]
`)

	findings := cfg.Validate()
	gt.Value(t, model.HasError(findings)).Equal(true)
	gt.String(t, findingsFor(findings, "run_unit_tests")[0].Message).Contains("later stage")
}

func TestValidate_UndefinedVariableWarning(t *testing.T) {
	cfg := mustConfig(t, `
stages: [deploy]
deploy_service:
  stage: deploy
  script:
    - ./deploy.sh $NO_SUCH_VARIABLE_ANYWHERE
`)

	findings := cfg.Validate()
	gt.Value(t, model.HasError(findings)).Equal(false)
	gt.Array(t, findings).Length(1)
	gt.Value(t, findings[0].Severity).Equal(model.SeverityWarning)
	gt.String(t, findings[0].Message).Contains("NO_SUCH_VARIABLE_ANYWHERE")
}

func TestValidate_PredefinedVariableNoWarning(t *testing.T) {
	cfg := mustConfig(t, `
stages: [deploy]
deploy_service:
  stage: deploy
  script:
    - echo deploying $CI_COMMIT_SHA to $CI_PROJECT_DIR
`)

	gt.Array(t, cfg.Validate()).Length(0)
}

func TestValidate_ConfiguredVariableNoWarning(t *testing.T) {
	cfg := mustConfig(t, `
variables:
  INSTANCE: download-staging
stages: [deploy]
deploy_service:
  stage: deploy
  script:
    - ./deploy.sh ${INSTANCE}
  variables:
    TARGET: demo
`)

	gt.Array(t, cfg.Validate()).Length(0)
}

func TestValidate_NeedsCycle(t *testing.T) {
	cfg := mustConfig(t, `
stages: [test]
a:
  stage: test
  script: [echo a]
  needs: [b]
b:
  stage: test
  script: [echo b]
  needs: [a]
`)

	findings := cfg.Validate()
	gt.Value(t, model.HasError(findings)).Equal(true)
}

func TestFindingString(t *testing.T) {
	withJob := model.Finding{Severity: model.SeverityError, Job: "job", Message: "job has no script"}
	gt.Value(t, withJob.String()).Equal("error: [job] job has no script")

	noJob := model.Finding{Severity: model.SeverityWarning, Message: "something"}
	gt.Value(t, noJob.String()).Equal("warning: something")
}
