package usecase_test

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/m-mizutani/gt"
	"github.com/m-mizutani/stagehand/pkg/domain/model"
)

type cmdRunnerMock struct {
	mu    sync.Mutex
	specs []*model.CommandSpec
	run   func(spec *model.CommandSpec) (*model.CommandResult, error)
}

func (m *cmdRunnerMock) Run(ctx context.Context, spec *model.CommandSpec) (*model.CommandResult, error) {
	m.mu.Lock()
	m.specs = append(m.specs, spec)
	m.mu.Unlock()

	if m.run != nil {
		return m.run(spec)
	}
	return &model.CommandResult{ExitCode: 0}, nil
}

func (m *cmdRunnerMock) ranJobs() []string {
	m.mu.Lock()
	defer m.mu.Unlock()

	names := make([]string, 0, len(m.specs))
	for _, spec := range m.specs {
		names = append(names, envValue(spec.Env, "CI_JOB_NAME"))
	}
	return names
}

// envValue returns the last binding of name, matching shell semantics
func envValue(env []string, name string) string {
	for i := len(env) - 1; i >= 0; i-- {
		if v, ok := strings.CutPrefix(env[i], name+"="); ok {
			return v
		}
	}
	return ""
}

type fetcherMock struct {
	docs map[string][][]byte
	err  error
}

func (m *fetcherMock) Fetch(ctx context.Context, ref *model.IncludeRef) ([][]byte, error) {
	if m.err != nil {
		return nil, m.err
	}
	return m.docs[ref.String()], nil
}

func writeTempConfig(t *testing.T, doc string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "pipeline.yml")
	gt.NoError(t, os.WriteFile(path, []byte(doc), 0600))
	return path
}

func parseConfig(t *testing.T, doc string) *model.Config {
	t.Helper()
	file, err := model.ParseConfigFile([]byte(doc))
	gt.NoError(t, err)
	return file.Normalize()
}

func jobStatus(result *model.RunResult, name string) model.Status {
	for _, job := range result.Jobs {
		if job.Name == name {
			return job.Status
		}
	}
	return ""
}
