package http_test

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"net/http/httptest"
	"testing"

	"github.com/m-mizutani/gt"
	server "github.com/m-mizutani/stagehand/pkg/controller/http"
	"github.com/m-mizutani/stagehand/pkg/domain/model"
)

type pipelineUCMock struct {
	trigger  func(ctx context.Context, info *model.TriggerInfo) (string, error)
	getRun   func(ctx context.Context, runID string) (*model.PipelineRun, []*model.JobRecord, error)
	listRuns func(ctx context.Context, source, initiatedAfter string) ([]*model.PipelineRun, error)
}

func (m *pipelineUCMock) Trigger(ctx context.Context, info *model.TriggerInfo) (string, error) {
	return m.trigger(ctx, info)
}

func (m *pipelineUCMock) GetRun(ctx context.Context, runID string) (*model.PipelineRun, []*model.JobRecord, error) {
	return m.getRun(ctx, runID)
}

func (m *pipelineUCMock) ListRuns(ctx context.Context, source, initiatedAfter string) ([]*model.PipelineRun, error) {
	return m.listRuns(ctx, source, initiatedAfter)
}

type downloadUCMock struct {
	issueToken func(ctx context.Context, runID, jobName string) (string, error)
	redeem     func(ctx context.Context, token string) (*model.Artifact, string, error)
}

func (m *downloadUCMock) IssueToken(ctx context.Context, runID, jobName string) (string, error) {
	return m.issueToken(ctx, runID, jobName)
}

func (m *downloadUCMock) Redeem(ctx context.Context, token string) (*model.Artifact, string, error) {
	return m.redeem(ctx, token)
}

func newTestServer(t *testing.T, pipelineUC *pipelineUCMock, opts ...server.Option) *httptest.Server {
	t.Helper()

	srv, err := server.NewServer(context.Background(), pipelineUC, opts...)
	gt.NoError(t, err)

	ts := httptest.NewServer(srv.Handler)
	t.Cleanup(ts.Close)
	return ts
}

func signPayload(secret string, payload []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}
