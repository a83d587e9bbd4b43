package http_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"testing"

	"github.com/m-mizutani/gt"
	server "github.com/m-mizutani/stagehand/pkg/controller/http"
	"github.com/m-mizutani/stagehand/pkg/domain/model"
)

const pushPayload = `{
	"ref": "refs/heads/staging",
	"after": "abc1234def",
	"repository": {"full_name": "fairdata/download"},
	"sender": {"login": "octocat"}
}`

func postWebhook(t *testing.T, ts string, eventType, signature string, payload []byte) *http.Response {
	t.Helper()

	req, err := http.NewRequest(http.MethodPost, ts+"/hooks/github", bytes.NewReader(payload))
	gt.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-GitHub-Event", eventType)
	req.Header.Set("X-GitHub-Delivery", "delivery-1")
	if signature != "" {
		req.Header.Set("X-Hub-Signature-256", signature)
	}

	resp, err := http.DefaultClient.Do(req)
	gt.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func TestWebhook_PushTriggersPipeline(t *testing.T) {
	var triggered *model.TriggerInfo
	uc := &pipelineUCMock{
		trigger: func(ctx context.Context, info *model.TriggerInfo) (string, error) {
			triggered = info
			return "run-123", nil
		},
	}
	ts := newTestServer(t, uc, server.WithWebhookSecret("hook-secret"))

	payload := []byte(pushPayload)
	resp := postWebhook(t, ts.URL, "push", signPayload("hook-secret", payload), payload)
	gt.Value(t, resp.StatusCode).Equal(http.StatusAccepted)

	var body map[string]string
	gt.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	gt.Value(t, body["status"]).Equal("triggered")
	gt.Value(t, body["run_id"]).Equal("run-123")

	gt.Value(t, triggered).NotEqual(nil)
	gt.Value(t, triggered.Source).Equal("fairdata/download")
	gt.Value(t, triggered.Ref).Equal("staging")
	gt.Value(t, triggered.CommitSHA).Equal("abc1234def")
	gt.Value(t, triggered.Actor).Equal("octocat")
}

func TestWebhook_InvalidSignature(t *testing.T) {
	uc := &pipelineUCMock{
		trigger: func(ctx context.Context, info *model.TriggerInfo) (string, error) {
			t.Error("pipeline must not be triggered")
			return "", nil
		},
	}
	ts := newTestServer(t, uc, server.WithWebhookSecret("hook-secret"))

	payload := []byte(pushPayload)
	resp := postWebhook(t, ts.URL, "push", signPayload("wrong-secret", payload), payload)
	gt.Value(t, resp.StatusCode).Equal(http.StatusUnauthorized)
}

func TestWebhook_MissingSignature(t *testing.T) {
	uc := &pipelineUCMock{}
	ts := newTestServer(t, uc, server.WithWebhookSecret("hook-secret"))

	resp := postWebhook(t, ts.URL, "push", "", []byte(pushPayload))
	gt.Value(t, resp.StatusCode).Equal(http.StatusUnauthorized)
}

func TestWebhook_PingIgnored(t *testing.T) {
	uc := &pipelineUCMock{
		trigger: func(ctx context.Context, info *model.TriggerInfo) (string, error) {
			t.Error("pipeline must not be triggered")
			return "", nil
		},
	}
	ts := newTestServer(t, uc, server.WithWebhookSecret("hook-secret"))

	payload := []byte(`{"zen": "Keep it logically awesome."}`)
	resp := postWebhook(t, ts.URL, "ping", signPayload("hook-secret", payload), payload)
	gt.Value(t, resp.StatusCode).Equal(http.StatusOK)

	body, err := io.ReadAll(resp.Body)
	gt.NoError(t, err)
	gt.String(t, string(body)).Contains("ignored")
}

func TestWebhook_DisabledWithoutSecret(t *testing.T) {
	ts := newTestServer(t, &pipelineUCMock{})

	payload := []byte(pushPayload)
	resp := postWebhook(t, ts.URL, "push", signPayload("hook-secret", payload), payload)
	gt.Value(t, resp.StatusCode).Equal(http.StatusNotFound)
}
