package usecase

import (
	"context"
	"path/filepath"
	"time"

	"github.com/lestrrat-go/jwx/v2/jwa"
	"github.com/lestrrat-go/jwx/v2/jwt"
	"github.com/m-mizutani/ctxlog"
	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/stagehand/pkg/domain/interfaces"
	"github.com/m-mizutani/stagehand/pkg/domain/model"
	"github.com/m-mizutani/stagehand/pkg/domain/types"
)

type downloadUseCase struct {
	store       interfaces.RunStore
	artifactDir string
	secret      []byte
	ttl         time.Duration
}

// DownloadOption is a functional option for download configuration
type DownloadOption func(*downloadUseCase)

// WithTokenTTL sets the validity period of issued tokens (default: 24h)
func WithTokenTTL(ttl time.Duration) DownloadOption {
	return func(uc *downloadUseCase) {
		uc.ttl = ttl
	}
}

// NewDownload creates a DownloadUseCase. Tokens are HS256 JWTs signed
// with the given secret; every issued token is backed by a download
// record that must exist at redemption.
func NewDownload(store interfaces.RunStore, artifactDir string, secret []byte, opts ...DownloadOption) interfaces.DownloadUseCase {
	uc := &downloadUseCase{
		store:       store,
		artifactDir: artifactDir,
		secret:      secret,
		ttl:         24 * time.Hour,
	}
	for _, opt := range opts {
		opt(uc)
	}
	return uc
}

// IssueToken creates a download record and returns a signed token for
// the artifact produced by the given job
func (uc *downloadUseCase) IssueToken(ctx context.Context, runID, jobName string) (string, error) {
	logger := ctxlog.From(ctx)

	artifact, err := uc.store.FindArtifact(ctx, runID, jobName)
	if err != nil {
		return "", err
	}

	now := time.Now().UTC()
	token, err := jwt.NewBuilder().
		Subject(artifact.ID).
		IssuedAt(now).
		Expiration(now.Add(uc.ttl)).
		Build()
	if err != nil {
		return "", goerr.Wrap(err, "failed to build download token")
	}

	signed, err := jwt.Sign(token, jwt.WithKey(jwa.HS256, uc.secret))
	if err != nil {
		return "", goerr.Wrap(err, "failed to sign download token")
	}

	if err := uc.store.CreateDownload(ctx, string(signed), artifact.ID); err != nil {
		return "", err
	}

	logger.Info("Issued artifact download token",
		"run_id", runID,
		"job", jobName,
		"artifact_id", artifact.ID,
		"filename", artifact.Filename,
	)

	return string(signed), nil
}

// Redeem validates a token and returns the artifact with the absolute
// path of its zip file
func (uc *downloadUseCase) Redeem(ctx context.Context, token string) (*model.Artifact, string, error) {
	parsed, err := jwt.Parse([]byte(token),
		jwt.WithKey(jwa.HS256, uc.secret),
		jwt.WithValidate(true),
	)
	if err != nil {
		return nil, "", goerr.Wrap(types.ErrInvalidToken, err.Error())
	}

	record, err := uc.store.GetDownload(ctx, token)
	if err != nil {
		return nil, "", err
	}

	if parsed.Subject() != record.ArtifactID {
		return nil, "", goerr.Wrap(types.ErrInvalidToken, "token subject mismatch")
	}

	artifact, err := uc.store.GetArtifact(ctx, record.ArtifactID)
	if err != nil {
		return nil, "", err
	}

	return artifact, filepath.Join(uc.artifactDir, artifact.Filename), nil
}
