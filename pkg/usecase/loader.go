package usecase

import (
	"context"
	"os"

	"github.com/m-mizutani/ctxlog"
	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/stagehand/pkg/domain/interfaces"
	"github.com/m-mizutani/stagehand/pkg/domain/model"
	"github.com/m-mizutani/stagehand/pkg/domain/types"
)

// Loader reads pipeline configurations and resolves their includes
type Loader struct {
	fetcher interfaces.IncludeFetcher
}

// NewLoader creates a configuration loader. The fetcher may be nil when
// configurations without includes are expected.
func NewLoader(fetcher interfaces.IncludeFetcher) *Loader {
	return &Loader{fetcher: fetcher}
}

// LoadFile loads and merges the configuration at the given path
func (l *Loader) LoadFile(ctx context.Context, path string) (*model.Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to read pipeline configuration", goerr.V("path", path))
	}
	return l.LoadBytes(ctx, data)
}

// LoadBytes parses a configuration document, fetches and merges all
// includes, and returns the normalized configuration
func (l *Loader) LoadBytes(ctx context.Context, data []byte) (*model.Config, error) {
	logger := ctxlog.From(ctx)

	file, err := model.ParseConfigFile(data)
	if err != nil {
		return nil, err
	}

	for i := range file.Include {
		ref := &file.Include[i]
		if l.fetcher == nil {
			return nil, goerr.Wrap(types.ErrIncludeNotFound, "include resolution is not configured",
				goerr.V("include", ref.String()))
		}

		docs, err := l.fetcher.Fetch(ctx, ref)
		if err != nil {
			return nil, err
		}

		logger.Debug("Resolved include",
			"include", ref.String(),
			"documents", len(docs),
		)

		for _, doc := range docs {
			included, err := model.ParseConfigFile(doc)
			if err != nil {
				return nil, goerr.Wrap(err, "failed to parse included document",
					goerr.V("include", ref.String()))
			}
			if err := file.Merge(included, ref.String()); err != nil {
				return nil, err
			}
		}
	}

	return file.Normalize(), nil
}
