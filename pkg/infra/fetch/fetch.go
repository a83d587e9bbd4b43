package fetch

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/stagehand/pkg/domain/interfaces"
	"github.com/m-mizutani/stagehand/pkg/domain/model"
	"github.com/m-mizutani/stagehand/pkg/domain/types"
)

type fetcher struct {
	root       string
	baseURL    string
	httpClient *http.Client
}

// Option is a functional option for fetcher configuration
type Option func(*fetcher)

// WithBaseURL sets the template host used for project include references.
// Files are fetched from <baseURL>/<project>/-/raw/<ref>/<file>.
func WithBaseURL(baseURL string) Option {
	return func(f *fetcher) {
		f.baseURL = strings.TrimSuffix(baseURL, "/")
	}
}

// WithHTTPClient replaces the HTTP client used for remote includes
func WithHTTPClient(client *http.Client) Option {
	return func(f *fetcher) {
		f.httpClient = client
	}
}

// New creates an include fetcher. Local references resolve relative to
// root and may not escape it.
func New(root string, opts ...Option) interfaces.IncludeFetcher {
	f := &fetcher{
		root:       root,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Fetch returns the documents for one include reference
func (f *fetcher) Fetch(ctx context.Context, ref *model.IncludeRef) ([][]byte, error) {
	if ref.IsLocal() {
		doc, err := f.fetchLocal(ref.Local)
		if err != nil {
			return nil, err
		}
		return [][]byte{doc}, nil
	}

	if ref.Project == "" || len(ref.File) == 0 {
		return nil, goerr.Wrap(types.ErrInvalidConfig, "include requires local or project/file",
			goerr.V("include", ref.String()))
	}

	docs := make([][]byte, 0, len(ref.File))
	for _, file := range ref.File {
		doc, err := f.fetchRemote(ctx, ref, file)
		if err != nil {
			return nil, err
		}
		docs = append(docs, doc)
	}
	return docs, nil
}

func (f *fetcher) fetchLocal(name string) ([]byte, error) {
	path := filepath.Join(f.root, name)
	if !strings.HasPrefix(path, filepath.Clean(f.root)+string(os.PathSeparator)) {
		return nil, goerr.Wrap(types.ErrInvalidConfig, "local include escapes configuration root",
			goerr.V("include", name))
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, goerr.Wrap(types.ErrIncludeNotFound, name, goerr.V("path", path))
		}
		return nil, goerr.Wrap(err, "failed to read local include", goerr.V("path", path))
	}
	return data, nil
}

func (f *fetcher) fetchRemote(ctx context.Context, ref *model.IncludeRef, file string) ([]byte, error) {
	if f.baseURL == "" {
		return nil, goerr.Wrap(types.ErrIncludeNotFound, "no template host configured",
			goerr.V("include", ref.String()))
	}

	branch := ref.Ref
	if branch == "" {
		branch = "main"
	}

	rawURL := fmt.Sprintf("%s/%s/-/raw/%s/%s",
		f.baseURL, ref.Project, url.PathEscape(branch), file)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to create include request", goerr.V("url", rawURL))
	}

	resp, err := f.httpClient.Do(req)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to fetch include", goerr.V("url", rawURL))
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, goerr.Wrap(types.ErrIncludeNotFound, file,
			goerr.V("project", ref.Project), goerr.V("ref", branch))
	}
	if resp.StatusCode != http.StatusOK {
		return nil, goerr.New("unexpected status from template host",
			goerr.V("url", rawURL), goerr.V("status", resp.StatusCode))
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, goerr.Wrap(err, "failed to read include body", goerr.V("url", rawURL))
	}
	return data, nil
}
