package usecase

import (
	"archive/zip"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/m-mizutani/ctxlog"
	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/stagehand/pkg/domain/model"
)

// collectArtifact packages the files matched by the job's artifact paths
// into a zip under the artifact directory and records it. Returns nil
// without error when no files matched.
func (r *Runner) collectArtifact(ctx context.Context, runID, jobName string, spec *model.ArtifactSpec) (*model.Artifact, error) {
	logger := ctxlog.From(ctx)

	workDir, err := filepath.Abs(r.workDir)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to resolve working directory", goerr.V("dir", r.workDir))
	}

	files, err := matchArtifactPaths(workDir, spec.Paths)
	if err != nil {
		return nil, err
	}
	if len(files) == 0 {
		logger.Warn("No files matched artifact paths",
			"run_id", runID, "job", jobName, "paths", spec.Paths)
		return nil, nil
	}

	filename := filepath.Join(runID, sanitizeName(jobName)+".zip")
	zipPath := filepath.Join(r.artifactDir, filename)
	if err := os.MkdirAll(filepath.Dir(zipPath), 0o755); err != nil {
		return nil, goerr.Wrap(err, "failed to create artifact directory", goerr.V("path", zipPath))
	}

	if err := writeZip(zipPath, workDir, files); err != nil {
		return nil, err
	}

	size, checksum, err := hashFile(zipPath)
	if err != nil {
		return nil, err
	}

	artifact := &model.Artifact{
		ID:        uuid.NewString(),
		RunID:     runID,
		JobName:   jobName,
		Filename:  filename,
		SizeBytes: size,
		Checksum:  checksum,
		CreatedAt: time.Now().UTC(),
	}

	if r.store != nil {
		if err := r.store.RecordArtifact(ctx, artifact); err != nil {
			return nil, err
		}
	}

	logger.Info("Collected job artifacts",
		"run_id", runID,
		"job", jobName,
		"files", len(files),
		"size_bytes", size,
		"checksum", checksum,
	)

	return artifact, nil
}

// matchArtifactPaths expands the artifact globs relative to the working
// directory. Matched directories are walked; matches escaping the working
// directory are rejected.
func matchArtifactPaths(workDir string, patterns []string) ([]string, error) {
	seen := map[string]bool{}
	var files []string

	addFile := func(path string) error {
		if !strings.HasPrefix(path, filepath.Clean(workDir)+string(os.PathSeparator)) {
			return goerr.New("artifact path escapes working directory", goerr.V("path", path))
		}
		if !seen[path] {
			seen[path] = true
			files = append(files, path)
		}
		return nil
	}

	for _, pattern := range patterns {
		matches, err := filepath.Glob(filepath.Join(workDir, pattern))
		if err != nil {
			return nil, goerr.Wrap(err, "invalid artifact path pattern", goerr.V("pattern", pattern))
		}

		for _, match := range matches {
			info, err := os.Stat(match)
			if err != nil {
				return nil, goerr.Wrap(err, "failed to stat artifact file", goerr.V("path", match))
			}

			if !info.IsDir() {
				if err := addFile(match); err != nil {
					return nil, err
				}
				continue
			}

			err = filepath.WalkDir(match, func(path string, d fs.DirEntry, err error) error {
				if err != nil {
					return err
				}
				if d.IsDir() {
					return nil
				}
				return addFile(path)
			})
			if err != nil {
				return nil, goerr.Wrap(err, "failed to walk artifact directory", goerr.V("path", match))
			}
		}
	}

	return files, nil
}

// writeZip archives files with entry names relative to the working
// directory
func writeZip(zipPath, workDir string, files []string) error {
	out, err := os.Create(zipPath)
	if err != nil {
		return goerr.Wrap(err, "failed to create artifact zip", goerr.V("path", zipPath))
	}
	defer out.Close()

	zw := zip.NewWriter(out)
	for _, file := range files {
		rel, err := filepath.Rel(workDir, file)
		if err != nil {
			return goerr.Wrap(err, "failed to relativize artifact path", goerr.V("path", file))
		}

		w, err := zw.Create(filepath.ToSlash(rel))
		if err != nil {
			return goerr.Wrap(err, "failed to create zip entry", goerr.V("entry", rel))
		}

		in, err := os.Open(file)
		if err != nil {
			return goerr.Wrap(err, "failed to open artifact file", goerr.V("path", file))
		}
		if _, err := io.Copy(w, in); err != nil {
			in.Close()
			return goerr.Wrap(err, "failed to write zip entry", goerr.V("entry", rel))
		}
		in.Close()
	}

	if err := zw.Close(); err != nil {
		return goerr.Wrap(err, "failed to finalize artifact zip", goerr.V("path", zipPath))
	}
	return nil
}

// hashFile returns the size and hex encoded SHA-256 of a file
func hashFile(path string) (int64, string, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, "", goerr.Wrap(err, "failed to open file for hashing", goerr.V("path", path))
	}
	defer f.Close()

	h := sha256.New()
	size, err := io.Copy(h, f)
	if err != nil {
		return 0, "", goerr.Wrap(err, "failed to hash file", goerr.V("path", path))
	}

	return size, hex.EncodeToString(h.Sum(nil)), nil
}
