package luaforge

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"go.trai.ch/zerr"
)

// Sources stages package sources into the run's scratch directory.
type Sources struct {
	opts    Options
	runner  Runner
	report  *Reporter
	memo    *Memo
	dl      *Downloader
	scratch string
}

func NewSources(opts Options, runner Runner, report *Reporter, memo *Memo, dl *Downloader, scratch string) *Sources {
	return &Sources{opts: opts, runner: runner, report: report, memo: memo, dl: dl, scratch: scratch}
}

type downloadCandidate struct {
	display string
	url     string
	mirror  *Mirror
}

func (s *Sources) candidates(v *Variant, version, name string) []downloadCandidate {
	var out []downloadCandidate
	for i := range s.opts.Mirrors {
		m := &s.opts.Mirrors[i]
		if !m.serves(v.Name) {
			continue
		}
		loc := m.location(name)
		display := loc
		if m.Type == "s3" {
			display = "s3://" + m.Bucket + "/" + loc
		}
		out = append(out, downloadCandidate{display: display, url: loc, mirror: m})
	}
	for _, url := range v.DownloadURLs(version, s.opts) {
		out = append(out, downloadCandidate{display: url, url: url})
	}
	return out
}

// fetchArchive downloads (or reuses) the release archive of version, checks
// it against the pinned checksum and extracts it. It returns the tree root.
func (s *Sources) fetchArchive(ctx context.Context, v *Variant, version, suffix string) (string, error) {
	name := v.DownloadName(version, s.opts)

	archive := filepath.Join(s.scratch, name)
	if s.opts.Downloads != "" {
		if err := os.MkdirAll(s.opts.Downloads, 0o755); err != nil {
			return "", zerr.Wrap(err, "failed to create downloads directory")
		}
		archive = filepath.Join(s.opts.Downloads, name)
	}

	if s.opts.Downloads != "" && fileExists(archive) {
		s.report.Step("Fetching %s%s (cached)", v.Title, suffix)
	} else if err := s.download(ctx, v, version, suffix, name, archive); err != nil {
		return "", err
	}

	s.report.Note("Verifying SHA256 checksum")
	expected := v.Checksums[name]
	observed, err := sha256File(archive)
	if err != nil {
		return "", err
	}
	if expected != observed {
		msg := fmt.Sprintf("SHA256 checksum mismatch for %s\nExpected: %s\nObserved: %s", archive, expected, observed)
		if !s.opts.IgnoreChecksums {
			return "", zerr.With(zerr.Wrap(ErrChecksumMismatch, msg), "file", archive)
		}
		s.report.Warn("%s", msg)
	}

	dest := filepath.Join(s.scratch, stripArchiveSuffix(name))
	if err := extractArchive(archive, dest); err != nil {
		return "", zerr.With(zerr.Wrap(err, "failed to extract "+name), "archive", archive)
	}
	return dest, nil
}

func (s *Sources) download(ctx context.Context, v *Variant, version, suffix, name, archive string) error {
	for _, c := range s.candidates(v, version, name) {
		s.report.Step("Fetching %s%s from %s", v.Title, suffix, c.display)

		var err error
		if c.mirror != nil && c.mirror.Type == "s3" {
			err = s.dl.FetchS3(ctx, *c.mirror, c.url, archive)
		} else {
			err = s.dl.Fetch(ctx, c.url, archive)
		}
		if err == nil {
			return nil
		}
		if ctx.Err() != nil {
			return zerr.Wrap(ctx.Err(), "download aborted")
		}
		s.report.Note("Download failed: %v", err)
		if c.mirror != nil {
			s.report.Info("Mirror %s (%s) unavailable, trying next source", c.mirror.Name, c.mirror)
		}
	}
	return zerr.With(zerr.Wrap(ErrDownloadFailed, "couldn't fetch "+name), "package", v.Name)
}

// stageLocal copies a local source tree into scratch.
func (s *Sources) stageLocal(v *Variant, path string) (string, error) {
	s.report.Step("Using %s from %s", v.Title, path)
	dest := filepath.Join(s.scratch, v.Name)
	if err := copyDir(path, dest); err != nil {
		return "", zerr.With(zerr.Wrap(err, "failed to copy local sources"), "path", path)
	}
	return dest, nil
}

// detach copies the persistent git checkout into scratch so the build never
// writes into the cache.
func (s *Sources) detach(v *Variant, repoPath string) (string, error) {
	dest := filepath.Join(s.scratch, v.Name)
	if err := copyDir(repoPath, dest); err != nil {
		return "", zerr.With(zerr.Wrap(err, "failed to copy cached repository"), "repo", repoPath)
	}
	return dest, nil
}
