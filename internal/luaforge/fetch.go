package luaforge

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/schollz/progressbar/v3"
	"go.trai.ch/zerr"
)

const defaultTimeout = 60 * time.Second

// Downloader fetches archives over http(s) or from s3 mirrors.
type Downloader struct {
	client *http.Client
	report *Reporter
	// progress enables a progress bar; only useful on a terminal.
	progress bool
}

func NewDownloader(timeout time.Duration, report *Reporter) *Downloader {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.TLSHandshakeTimeout = 30 * time.Second

	return &Downloader{
		client:   &http.Client{Transport: transport, Timeout: timeout},
		report:   report,
		progress: isTerminal(report.Writer()),
	}
}

// Fetch downloads url into dest. The body goes to dest+".part" first so an
// interrupted download is never mistaken for a complete one.
func (d *Downloader) Fetch(ctx context.Context, url, dest string) error {
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return zerr.Wrap(err, "failed to create "+filepath.Dir(dest))
	}

	return withDownloadLock(dest, func() error {
		if fileExists(dest) {
			d.report.Debugf("File %s appeared after acquiring lock, skipping download.\n", dest)
			return nil
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return err
		}
		resp, err := d.client.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			return fmt.Errorf("download failed with status: %s", resp.Status)
		}

		return d.writePart(dest, resp.ContentLength, func(w io.Writer) error {
			_, err := io.Copy(w, resp.Body)
			return err
		})
	})
}

// FetchS3 downloads key from an s3 mirror into dest.
func (d *Downloader) FetchS3(ctx context.Context, m Mirror, key, dest string) error {
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return zerr.Wrap(err, "failed to create "+filepath.Dir(dest))
	}

	client, err := NewS3Client(ctx, m, d.report.Verbose())
	if err != nil {
		return err
	}

	return withDownloadLock(dest, func() error {
		if fileExists(dest) {
			return nil
		}
		return d.writePart(dest, -1, func(w io.Writer) error {
			_, err := client.Download(ctx, key, w)
			return err
		})
	})
}

func (d *Downloader) writePart(dest string, size int64, fill func(io.Writer) error) error {
	part := dest + ".part"
	out, err := os.Create(part)
	if err != nil {
		return zerr.Wrap(err, "failed to create "+part)
	}

	var w io.Writer = out
	if d.progress {
		bar := progressbar.NewOptions64(size,
			progressbar.OptionSetWriter(d.report.Writer()),
			progressbar.OptionSetDescription(filepath.Base(dest)),
			progressbar.OptionShowBytes(true),
			progressbar.OptionClearOnFinish(),
		)
		defer bar.Finish()
		w = io.MultiWriter(out, bar)
	}

	if err := fill(w); err != nil {
		out.Close()
		_ = os.Remove(part)
		return err
	}
	if err := out.Close(); err != nil {
		_ = os.Remove(part)
		return err
	}
	return os.Rename(part, dest)
}
