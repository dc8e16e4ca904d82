package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"path/filepath"
	"time"

	"github.com/spf13/afero"

	"github.com/desertthunder/cvsync/internal/shared"
)

// Transfer defaults.
const (
	ChunkSize      = 8192
	ConnectTimeout = 30 * time.Second
	ReadTimeout    = 60 * time.Second
)

const partialSuffix = ".part"

// Downloader streams remote files to an [afero.Fs].
//
// Bytes go to "{dest}.part", which is renamed to dest once the body has been read completely. On any error or
// cancellation the partial file is removed, so dest is either absent or left as it was before the call.
type Downloader struct {
	client    *http.Client
	fs        afero.Fs
	token     string
	chunkSize int
}

// NewDownloader creates a Downloader. A nil client uses [NewTransferClient].
func NewDownloader(client *http.Client, fsys afero.Fs) *Downloader {
	if client == nil {
		client = NewTransferClient()
	}
	return &Downloader{client: client, fs: fsys, chunkSize: ChunkSize}
}

// WithToken sets the Bearer credential sent with each transfer request.
//
// The header is set on the request itself, so [http.Client] drops it when a redirect leaves the original host.
func (d *Downloader) WithToken(token string) *Downloader {
	d.token = token
	return d
}

// NewTransferClient returns an HTTP client with connect and response-header timeouts.
func NewTransferClient() *http.Client {
	transport := &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		DialContext:           (&net.Dialer{Timeout: ConnectTimeout}).DialContext,
		TLSHandshakeTimeout:   ConnectTimeout,
		ResponseHeaderTimeout: ReadTimeout,
		MaxIdleConnsPerHost:   4,
	}
	return &http.Client{Transport: transport}
}

// Transfer downloads url to dest and returns the number of bytes written.
//
// Cancellation is observed between chunks and returns an error matching [shared.ErrCancelled]; every other
// failure matches [shared.ErrTransport].
func (d *Downloader) Transfer(ctx context.Context, url, dest string) (n int64, err error) {
	if err := ctx.Err(); err != nil {
		return 0, fmt.Errorf("%w: %s", shared.ErrCancelled, dest)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return 0, fmt.Errorf("%w: failed to create request: %w", shared.ErrTransport, err)
	}
	if d.token != "" {
		req.Header.Set("Authorization", "Bearer "+d.token)
	}

	resp, err := d.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return 0, fmt.Errorf("%w: %s", shared.ErrCancelled, dest)
		}
		return 0, fmt.Errorf("%w: request failed: %w", shared.ErrTransport, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return 0, fmt.Errorf("%w: %w", shared.ErrTransport, &APIError{StatusCode: resp.StatusCode, URL: url})
	}

	if err := d.fs.MkdirAll(filepath.Dir(dest), 0755); err != nil {
		return 0, fmt.Errorf("%w: failed to create directory: %w", shared.ErrTransport, err)
	}

	partial := dest + partialSuffix
	f, err := d.fs.Create(partial)
	if err != nil {
		return 0, fmt.Errorf("%w: failed to create file: %w", shared.ErrTransport, err)
	}

	defer func() {
		if err != nil {
			f.Close()
			d.fs.Remove(partial)
		}
	}()

	n, err = d.copyChunks(ctx, f, resp.Body)
	if err != nil {
		return 0, err
	}

	if err = f.Close(); err != nil {
		return 0, fmt.Errorf("%w: failed to close file: %w", shared.ErrTransport, err)
	}
	if err = d.fs.Rename(partial, dest); err != nil {
		return 0, fmt.Errorf("%w: failed to move file into place: %w", shared.ErrTransport, err)
	}
	return n, nil
}

func (d *Downloader) copyChunks(ctx context.Context, w io.Writer, r io.Reader) (int64, error) {
	buf := make([]byte, d.chunkSize)

	var total int64
	for {
		if ctx.Err() != nil {
			return total, fmt.Errorf("%w: transfer interrupted after %d bytes", shared.ErrCancelled, total)
		}

		nr, rerr := r.Read(buf)
		if nr > 0 {
			nw, werr := w.Write(buf[:nr])
			total += int64(nw)
			if werr != nil {
				return total, fmt.Errorf("%w: write failed: %w", shared.ErrTransport, werr)
			}
			if nw != nr {
				return total, fmt.Errorf("%w: %w", shared.ErrTransport, io.ErrShortWrite)
			}
		}

		switch {
		case errors.Is(rerr, io.EOF):
			return total, nil
		case rerr != nil:
			if ctx.Err() != nil {
				return total, fmt.Errorf("%w: transfer interrupted after %d bytes", shared.ErrCancelled, total)
			}
			return total, fmt.Errorf("%w: read failed: %w", shared.ErrTransport, rerr)
		}
	}
}
