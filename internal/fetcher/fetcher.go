// Package fetcher retrieves and parses the spreadsheet inputs that bootstrap
// the roster: XLSX workbooks and CSV exports, fetched from local disk, HTTPS,
// or the registrar's FTP drop.
package fetcher

import (
	"context"
	"io"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"
)

// Fetch resolves a source location to a local file, downloading it first when
// the location is an http(s) or ftp URL. Returns the local path and a cleanup
// function for any temporary download.
func Fetch(ctx context.Context, location string, httpf *HTTPFetcher, ftpf *FTPFetcher) (string, func(), error) {
	noop := func() {}

	u, err := url.Parse(location)
	if err != nil || u.Scheme == "" {
		if _, statErr := os.Stat(location); statErr != nil {
			return "", noop, eris.Wrapf(statErr, "fetcher: source %s", location)
		}
		return location, noop, nil
	}

	tmp, err := os.CreateTemp("", "roster-fetch-*"+filepath.Ext(u.Path))
	if err != nil {
		return "", noop, eris.Wrap(err, "fetcher: create temp file")
	}
	tmpName := tmp.Name()
	tmp.Close()
	cleanup := func() { os.Remove(tmpName) }

	switch strings.ToLower(u.Scheme) {
	case "http", "https":
		if httpf == nil {
			httpf = NewHTTPFetcher(HTTPOptions{})
		}
		if _, err := httpf.DownloadToFile(ctx, location, tmpName); err != nil {
			cleanup()
			return "", noop, err
		}
	case "ftp":
		if ftpf == nil {
			ftpf = NewFTPFetcher(FTPOptions{})
		}
		if _, err := ftpf.DownloadToFile(ctx, location, tmpName); err != nil {
			cleanup()
			return "", noop, err
		}
	default:
		cleanup()
		return "", noop, eris.Errorf("fetcher: unsupported scheme %q", u.Scheme)
	}

	return tmpName, cleanup, nil
}

// copyTo writes the reader's contents to a local file, returning bytes written.
func copyTo(r io.Reader, path string) (int64, error) {
	file, err := os.Create(path)
	if err != nil {
		return 0, eris.Wrap(err, "fetcher: create file")
	}
	defer file.Close()

	n, err := io.Copy(file, r)
	if err != nil {
		return n, eris.Wrap(err, "fetcher: write file")
	}
	return n, nil
}
