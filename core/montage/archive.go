package montage

import (
	"archive/zip"
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"

	"github.com/parlemonde/clap-sub002/core"
	"github.com/parlemonde/clap-sub002/core/project"
)

// ArchiveMLTName is the name of the MLT document inside an archive.
const ArchiveMLTName = "Montage.mlt"

const fetchConcurrency = 4

// Source opens the media files referenced by a montage.
type Source interface {
	Open(ctx context.Context, f File) (io.ReadCloser, error)
}

// DirSource reads local files from a media directory laid out as <dir>/<kind>/<path>.
type DirSource string

func (d DirSource) Open(_ context.Context, f File) (io.ReadCloser, error) {
	if !f.Local {
		return nil, errors.Errorf("%s is not a local file", f.URL)
	}
	name := filepath.Join(string(d), string(f.Kind), filepath.FromSlash(f.Path))
	rel, err := filepath.Rel(string(d), name)
	if err != nil || strings.HasPrefix(rel, "..") {
		return nil, errors.Errorf("%s is outside the media directory", f.URL)
	}
	return os.Open(name)
}

// HTTPSource downloads remote files.
type HTTPSource struct {
	Client *http.Client
}

func (s HTTPSource) Open(ctx context.Context, f File) (io.ReadCloser, error) {
	if f.Local {
		return nil, errors.Errorf("%s is a local file", f.URL)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.URL, nil)
	if err != nil {
		return nil, err
	}
	client := s.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, fmt.Errorf("fetch %s: %s", f.URL, resp.Status)
	}
	return resp.Body, nil
}

// Sources tries each source in turn.
type Sources []Source

func (ss Sources) Open(ctx context.Context, f File) (io.ReadCloser, error) {
	err := errors.Errorf("no source for %s", f.URL)
	for _, s := range ss {
		var rc io.ReadCloser
		rc, err = s.Open(ctx, f)
		if err == nil {
			return rc, nil
		}
	}
	return nil, err
}

// Archive writes a zip holding the project MLT document, in URLLocal mode,
// and every media file the source can open. Files that cannot be read are
// logged and left out.
func Archive(ctx context.Context, w io.Writer, p project.Project, src Source, logger core.Logger) error {
	doc, files := Build(p, URLLocal, "")
	mlt, err := doc.Marshal()
	if err != nil {
		return errors.Wrap(err, "encode mlt")
	}

	contents := make([][]byte, len(files))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(fetchConcurrency)
	for i, f := range files {
		i, f := i, f
		g.Go(func() error {
			data, err := fetch(gctx, src, f)
			if err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				logger.Warn(fmt.Sprintf("montage: skip %s", f.URL), err)
				return nil
			}
			contents[i] = data
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	zw := zip.NewWriter(w)
	if err := writeEntry(zw, ArchiveMLTName, mlt); err != nil {
		return err
	}
	for i, f := range files {
		if contents[i] == nil {
			continue
		}
		if err := writeEntry(zw, f.Name, contents[i]); err != nil {
			return err
		}
	}
	return errors.Wrap(zw.Close(), "close archive")
}

func fetch(ctx context.Context, src Source, f File) ([]byte, error) {
	rc, err := src.Open(ctx, f)
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	return io.ReadAll(rc)
}

func writeEntry(zw *zip.Writer, name string, data []byte) error {
	fw, err := zw.Create(name)
	if err != nil {
		return errors.Wrapf(err, "create %s", name)
	}
	_, err = io.Copy(fw, bytes.NewReader(data))
	return errors.Wrapf(err, "write %s", name)
}
