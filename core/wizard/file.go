package wizard

import (
	"bytes"
	"io"
	"mime"
	"net/http"
	"os"
	"path/filepath"

	"github.com/pkg/errors"
)

// File is an attached file reference. The controller never reads it; Open is
// only called by the Submitter.
type File struct {
	Name        string
	Size        int64
	ContentType string
	Open        func() (io.ReadCloser, error)
}

// FileFromPath references a file on disk.
func FileFromPath(path string) (File, error) {
	fi, err := os.Stat(path)
	if err != nil {
		return File{}, errors.Wrap(err, "stating attachment")
	}
	if fi.IsDir() {
		return File{}, errors.Errorf("%s is a directory", path)
	}
	ct := mime.TypeByExtension(filepath.Ext(path))
	if ct == "" {
		ct = "application/octet-stream"
	}
	return File{
		Name:        filepath.Base(path),
		Size:        fi.Size(),
		ContentType: ct,
		Open:        func() (io.ReadCloser, error) { return os.Open(path) },
	}, nil
}

// FileFromBytes references an in-memory file.
func FileFromBytes(name string, data []byte) File {
	return File{
		Name:        name,
		Size:        int64(len(data)),
		ContentType: http.DetectContentType(data),
		Open: func() (io.ReadCloser, error) {
			return io.NopCloser(bytes.NewReader(data)), nil
		},
	}
}
