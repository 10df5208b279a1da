// Package attachsvc keeps submitted files on an afero filesystem.
package attachsvc

import (
	"io"
	"os"
	"path"
	"regexp"
	"strings"

	"github.com/pkg/errors"
	"github.com/spf13/afero"

	"github.com/trezcool/academia/core"
	"github.com/trezcool/academia/core/application"
)

var unsafeChars = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

const maxNameLen = 100

// Store lays files out as <application ID>/<attachment ID>-<sanitised name>.
type Store struct {
	fs       afero.Fs
	maxBytes int64
}

var _ application.FileStore = (*Store)(nil)

// NewStore returns a store rooted at conf.Attachments.Dir on the OS filesystem.
func NewStore(conf *core.Config) (*Store, error) {
	if err := os.MkdirAll(conf.Attachments.Dir, 0o750); err != nil {
		return nil, errors.Wrap(err, "creating attachments directory")
	}
	return NewStoreFs(afero.NewBasePathFs(afero.NewOsFs(), conf.Attachments.Dir), conf.Attachments.MaxBytes), nil
}

// NewStoreFs returns a store over any afero filesystem; maxBytes <= 0 disables the size limit.
func NewStoreFs(fs afero.Fs, maxBytes int64) *Store {
	return &Store{fs: fs, maxBytes: maxBytes}
}

// SanitizeName keeps a file name safe to use as a path element.
func SanitizeName(name string) string {
	name = path.Base(strings.ReplaceAll(name, `\`, "/"))
	name = unsafeChars.ReplaceAllString(name, "_")
	name = strings.Trim(name, "._")
	if name == "" {
		name = "file"
	}
	if len(name) > maxNameLen {
		ext := path.Ext(name)
		if len(ext) > 10 {
			ext = ""
		}
		name = name[:maxNameLen-len(ext)] + ext
	}
	return name
}

func (s *Store) Save(appID, attID, name string, r io.Reader) (string, int64, error) {
	dir := SanitizeName(appID)
	if err := s.fs.MkdirAll(dir, 0o750); err != nil {
		return "", 0, errors.Wrap(err, "creating application directory")
	}
	p := path.Join(dir, SanitizeName(attID)+"-"+SanitizeName(name))

	f, err := s.fs.OpenFile(p, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o640)
	if err != nil {
		return "", 0, errors.Wrap(err, "creating attachment file")
	}

	src := r
	if s.maxBytes > 0 {
		src = io.LimitReader(r, s.maxBytes+1)
	}
	n, err := io.Copy(f, src)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err == nil && s.maxBytes > 0 && n > s.maxBytes {
		err = errors.Wrapf(application.ErrFileTooLarge, "limit is %d bytes", s.maxBytes)
	}
	if err != nil {
		_ = s.fs.Remove(p)
		return "", 0, errors.Wrap(err, "writing attachment")
	}
	return p, n, nil
}

func (s *Store) Open(p string) (io.ReadCloser, error) {
	f, err := s.fs.Open(p)
	if err != nil {
		return nil, errors.Wrap(err, "opening attachment")
	}
	return f, nil
}

// Remove deletes a stored file and its application directory once empty.
func (s *Store) Remove(p string) error {
	if p == "" {
		return nil
	}
	if err := s.fs.Remove(p); err != nil && !os.IsNotExist(err) {
		return errors.Wrap(err, "removing attachment")
	}
	dir := path.Dir(p)
	if empty, err := afero.IsEmpty(s.fs, dir); err == nil && empty {
		_ = s.fs.Remove(dir)
	}
	return nil
}
