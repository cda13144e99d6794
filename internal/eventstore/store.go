// Package eventstore persists the raw event-list document.
//
// The store holds exactly one named resource. Reads are bounded to what the
// event-list reader will ever look at; writes replace the whole document
// through a temp file and rename so a reader never sees a half-written list.
package eventstore

import (
	"errors"
	"io"
	"io/fs"
	"path/filepath"

	"github.com/spf13/afero"

	"crocker/internal/errcode"
	"crocker/internal/eventlist"
	appLog "crocker/internal/log"
)

// DefaultName is the resource name used when none is configured.
const DefaultName = "duration.json"

// DefaultDocument is written on first access when the resource is missing.
var DefaultDocument = []byte("{\"events\": []}\n")

// Store is a single event-list document on an afero filesystem.
type Store struct {
	fs   afero.Fs
	path string
}

// New returns a Store for path on fsys. An empty path selects DefaultName.
func New(fsys afero.Fs, path string) *Store {
	if path == "" {
		path = DefaultName
	}
	return &Store{fs: fsys, path: path}
}

// NewOS is New over the host filesystem.
func NewOS(path string) *Store {
	return New(afero.NewOsFs(), path)
}

// Path returns the resource location.
func (s *Store) Path() string { return s.path }

// ReadEvents returns at most eventlist.MaxInput-1 bytes of the document,
// creating the default document first if the resource does not exist.
func (s *Store) ReadEvents() ([]byte, error) {
	const op = "eventstore.read"

	f, err := s.fs.Open(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		appLog.Info("event store missing; creating default", "path", s.path)
		if werr := s.write(DefaultDocument); werr != nil {
			return nil, errcode.Wrap(errcode.StoreAbsent, op, werr)
		}
		f, err = s.fs.Open(s.path)
	}
	if err != nil {
		return nil, errcode.Wrap(errcode.StoreAbsent, op, err)
	}
	defer f.Close()

	data, err := io.ReadAll(io.LimitReader(f, eventlist.MaxInput-1))
	if err != nil {
		return nil, errcode.Wrap(errcode.StoreAbsent, op, err)
	}
	return data, nil
}

// WriteEvents replaces the document. Payloads that could not be read back
// in full are refused.
func (s *Store) WriteEvents(data []byte) error {
	const op = "eventstore.write"
	if len(data) >= eventlist.MaxInput {
		return errcode.New(errcode.CapacityExceeded, op, "document too large")
	}
	if err := s.write(data); err != nil {
		return errcode.Wrap(errcode.StoreAbsent, op, err)
	}
	appLog.Debug("event store written", "path", s.path, "bytes", len(data))
	return nil
}

func (s *Store) write(data []byte) error {
	dir := filepath.Dir(s.path)
	if err := s.fs.MkdirAll(dir, 0o700); err != nil {
		return err
	}

	tmp, err := afero.TempFile(s.fs, dir, ".events-*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer s.fs.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return s.fs.Rename(tmpName, s.path)
}
