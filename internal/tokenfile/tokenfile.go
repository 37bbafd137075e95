// Package tokenfile persists the access/refresh token pair and the identity it
// belongs to. The pair lives in a single JSON file replaced atomically, so a
// reader never observes one token without the other.
package tokenfile

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"golang.org/x/oauth2"
)

// FilePerms restricts token files to owner-only read/write.
const FilePerms = 0o600

// DirPerms is used when creating the data directory.
const DirPerms = 0o700

// MetaIdentity is the metadata key holding the account email.
const MetaIdentity = "identity"

// ErrIncompletePair is returned when a token file holds only one of the two tokens.
var ErrIncompletePair = errors.New("tokenfile: token pair incomplete")

// File is the on-disk format.
type File struct {
	Token *oauth2.Token     `json:"token"`
	Meta  map[string]string `json:"meta,omitempty"`
}

// Store reads and writes one token file.
type Store struct {
	path string
}

// NewStore returns a Store backed by path. Nothing is touched until the
// first call.
func NewStore(path string) *Store {
	return &Store{path: path}
}

// Path returns the backing file path.
func (s *Store) Path() string { return s.path }

// Load returns the stored pair and metadata. Returns (nil, nil, nil) if no
// pair is stored.
func (s *Store) Load() (*oauth2.Token, map[string]string, error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil, nil
	}

	if err != nil {
		return nil, nil, fmt.Errorf("tokenfile: reading %s: %w", s.path, err)
	}

	var tf File
	if err := json.Unmarshal(data, &tf); err != nil {
		return nil, nil, fmt.Errorf("tokenfile: decoding %s: %w", s.path, err)
	}

	if tf.Token == nil {
		return nil, nil, fmt.Errorf("tokenfile: %s missing token field (login required)", s.path)
	}

	if tf.Token.AccessToken == "" || tf.Token.RefreshToken == "" {
		return nil, nil, fmt.Errorf("%w: %s", ErrIncompletePair, s.path)
	}

	return tf.Token, tf.Meta, nil
}

// Identity returns the stored account email, or "" if none.
func (s *Store) Identity() (string, error) {
	_, meta, err := s.Load()
	if err != nil {
		return "", err
	}

	return meta[MetaIdentity], nil
}

// Save replaces the stored pair and metadata in one rename. Both tokens must
// be present. Never logs token values.
func (s *Store) Save(tok *oauth2.Token, meta map[string]string) error {
	if tok == nil || tok.AccessToken == "" || tok.RefreshToken == "" {
		return ErrIncompletePair
	}

	data, err := json.MarshalIndent(File{Token: tok, Meta: meta}, "", "  ")
	if err != nil {
		return fmt.Errorf("tokenfile: encoding: %w", err)
	}

	return writeAtomic(s.path, data)
}

// Clear removes the stored pair. Clearing an absent file is not an error.
func (s *Store) Clear() error {
	if err := os.Remove(s.path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("tokenfile: removing %s: %w", s.path, err)
	}

	return nil
}

// writeAtomic replaces path with data through a synced temp file in the same
// directory. The temp file never outlives a failure.
func writeAtomic(path string, data []byte) (err error) {
	dir := filepath.Dir(path)
	if err = os.MkdirAll(dir, DirPerms); err != nil {
		return fmt.Errorf("tokenfile: mkdir %s: %w", dir, err)
	}

	tmp, err := os.CreateTemp(dir, ".tokens-*")
	if err != nil {
		return fmt.Errorf("tokenfile: temp file: %w", err)
	}

	defer func() {
		if err != nil {
			tmp.Close()
			os.Remove(tmp.Name())
		}
	}()

	steps := []struct {
		name string
		run  func() error
	}{
		{"chmod", func() error { return tmp.Chmod(FilePerms) }},
		{"write", func() error { _, werr := tmp.Write(data); return werr }},
		{"sync", tmp.Sync},
		{"close", tmp.Close},
		{"rename", func() error { return os.Rename(tmp.Name(), path) }},
	}

	for _, step := range steps {
		if err = step.run(); err != nil {
			return fmt.Errorf("tokenfile: %s: %w", step.name, err)
		}
	}

	return nil
}
