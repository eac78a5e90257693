// Package store lays out the data directory and reads/writes its JSON files.
package store

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

type FS struct{ Root string }

func New(root string) (*FS, error) {
	s := &FS{Root: root}
	for _, d := range []string{s.PapersDir(), s.ProcessedDir()} {
		if err := os.MkdirAll(d, 0o755); err != nil {
			return nil, err
		}
	}
	return s, nil
}

func (s *FS) RawDir() string       { return filepath.Join(s.Root, "raw") }
func (s *FS) PapersDir() string    { return filepath.Join(s.RawDir(), "papers") }
func (s *FS) CursorDir() string    { return filepath.Join(s.RawDir(), "cursors") }
func (s *FS) ProcessedDir() string { return filepath.Join(s.Root, "processed") }
func (s *FS) OutputDir() string    { return filepath.Join(s.ProcessedDir(), "steel_data") }
func (s *FS) LogsDir() string      { return filepath.Join(s.Root, "logs") }

func (s *FS) DOIList() string        { return filepath.Join(s.RawDir(), "doi_list.json") }
func (s *FS) SeenFile() string       { return filepath.Join(s.RawDir(), "seen_dois.json") }
func (s *FS) DownloadedFile() string { return filepath.Join(s.RawDir(), "downloaded_papers.json") }
func (s *FS) FailedFile() string     { return filepath.Join(s.RawDir(), "failed_dois.json") }

func (s *FS) JobDir(id string) string { return filepath.Join(s.Root, "jobs", id) }
func (s *FS) MkJob(id string) (string, error) {
	j := s.JobDir(id)
	return j, os.MkdirAll(filepath.Join(j, "uploads"), 0o755)
}

// ReadJSON decodes path into v. Missing files surface as os.ErrNotExist.
func ReadJSON(path string, v any) error {
	b, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(b, v); err != nil {
		return fmt.Errorf("decode %s: %w", path, err)
	}
	return nil
}

// WriteJSON writes v indented, without HTML escaping, creating parent dirs.
// The file is replaced atomically.
func WriteJSON(path string, v any) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("encode %s: %w", path, err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), ".tmp-"+filepath.Base(path))
	if err != nil {
		return err
	}
	if _, err := tmp.Write(buf.Bytes()); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	return os.Rename(tmp.Name(), path)
}
