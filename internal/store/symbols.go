package store

import (
	"bufio"
	"bytes"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"stockpane/internal/domain"
)

// ReadSymbols reads a symbol list file: one symbol per line, blank lines
// ignored. A missing file is an empty list.
func ReadSymbols(path string) ([]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, &domain.PersistenceError{Op: "load", Path: path, Err: err}
	}

	var syms []string
	sc := bufio.NewScanner(bytes.NewReader(data))
	for sc.Scan() {
		if line := strings.TrimSpace(sc.Text()); line != "" {
			syms = append(syms, line)
		}
	}
	if err := sc.Err(); err != nil {
		return nil, &domain.PersistenceError{Op: "load", Path: path, Err: err}
	}
	return syms, nil
}

// WriteSymbols writes syms to path, one per line. The file is replaced
// atomically: on failure the previous content is left in place.
func WriteSymbols(path string, syms []string) error {
	var buf bytes.Buffer
	for _, s := range syms {
		buf.WriteString(s)
		buf.WriteByte('\n')
	}
	if err := writeFileAtomic(path, buf.Bytes()); err != nil {
		return &domain.PersistenceError{Op: "save", Path: path, Err: err}
	}
	return nil
}

// RemoveFile deletes path. A file that is already gone is not an error.
func RemoveFile(path string) error {
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return &domain.PersistenceError{Op: "delete", Path: path, Err: err}
	}
	return nil
}

// writeFileAtomic writes data to a temp file beside path and renames it
// over path.
func writeFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return err
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return err
	}
	return nil
}
