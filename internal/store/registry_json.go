package store

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"slices"

	"stockpane/internal/domain"
)

var _ Registry = (*JSONRegistry)(nil)

// JSONRegistry stores the layout as a JSON object keyed by pane, each pane
// mapping file identifier to display name:
//
//	{"left": {"tech.txt": "tech"}, "right": {"energy.txt": "energy"}}
//
// Tabs keep the order their keys appear in the file.
type JSONRegistry struct {
	path string
}

// NewJSONRegistry creates a registry backed by the file at path.
func NewJSONRegistry(path string) *JSONRegistry {
	return &JSONRegistry{path: path}
}

// registryFile is the on-disk shape written by Save.
type registryFile struct {
	Left  paneEntries `json:"left"`
	Right paneEntries `json:"right"`
}

// paneEntries is one pane's file-to-name object, kept in key order.
type paneEntries []Entry

func (p paneEntries) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, e := range p {
		if i > 0 {
			buf.WriteByte(',')
		}
		k, err := json.Marshal(e.File)
		if err != nil {
			return nil, err
		}
		v, err := json.Marshal(e.Name)
		if err != nil {
			return nil, err
		}
		buf.Write(k)
		buf.WriteByte(':')
		buf.Write(v)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

func (p *paneEntries) UnmarshalJSON(data []byte) error {
	if string(bytes.TrimSpace(data)) == "null" {
		*p = nil
		return nil
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if tok != json.Delim('{') {
		return fmt.Errorf("pane: want object, got %v", tok)
	}
	var out paneEntries
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return err
		}
		file, _ := tok.(string)
		var name string
		if err := dec.Decode(&name); err != nil {
			return fmt.Errorf("pane entry %q: %w", file, err)
		}
		// A repeated key keeps its first position and the last name, as a
		// map decode would.
		if i := slices.IndexFunc(out, func(e Entry) bool { return e.File == file }); i >= 0 {
			out[i].Name = name
			continue
		}
		out = append(out, Entry{File: file, Name: name})
	}
	if _, err := dec.Token(); err != nil {
		return err
	}
	*p = out
	return nil
}

// Load reads the registry file. A missing file yields an empty layout.
func (r *JSONRegistry) Load(_ context.Context) (Layout, error) {
	layout := Layout{}
	data, err := os.ReadFile(r.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return layout, nil
		}
		return nil, &domain.PersistenceError{Op: "load", Path: r.path, Err: err}
	}

	var raw map[string]paneEntries
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, &domain.PersistenceError{Op: "load", Path: r.path, Err: err}
	}
	for key, entries := range raw {
		side, err := ParseSide(key)
		if err != nil {
			continue
		}
		layout[side] = []Entry(entries)
	}
	return layout, nil
}

// Save writes the layout, replacing the file atomically.
func (r *JSONRegistry) Save(_ context.Context, layout Layout) error {
	data, err := json.MarshalIndent(registryFile{
		Left:  paneEntries(layout[SideLeft]),
		Right: paneEntries(layout[SideRight]),
	}, "", "  ")
	if err != nil {
		return &domain.PersistenceError{Op: "save", Path: r.path, Err: err}
	}
	if err := writeFileAtomic(r.path, append(data, '\n')); err != nil {
		return &domain.PersistenceError{Op: "save", Path: r.path, Err: err}
	}
	return nil
}

// Close is a no-op.
func (r *JSONRegistry) Close() error { return nil }
