package file

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// documents stores one JSON file per id inside a directory.
type documents[T any] struct {
	dir string
}

func newDocuments[T any](root, name string) documents[T] {
	return documents[T]{dir: filepath.Join(root, name)}
}

func validateID(id string) error {
	if id == "" {
		return errors.New("id cannot be empty")
	}

	if strings.Contains(id, "..") || strings.ContainsAny(id, `/\`) {
		return fmt.Errorf("id %q contains invalid characters", id)
	}

	return nil
}

func (d documents[T]) path(id string) string {
	return filepath.Join(d.dir, id+".json")
}

// read returns fs.ErrNotExist when the document is missing.
func (d documents[T]) read(id string) (*T, error) {
	if err := validateID(id); err != nil {
		return nil, err
	}

	body, err := os.ReadFile(d.path(id)) // #nosec G304 -- id is validated above
	if err != nil {
		return nil, err
	}

	var doc T
	if err := json.Unmarshal(body, &doc); err != nil {
		return nil, fmt.Errorf("failed to unmarshal %s: %w", id, err)
	}

	return &doc, nil
}

func (d documents[T]) write(id string, doc *T) error {
	if err := validateID(id); err != nil {
		return err
	}

	if err := os.MkdirAll(d.dir, 0750); err != nil {
		return fmt.Errorf("failed to create directory %s: %w", d.dir, err)
	}

	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal %s: %w", id, err)
	}

	tmp := d.path(id) + ".tmp"
	if err := os.WriteFile(tmp, data, 0600); err != nil {
		return fmt.Errorf("failed to write %s: %w", id, err)
	}

	return os.Rename(tmp, d.path(id))
}

func (d documents[T]) remove(id string) error {
	if err := validateID(id); err != nil {
		return err
	}

	return os.Remove(d.path(id))
}

// all loads every document sorted by file name.
func (d documents[T]) all() ([]*T, error) {
	files, err := fs.Glob(os.DirFS(d.dir), "*.json")
	if err != nil {
		return nil, fmt.Errorf("failed to list %s: %w", d.dir, err)
	}

	sort.Strings(files)

	docs := make([]*T, 0, len(files))

	for _, file := range files {
		doc, err := d.read(strings.TrimSuffix(file, ".json"))
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}

			return nil, err
		}

		docs = append(docs, doc)
	}

	return docs, nil
}
