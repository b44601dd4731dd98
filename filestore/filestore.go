// Package filestore writes received files without replacing existing ones.
package filestore

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/ethereum/go-ethereum/log"
)

// ErrInvalidName is returned for names that are not a single path element.
var ErrInvalidName = errors.New("invalid file name")

// The counter is placed before this suffix instead of after the name.
const textSuffix = ".txt"

// SavedFile is a file created by Save.
type SavedFile struct {
	Name string // Chosen name, may differ from the requested one
	Path string // Name joined with the directory
	Size int
}

// Save writes content to a new file in dir. If an entry called filename already
// exists, the first free name out of name_1, name_2, ... is used instead.
//
// Names are claimed with exclusive create, so a concurrent writer can't cause
// an existing file to be replaced.
func Save(dir, filename string, content []byte) (*SavedFile, error) {
	if err := checkName(filename); err != nil {
		return nil, err
	}
	for n := 0; ; n++ {
		name := CandidateName(filename, n)
		path := filepath.Join(dir, name)
		f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0644)
		if errors.Is(err, fs.ErrExist) {
			log.Trace("File exists, trying next name", "name", name)
			continue
		}
		if err != nil {
			return nil, err
		}
		if err := write(f, content); err != nil {
			os.Remove(path)
			return nil, fmt.Errorf("can't write %s: %w", name, err)
		}
		log.Debug("Saved file", "name", name, "size", len(content))
		return &SavedFile{Name: name, Path: path, Size: len(content)}, nil
	}
}

func write(f *os.File, content []byte) error {
	_, err := f.Write(content)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	return err
}

// CandidateName returns the n'th name tried for filename. Candidate zero is
// filename itself. For names ending in ".txt", the counter goes before the suffix.
func CandidateName(filename string, n int) string {
	if n == 0 {
		return filename
	}
	if base, ok := strings.CutSuffix(filename, textSuffix); ok {
		return fmt.Sprintf("%s_%d%s", base, n, textSuffix)
	}
	return fmt.Sprintf("%s_%d", filename, n)
}

func checkName(filename string) error {
	switch {
	case filename == "", filename == ".", filename == "..":
		return fmt.Errorf("%w: %q", ErrInvalidName, filename)
	case strings.ContainsAny(filename, `/\`), filepath.Base(filename) != filename:
		return fmt.Errorf("%w: %q contains a path separator", ErrInvalidName, filename)
	}
	return nil
}
