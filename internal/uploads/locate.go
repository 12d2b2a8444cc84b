package uploads

import (
	"errors"
	"io/fs"
	"os"
	"path"
	"strings"
)

// Locate searches the tree under root for a regular file named name
// (case-insensitive) and returns its slash-separated path relative to root.
// The search is depth-first; within a directory its files are checked before
// any subdirectory is entered, each group in lexical order. A root document
// therefore always wins over nested ones, and the result is reproducible for
// a given tree. Directories with a matching name do not count. Returns
// ErrNotFound when nothing matches.
func Locate(root, name string) (string, error) {
	return locateFS(os.DirFS(root), name)
}

func locateFS(fsys fs.FS, name string) (string, error) {
	found, err := locateIn(fsys, ".", name)
	if errors.Is(err, fs.ErrNotExist) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", err
	}
	if found == "" {
		return "", ErrNotFound
	}
	return found, nil
}

func locateIn(fsys fs.FS, dir, name string) (string, error) {
	// ReadDir sorts by name
	ents, err := fs.ReadDir(fsys, dir)
	if err != nil {
		return "", err
	}
	var subdirs []string
	for _, d := range ents {
		switch {
		case d.Type().IsRegular() && strings.EqualFold(d.Name(), name):
			return path.Join(dir, d.Name()), nil
		case d.IsDir():
			subdirs = append(subdirs, path.Join(dir, d.Name()))
		}
	}
	for _, sub := range subdirs {
		found, err := locateIn(fsys, sub, name)
		if err != nil || found != "" {
			return found, err
		}
	}
	return "", nil
}
