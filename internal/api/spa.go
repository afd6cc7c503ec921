package api

import (
	"errors"
	"io/fs"
	"net/http"
	"path"
)

// spaFileSystem serves index.html for unknown routes so the page can be
// reloaded on any path. Missing assets (anything with an extension) stay 404.
type spaFileSystem struct {
	root http.FileSystem
}

func (s *spaFileSystem) Open(name string) (http.File, error) {
	f, err := s.root.Open(name)
	if errors.Is(err, fs.ErrNotExist) && path.Ext(name) == "" {
		return s.root.Open("index.html")
	}
	return f, err
}
