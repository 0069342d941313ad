package api

import (
	"net/http"
	"os"
	"path"
	"strings"
)

// spaFileSystem serves the embedded frontend and falls back to index.html
// for client-side routes such as /booking.
type spaFileSystem struct {
	root http.FileSystem
}

// Open opens the named file, or index.html for a missing route.
// Missing /api/ paths and missing assets (anything with an extension) stay 404.
func (s *spaFileSystem) Open(name string) (http.File, error) {
	f, err := s.root.Open(name)
	if os.IsNotExist(err) && !strings.HasPrefix(name, "/api/") && path.Ext(name) == "" {
		return s.root.Open("index.html")
	}
	if err != nil {
		return nil, err
	}
	return f, nil
}
