package server

import (
	"embed"
	"fmt"
	"io"
	"io/fs"
	"net/http"
)

//go:embed static/*
var embeddedStatic embed.FS

// staticRoot maps request paths like "js/session-timeout.js" straight onto static/
var staticRoot = mustSub(embeddedStatic, "static")

func mustSub(fsys fs.FS, dir string) fs.FS {
	sub, err := fs.Sub(fsys, dir)
	if err != nil {
		panic(fmt.Sprintf("embedded %s directory: %v", dir, err))
	}
	return sub
}

// serveStatic writes one embedded asset. http.ServeContent picks the content
// type from the extension and answers HEAD and Range requests.
func serveStatic(w http.ResponseWriter, r *http.Request, name string) error {
	f, err := staticRoot.Open(name)
	if err != nil {
		return fmt.Errorf("static asset %s: %w", name, err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return fmt.Errorf("static asset %s: %w", name, err)
	}
	if info.IsDir() {
		return fmt.Errorf("static asset %s: %w", name, fs.ErrNotExist)
	}
	content, ok := f.(io.ReadSeeker)
	if !ok {
		return fmt.Errorf("static asset %s is not seekable", name)
	}
	http.ServeContent(w, r, info.Name(), info.ModTime(), content)
	return nil
}
