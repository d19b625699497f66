package server

import (
	"embed"
	"html/template"
	"io/fs"
)

const contentTypeHTML = "text/html; charset=utf-8"

//go:embed templates/*
var templateFiles embed.FS

func TemplateFilesFS() fs.FS {
	subFS, err := fs.Sub(templateFiles, "templates")
	if err != nil {
		panic("Failed to create templates sub filesystem: " + err.Error())
	}
	return subFS
}

// ParseTemplate parses one or more templates from the embedded filesystem
func ParseTemplate(names ...string) (*template.Template, error) {
	return template.New(names[0]).ParseFS(TemplateFilesFS(), names...)
}
