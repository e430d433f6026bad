package model

// Document is the renderer-agnostic content of one quote artifact.
type Document struct {
	Filename string
	Title    string
	Lines    []string
}
