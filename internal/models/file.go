package models

import "time"

// FileInfo is a loaded source file ready for chunking.
type FileInfo struct {
	FilePath     string    `json:"file_path"`
	RelativePath string    `json:"relative_path"`
	Language     string    `json:"language"`
	Content      string    `json:"content"`
	Size         int64     `json:"size"`
	LastModified time.Time `json:"last_modified"`
}

// Language describes one supported source language: its canonical name,
// recognised extensions, and (if any) tree-sitter grammar identifier.
type Language struct {
	Name       string   `json:"name"`
	Extensions []string `json:"extensions"`
	Parser     string   `json:"parser,omitempty"`
}

// UnknownLanguage is the language tag assigned to files whose extension
// isn't in the detector's table.
const UnknownLanguage = "unknown"
