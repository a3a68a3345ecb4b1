package parser

import (
	"fmt"
	"path/filepath"
	"strings"
)

// ParseError describes why source text could not be parsed. Line and
// Column are 1-based.
type ParseError struct {
	Line    int
	Column  int
	Message string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse error at line %d, column %d: %s", e.Line, e.Column, e.Message)
}

// IsPythonFile reports whether path looks like a Python source file
func IsPythonFile(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".py":
		return true
	default:
		return false
	}
}
