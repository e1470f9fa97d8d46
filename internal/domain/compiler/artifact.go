package compiler

import (
	"fmt"
	"strings"
	"time"
)

// Artifact is a compiled component: script text ready to embed in a
// compiled-component document.
type Artifact struct {
	Code       string    `json:"code"`
	ExportName string    `json:"exportName"`
	SourceHash string    `json:"sourceHash"`
	Engine     string    `json:"engine"`
	CompiledAt time.Time `json:"compiledAt"`
	// Warnings name imports removed before transpiling.
	Warnings []string `json:"warnings,omitempty"`
}

// Diagnostic is one positioned transpiler message. Line is 1-based, Column
// 0-based; both are zero when the engine gave no position.
type Diagnostic struct {
	Message  string `json:"message"`
	Line     int    `json:"line,omitempty"`
	Column   int    `json:"column,omitempty"`
	LineText string `json:"lineText,omitempty"`
}

func (d Diagnostic) String() string {
	if d.Line == 0 {
		return d.Message
	}
	return fmt.Sprintf("%d:%d: %s", d.Line, d.Column, d.Message)
}

// CompilationError reports source the transpiler rejected.
type CompilationError struct {
	Engine      string
	Diagnostics []Diagnostic
}

func (e *CompilationError) Error() string {
	if len(e.Diagnostics) == 0 {
		return "compilation failed"
	}
	parts := make([]string, len(e.Diagnostics))
	for i, d := range e.Diagnostics {
		parts[i] = d.String()
	}
	return "compilation failed: " + strings.Join(parts, "; ")
}
