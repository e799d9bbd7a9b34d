package codegen

import (
	"bytes"
	"fmt"

	"github.com/xplshn/nhla/pkg/config"
	"github.com/xplshn/nhla/pkg/ir"
)

// Backend is the interface that all code generation backends must implement.
type Backend interface {
	// GenerateIR renders the program in the backend's textual form without
	// assembling it.
	GenerateIR(prog *ir.Program, cfg *config.Config) (string, error)
	// Generate takes a program and a configuration, and produces the target
	// assembly or listing as a byte buffer.
	Generate(prog *ir.Program, cfg *config.Config) (*bytes.Buffer, error)
}

// SelectBackend returns the backend registered under name.
func SelectBackend(name string) (Backend, error) {
	switch name {
	case "listing", "":
		return NewListingBackend(), nil
	case "qbe":
		return NewQBEBackend(), nil
	default:
		return nil, fmt.Errorf("unsupported backend '%s'", name)
	}
}
