//go:build windows

package codegen

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"os/exec"

	"github.com/xplshn/nhla/pkg/config"
	"github.com/xplshn/nhla/pkg/ir"
)

func (b *qbeBackend) Generate(prog *ir.Program, cfg *config.Config) (*bytes.Buffer, error) {
	fmt.Fprintln(os.Stderr, "nhla: info: libqbe is not available on Windows, using the system's 'qbe'")
	_, err := exec.LookPath("qbe")
	if err != nil {
		return nil, fmt.Errorf("QBE not found in PATH: %s", err.Error())
	}

	qbeIR, err := b.GenerateIR(prog, cfg)
	if err != nil {
		return nil, err
	}

	inputFile, err := os.CreateTemp("", "nhla-qbe-*.temp.ssa")
	if err != nil {
		return nil, err
	}
	defer inputFile.Close()
	defer os.Remove(inputFile.Name())

	if _, err = inputFile.WriteString(qbeIR); err != nil {
		return nil, err
	}

	outputFileName := inputFile.Name() + ".asm"
	cmd := exec.Command(
		"qbe",
		"-o", outputFileName,
		"-t", cfg.BackendTarget,
		inputFile.Name(),
	)

	err = cmd.Run()
	if err != nil {
		return nil, fmt.Errorf("\n--- QBE Compilation Failed ---\nGenerated IR:\n%s\n\nError: %w", qbeIR, err)
	}

	outputFile, err := os.Open(outputFileName)
	if err != nil {
		return nil, err
	}
	defer outputFile.Close()
	defer os.Remove(outputFileName)

	var asmBuf bytes.Buffer
	if _, err = io.Copy(&asmBuf, outputFile); err != nil {
		return nil, err
	}

	return &asmBuf, nil
}
