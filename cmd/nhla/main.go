package main

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"

	"github.com/xplshn/nhla/pkg/cli"
	"github.com/xplshn/nhla/pkg/codegen"
	"github.com/xplshn/nhla/pkg/compiler"
	"github.com/xplshn/nhla/pkg/config"
	"github.com/xplshn/nhla/pkg/symbols"
	"github.com/xplshn/nhla/pkg/util"
	"github.com/xplshn/nhla/pkg/vm"
)

func main() {
	app := cli.NewApp("nhla")
	app.Synopsis = "[options] <module.nhla> ..."
	app.Description = "A single-pass high level assembler. Modules are compiled in order; each one can call the procedures of the modules before it."
	app.Authors = []string{"xplshn"}
	app.Repository = "<https://github.com/xplshn/nhla>"
	app.Since = 2025

	var (
		outFile    string
		target     string
		configFile string
		ifaceFile  string
		runCalls   []string
		dumpIR     bool
		allWarn    bool
		maxSteps   int
	)

	fs := app.FlagSet
	fs.String(&outFile, "output", "o", "", "Place the output into <file> ('-' for stdout).", "file")
	fs.String(&target, "target", "t", "listing", "Set the backend and target ABI.", "backend/target")
	fs.String(&configFile, "config", "c", "", "Read settings from a TOML file.", "file")
	fs.String(&ifaceFile, "interface", "", "", "Write the module interface as YAML.", "file")
	fs.List(&runCalls, "run", "r", []string{}, "Run a procedure on the reference machine, e.g. -r 'demo(3,4)'.", "call")
	fs.Int(&maxSteps, "max-steps", "", vm.DefaultMaxSteps, "Step limit for --run.", "n")
	fs.Bool(&dumpIR, "dump-ir", "d", false, "Dump the backend's textual form and exit.")
	fs.Bool(&allWarn, "Wall", "", false, "Enable all warnings.")

	cfg := config.NewConfig()
	warningFlags, featureFlags := cfg.SetupFlagGroups(fs)

	app.Action = func(inputFiles []string) error {
		if len(inputFiles) == 0 {
			fmt.Fprintln(os.Stderr, "nhla: error: no input files specified")
			os.Exit(1)
		}

		// Settings from the file come first so the command line can override them
		if configFile != "" {
			fileTarget, err := cfg.LoadFile(configFile)
			if err != nil {
				fmt.Fprintf(os.Stderr, "nhla: error: %v\n", err)
				os.Exit(1)
			}
			if fileTarget != "" && target == "listing" {
				target = fileTarget
			}
		}
		if allWarn {
			cfg.ProcessFlags([]string{"Wall"})
		}
		cfg.ApplyFlagGroups(warningFlags, featureFlags)
		cfg.SetTarget(runtime.GOOS, runtime.GOARCH, target)

		backend, err := codegen.SelectBackend(cfg.BackendName)
		if err != nil {
			fmt.Fprintf(os.Stderr, "nhla: error: %v\n", err)
			os.Exit(1)
		}

		fmt.Fprintln(os.Stderr, "----------------------")
		emitter := codegen.NewEmitter(cfg)
		warn := util.NewWarner(cfg, os.Stderr, nil)
		asm := compiler.New(emitter, cfg, warn)
		var dict *symbols.Dictionary
		for _, path := range inputFiles {
			src, err := readSource(path)
			if err != nil {
				fmt.Fprintf(os.Stderr, "nhla: error: %v\n", err)
				os.Exit(1)
			}
			fmt.Fprintf(os.Stderr, "Assembling '%s' (%d lines)...\n", path, len(src.Lines))
			warn.SetSource(src)
			if dict, err = asm.Assemble(src.Lines); err != nil {
				util.Report(os.Stderr, src, err)
				os.Exit(1)
			}
		}
		prog := emitter.Program()
		fmt.Fprintf(os.Stderr, "nhla: info: %d instructions, %d bytes of data, %d warning(s)\n", len(prog.Code), len(prog.Data), warn.Count)

		if ifaceFile != "" {
			module := strings.TrimSuffix(filepath.Base(inputFiles[len(inputFiles)-1]), filepath.Ext(inputFiles[len(inputFiles)-1]))
			data, err := symbols.NewInterface(module, dict).Marshal()
			if err == nil {
				err = os.WriteFile(ifaceFile, data, 0o644)
			}
			if err != nil {
				fmt.Fprintf(os.Stderr, "nhla: error: could not write interface: %v\n", err)
				os.Exit(1)
			}
			fmt.Fprintf(os.Stderr, "Wrote module interface to '%s'\n", ifaceFile)
		}

		if len(runCalls) > 0 {
			m := vm.New(prog)
			m.MaxSteps = maxSteps
			for _, call := range runCalls {
				name, args, err := parseCall(call)
				if err != nil {
					fmt.Fprintf(os.Stderr, "nhla: error: %v\n", err)
					os.Exit(1)
				}
				result, err := m.Call(name, args...)
				if err != nil {
					fmt.Fprintf(os.Stderr, "nhla: error: %s: %v\n", call, err)
					os.Exit(1)
				}
				fmt.Printf("%s = %d\n", call, result)
			}
			return nil
		}

		if dumpIR {
			fmt.Fprintf(os.Stderr, "Dumping output of '%s' backend...\n", cfg.BackendName)
			text, err := backend.GenerateIR(prog, cfg)
			if err != nil {
				fmt.Fprintf(os.Stderr, "nhla: error: backend failed: %v\n", err)
				os.Exit(1)
			}
			fmt.Print(text)
			return nil
		}

		fmt.Fprintf(os.Stderr, "Generating code with '%s' backend...\n", cfg.BackendName)
		out, err := backend.Generate(prog, cfg)
		if err != nil {
			fmt.Fprintf(os.Stderr, "nhla: error: backend failed: %v\n", err)
			os.Exit(1)
		}

		if outFile == "" {
			outFile = defaultOutput(inputFiles[0], cfg.BackendName)
		}
		if outFile == "-" {
			fmt.Print(out.String())
		} else if err := os.WriteFile(outFile, out.Bytes(), 0o644); err != nil {
			fmt.Fprintf(os.Stderr, "nhla: error: %v\n", err)
			os.Exit(1)
		} else {
			fmt.Fprintf(os.Stderr, "Wrote '%s'\n", outFile)
		}
		fmt.Fprintln(os.Stderr, "----------------------")
		fmt.Fprintln(os.Stderr, "Done!")
		return nil
	}

	if err := app.Run(os.Args[1:]); err != nil {
		os.Exit(1)
	}
}

func readSource(path string) (*util.SourceFileRecord, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("could not read file '%s': %w", path, err)
	}
	defer f.Close()

	src := &util.SourceFileRecord{Name: path}
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		src.Lines = append(src.Lines, strings.TrimRight(sc.Text(), "\r"))
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("could not read file '%s': %w", path, err)
	}
	return src, nil
}

func defaultOutput(input, backend string) string {
	base := strings.TrimSuffix(input, filepath.Ext(input))
	if backend == "qbe" {
		return base + ".s"
	}
	return base + ".lst"
}

// parseCall splits "name(1, 2)" into the procedure name and its arguments.
func parseCall(call string) (string, []int, error) {
	name, rest, ok := strings.Cut(call, "(")
	if !ok || !strings.HasSuffix(rest, ")") {
		return "", nil, fmt.Errorf("bad call '%s', expected name(args)", call)
	}
	var args []int
	for _, field := range strings.Split(strings.TrimSuffix(rest, ")"), ",") {
		if field = strings.TrimSpace(field); field == "" {
			continue
		}
		v, err := strconv.ParseInt(field, 0, 64)
		if err != nil {
			return "", nil, fmt.Errorf("bad argument '%s' in '%s'", field, call)
		}
		args = append(args, int(v))
	}
	return strings.ToLower(strings.TrimSpace(name)), args, nil
}
