package golden

import (
	"bytes"
	"fmt"
	"strconv"
	"strings"

	"github.com/google/go-cmp/cmp"
	"github.com/xplshn/nhla/pkg/codegen"
	"github.com/xplshn/nhla/pkg/compiler"
	"github.com/xplshn/nhla/pkg/config"
	"github.com/xplshn/nhla/pkg/ir"
	"github.com/xplshn/nhla/pkg/symbols"
	"github.com/xplshn/nhla/pkg/util"
	"github.com/xplshn/nhla/pkg/vm"
)

// Result is the outcome of one test case. It passed if Failures is empty.
type Result struct {
	Name     string
	Failures []string
}

func (r *Result) failf(a Assertion, format string, args ...interface{}) {
	msg := fmt.Sprintf(format, args...)
	if a.Line > 0 {
		msg = fmt.Sprintf("line %d: %s: %s", a.Line, a.Type, msg)
	}
	r.Failures = append(r.Failures, msg)
}

type compiled struct {
	cfg    *config.Config
	prog   *ir.Program
	module *compiler.Module
	warn   *util.Warner
	err    error
}

func compile(tc TestCase) (*compiled, error) {
	cfg := config.NewConfig()
	if tc.Config != "" {
		if _, err := cfg.Decode(tc.Config); err != nil {
			return nil, fmt.Errorf("bad configuration: %w", err)
		}
	}
	lines := strings.Split(strings.TrimRight(tc.Input, "\n"), "\n")
	warn := util.NewWarner(cfg, nil, &util.SourceFileRecord{Name: tc.Name, Lines: lines})
	emitter := codegen.NewEmitter(cfg)
	mod, err := compiler.Compile(emitter, cfg, warn, lines)
	return &compiled{cfg: cfg, prog: emitter.Program(), module: mod, warn: warn, err: err}, nil
}

// Run compiles the test case and checks every assertion.
func Run(tc TestCase) Result {
	res := Result{Name: tc.Name}
	c, err := compile(tc)
	if err != nil {
		res.Failures = append(res.Failures, err.Error())
		return res
	}

	var machine *vm.Machine
	for _, a := range tc.Assertions {
		if a.Type == AssertionCompileError {
			switch {
			case c.err == nil:
				res.failf(a, "compiled without error, expected %q", a.Content)
			case !strings.Contains(c.err.Error(), a.Content):
				res.failf(a, "got error %q, expected %q", c.err.Error(), a.Content)
			}
			continue
		}
		if c.err != nil {
			res.failf(a, "compile failed: %v", c.err)
			continue
		}

		switch a.Type {
		case AssertionListing:
			text, err := codegen.NewListingBackend().GenerateIR(c.prog, c.cfg)
			if err != nil {
				res.failf(a, "%v", err)
				continue
			}
			compareLines(&res, a, text)
		case AssertionInterface:
			compareLines(&res, a, FormatInterface(c.module.Dictionary))
		case AssertionWarnings:
			var sb strings.Builder
			for _, w := range c.warn.Issued {
				fmt.Fprintf(&sb, "%d: %s\n", w.Line, c.cfg.Warnings[w.Warning].Name)
			}
			compareLines(&res, a, sb.String())
		case AssertionExecute:
			if machine == nil {
				machine = vm.New(c.prog)
			}
			execute(&res, a, machine, c.module.Dictionary)
		}
	}
	return res
}

func compareLines(res *Result, a Assertion, got string) {
	want := splitLines(a.Content)
	if diff := cmp.Diff(want, splitLines(got)); diff != "" {
		res.failf(a, "mismatch (-want +got):\n%s", diff)
	}
}

func splitLines(s string) []string {
	s = strings.TrimRight(s, "\n")
	if s == "" {
		return nil
	}
	return strings.Split(s, "\n")
}

// FormatInterface lists a dictionary one identifier per line.
func FormatInterface(dict *symbols.Dictionary) string {
	var sb strings.Builder
	for _, id := range dict.Identifiers() {
		switch id.Kind {
		case symbols.Procedure:
			fmt.Fprintf(&sb, "%s procedure $%04x %d\n", id.Key(), id.Value, id.ParamCount)
		case symbols.Variable:
			fmt.Fprintf(&sb, "%s variable $%04x\n", id.Key(), id.Value)
		}
	}
	return sb.String()
}

// execute runs lines of the form "name(1, 2) -> 3", which calls a procedure
// and checks the accumulator, or "$return -> 3", which checks a variable.
func execute(res *Result, a Assertion, m *vm.Machine, dict *symbols.Dictionary) {
	for _, line := range splitLines(a.Content) {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		lhs, rhs, ok := strings.Cut(line, "->")
		if !ok {
			res.failf(a, "%q: expected '<call or variable> -> <value>'", line)
			continue
		}
		want, err := strconv.ParseInt(strings.TrimSpace(rhs), 0, 64)
		if err != nil {
			res.failf(a, "%q: bad value", line)
			continue
		}
		lhs = strings.TrimSpace(lhs)

		var got int
		if name, argText, isCall := strings.Cut(lhs, "("); isCall {
			args, err := parseArgs(strings.TrimSuffix(argText, ")"))
			if err != nil {
				res.failf(a, "%q: %v", line, err)
				continue
			}
			if got, err = m.Call(strings.TrimSpace(name), args...); err != nil {
				res.failf(a, "%q: %v", line, err)
				continue
			}
		} else {
			v, ok := dict.FindVariable(lhs)
			if !ok {
				res.failf(a, "%q: no variable '%s' in the module interface", line, lhs)
				continue
			}
			got = m.Word(v.Value)
		}
		if int64(got) != want {
			res.failf(a, "%s = %d, want %d", lhs, got, want)
		}
	}
}

func parseArgs(text string) ([]int, error) {
	var args []int
	for _, field := range strings.Split(text, ",") {
		field = strings.TrimSpace(field)
		if field == "" {
			continue
		}
		v, err := strconv.ParseInt(field, 0, 64)
		if err != nil {
			return nil, fmt.Errorf("bad argument '%s'", field)
		}
		args = append(args, int(v))
	}
	return args, nil
}

// RunFile extracts and runs every test case of a Markdown document.
func RunFile(markdown []byte) ([]Result, error) {
	cases, err := ExtractTestCases(markdown)
	if err != nil {
		return nil, err
	}
	results := make([]Result, len(cases))
	for i, tc := range cases {
		results[i] = Run(tc)
	}
	return results, nil
}

// Summary renders results the way the test runner prints them.
func Summary(results []Result) string {
	var buf bytes.Buffer
	for _, r := range results {
		if len(r.Failures) == 0 {
			fmt.Fprintf(&buf, "[PASS] %s\n", r.Name)
			continue
		}
		fmt.Fprintf(&buf, "[FAIL] %s\n", r.Name)
		for _, f := range r.Failures {
			fmt.Fprintf(&buf, "    %s\n", strings.ReplaceAll(f, "\n", "\n    "))
		}
	}
	return buf.String()
}
