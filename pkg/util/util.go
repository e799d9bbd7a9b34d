package util

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/xplshn/nhla/pkg/config"
)

type ErrorKind int

const (
	MalformedLiteral ErrorKind = iota
	DuplicateIdentifier
	UnknownProcedure
	UndefinedVariable
	BadProcedureDefinition
	BadParameter
	TooManyParameters
	MalformedExpression
	CodeOutsideProcedure
	StructureMismatch
	UnclosedStructure
	InvalidAssignmentTarget
)

var kindNames = map[ErrorKind]string{
	MalformedLiteral:        "malformed literal",
	DuplicateIdentifier:     "duplicate identifier",
	UnknownProcedure:        "unknown procedure",
	UndefinedVariable:       "undefined variable",
	BadProcedureDefinition:  "bad procedure definition",
	BadParameter:            "bad parameter",
	TooManyParameters:       "too many parameters",
	MalformedExpression:     "malformed expression",
	CodeOutsideProcedure:    "code outside procedure",
	StructureMismatch:       "structure mismatch",
	UnclosedStructure:       "unclosed structure",
	InvalidAssignmentTarget: "invalid assignment target",
}

func (k ErrorKind) String() string { return kindNames[k] }

// Error is a fatal compilation error. Line is 1-based, 0 when unknown.
type Error struct {
	Kind ErrorKind
	Line int
	Msg  string
}

func (e *Error) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("line %d: %s: %s", e.Line, e.Kind, e.Msg)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Msg)
}

// Errorf builds an *Error of the given kind.
func Errorf(kind ErrorKind, line int, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Line: line, Msg: fmt.Sprintf(format, args...)}
}

// AtLine fills in the line of an *Error raised by a component that does not
// track lines. Other errors are returned unchanged.
func AtLine(err error, line int) error {
	var e *Error
	if errors.As(err, &e) && e.Line == 0 {
		e.Line = line
	}
	return err
}

// IsKind reports whether err is an *Error of the given kind.
func IsKind(err error, kind ErrorKind) bool {
	var e *Error
	return errors.As(err, &e) && e.Kind == kind
}

// SourceFileRecord tracks the name and content of a single source file.
type SourceFileRecord struct {
	Name  string
	Lines []string
}

// printErrorLine prints the source line an error or warning refers to
func printErrorLine(w io.Writer, src *SourceFileRecord, line int) {
	if src == nil || line < 1 || line > len(src.Lines) {
		return
	}
	text := strings.ReplaceAll(src.Lines[line-1], "\t", " ")
	fmt.Fprintf(w, "  %s\n", text)
	trimmed := strings.TrimLeft(text, " ")
	if trimmed == "" {
		return
	}
	indent := len(text) - len(trimmed)
	fmt.Fprintf(w, "  %s\033[32m%s\033[0m\n", strings.Repeat(" ", indent), strings.Repeat("~", len(strings.TrimRight(trimmed, " "))))
}

func fileName(src *SourceFileRecord) string {
	if src == nil || src.Name == "" {
		return "<input>"
	}
	return src.Name
}

// Report prints a formatted error message for err against its source file.
func Report(w io.Writer, src *SourceFileRecord, err error) {
	var e *Error
	if !errors.As(err, &e) {
		fmt.Fprintf(w, "%s: \033[31merror:\033[0m %v\n", fileName(src), err)
		return
	}
	fmt.Fprintf(w, "%s:%d: \033[31merror:\033[0m %s: %s\n", fileName(src), e.Line, e.Kind, e.Msg)
	printErrorLine(w, src, e.Line)
}

// Issued records one warning that was emitted.
type Issued struct {
	Warning config.Warning
	Line    int
}

// Warner prints warnings that are enabled in its configuration.
type Warner struct {
	cfg    *config.Config
	out    io.Writer
	src    *SourceFileRecord
	Count  int
	Issued []Issued
}

func NewWarner(cfg *config.Config, out io.Writer, src *SourceFileRecord) *Warner {
	return &Warner{cfg: cfg, out: out, src: src}
}

// SetSource switches the file warnings are reported against.
func (w *Warner) SetSource(src *SourceFileRecord) {
	if w != nil {
		w.src = src
	}
}

// Warn prints a formatted warning message if the corresponding warning is enabled
func (w *Warner) Warn(wt config.Warning, line int, format string, args ...interface{}) {
	if w == nil || !w.cfg.IsWarningEnabled(wt) {
		return
	}
	w.Count++
	w.Issued = append(w.Issued, Issued{Warning: wt, Line: line})
	if w.out == nil {
		return
	}
	fmt.Fprintf(w.out, "%s:%d: \033[33mwarning:\033[0m ", fileName(w.src), line)
	fmt.Fprintf(w.out, format, args...)
	fmt.Fprintf(w.out, " [-W%s]\n", w.cfg.Warnings[wt].Name)
	printErrorLine(w.out, w.src, line)
}
