// Package golden reads compiler test cases written as Markdown. Every heading
// "Test: <name>" starts a case; the fenced code blocks that follow hold its
// source, an optional TOML configuration and the assertions.
package golden

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"
)

const InputType = "nhla"

// ConfigType fences hold TOML overrides applied before compiling.
const ConfigType = "toml"

type AssertionType string

const (
	AssertionListing      AssertionType = "listing"
	AssertionExecute      AssertionType = "execute"
	AssertionCompileError AssertionType = "compile-error"
	AssertionInterface    AssertionType = "interface"
	AssertionWarnings     AssertionType = "warnings"
)

type Assertion struct {
	Type    AssertionType
	Content string
	Line    int
}

type TestCase struct {
	Name       string
	Input      string
	Config     string
	Line       int
	Assertions []Assertion
}

// ExtractTestCases parses a Markdown document and returns its test cases in
// document order.
func ExtractTestCases(markdown []byte) ([]TestCase, error) {
	doc := goldmark.New().Parser().Parse(text.NewReader(markdown))

	var cases []TestCase
	var current *TestCase
	finish := func() error {
		if current == nil {
			return nil
		}
		if err := validate(current); err != nil {
			return err
		}
		cases = append(cases, *current)
		return nil
	}

	err := ast.Walk(doc, func(node ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		switch n := node.(type) {
		case *ast.Heading:
			heading := nodeText(n, markdown)
			if !strings.HasPrefix(heading, "Test: ") {
				return ast.WalkContinue, nil
			}
			if err := finish(); err != nil {
				return ast.WalkStop, err
			}
			current = &TestCase{Name: strings.TrimPrefix(heading, "Test: "), Line: lineOf(n, markdown)}

		case *ast.FencedCodeBlock:
			lang := string(n.Language(markdown))
			line := lineOf(n, markdown)
			if current == nil {
				if lang != "" {
					return ast.WalkStop, fmt.Errorf("line %d: %s fence outside of a test case", line, lang)
				}
				return ast.WalkContinue, nil
			}
			content := codeBlockText(n, markdown)
			switch {
			case lang == InputType:
				if current.Input != "" {
					return ast.WalkStop, fmt.Errorf("line %d: test '%s' has more than one %s fence", line, current.Name, InputType)
				}
				current.Input = content
			case lang == ConfigType:
				current.Config = content
			case isAssertion(lang):
				current.Assertions = append(current.Assertions, Assertion{
					Type:    AssertionType(lang),
					Content: strings.TrimRight(content, "\n"),
					Line:    line,
				})
			case lang != "":
				return ast.WalkStop, fmt.Errorf("line %d: unknown fence language '%s' in test '%s'", line, lang, current.Name)
			}
		}
		return ast.WalkContinue, nil
	})
	if err != nil {
		return nil, err
	}
	if err := finish(); err != nil {
		return nil, err
	}
	return cases, nil
}

func isAssertion(lang string) bool {
	switch AssertionType(lang) {
	case AssertionListing, AssertionExecute, AssertionCompileError, AssertionInterface, AssertionWarnings:
		return true
	}
	return false
}

func validate(tc *TestCase) error {
	if tc.Input == "" {
		return fmt.Errorf("test '%s' has no %s fence", tc.Name, InputType)
	}
	if len(tc.Assertions) == 0 {
		return fmt.Errorf("test '%s' has no assertion fences", tc.Name)
	}
	return nil
}

func nodeText(node ast.Node, source []byte) string {
	var buf bytes.Buffer
	_ = ast.Walk(node, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if t, ok := n.(*ast.Text); ok && entering {
			buf.Write(t.Segment.Value(source))
		}
		return ast.WalkContinue, nil
	})
	return buf.String()
}

func codeBlockText(block *ast.FencedCodeBlock, source []byte) string {
	var buf bytes.Buffer
	for i := 0; i < block.Lines().Len(); i++ {
		line := block.Lines().At(i)
		buf.Write(line.Value(source))
	}
	return buf.String()
}

func lineOf(node ast.Node, source []byte) int {
	if node.Lines().Len() == 0 {
		return 0
	}
	return bytes.Count(source[:node.Lines().At(0).Start], []byte("\n")) + 1
}
