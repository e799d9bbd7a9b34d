package lexer

import (
	"testing"

	"github.com/nalgeon/be"
	"github.com/xplshn/nhla/pkg/config"
	"github.com/xplshn/nhla/pkg/token"
	"github.com/xplshn/nhla/pkg/util"
)

type strTable struct {
	next int
	seen []string
}

func (s *strTable) CreateStringConstant(text string) int {
	s.seen = append(s.seen, text)
	addr := s.next
	s.next += len(text) + 1
	return addr
}

func kinds(toks []token.Token) []string {
	var out []string
	for _, t := range toks {
		out = append(out, t.Text())
	}
	return out
}

func TestPreprocess(t *testing.T) {
	strs := &strTable{next: 100}
	toks, err := Preprocess([]string{
		"PROC Demo(a, b) // header",
		"\tA+0x10>$Total : \"Hi // there\">s",
		"",
	}, strs, config.NewConfig(), nil)
	be.Err(t, err, nil)
	be.Equal(t, kinds(toks), []string{
		"proc", "demo", "(", "a", ",", "b", ")", "end of line",
		"a", "+", "16", ">", "$total", ":", "100", ">", "s", "end of line",
		"end of file",
	})
	be.Equal(t, strs.seen, []string{"Hi // there"})
	be.Equal(t, toks[8].Line, 2)
	be.Equal(t, toks[8].Column, 1)
}

func TestHexLiteralsFeature(t *testing.T) {
	cfg := config.NewConfig()
	cfg.SetFeature(config.FeatHexLiterals, false)
	_, err := Preprocess([]string{"0x10"}, &strTable{}, cfg, nil)
	be.True(t, util.IsKind(err, util.MalformedExpression))
}

func TestErrors(t *testing.T) {
	tests := []struct {
		src  string
		kind util.ErrorKind
	}{
		{`"open`, util.MalformedLiteral},
		{"1@2", util.MalformedExpression},
		{"12ab", util.MalformedExpression},
		{"$1x", util.MalformedExpression},
		{"$", util.MalformedExpression},
	}
	for _, tt := range tests {
		_, err := Preprocess([]string{"proc a()", tt.src}, &strTable{}, config.NewConfig(), nil)
		be.True(t, util.IsKind(err, tt.kind))
		be.Err(t, err, "line 2:")
	}
}

func TestOverflowWarning(t *testing.T) {
	cfg := config.NewConfig()
	warn := util.NewWarner(cfg, nil, nil)
	_, err := Preprocess([]string{"65535", "65536"}, &strTable{}, cfg, warn)
	be.Err(t, err, nil)
	be.Equal(t, warn.Issued, []util.Issued{{Warning: config.WarnOverflow, Line: 2}})
}
