package util

import (
	"bytes"
	"fmt"
	"strings"
	"testing"

	"github.com/nalgeon/be"
	"github.com/xplshn/nhla/pkg/config"
)

func TestErrorFormatting(t *testing.T) {
	err := Errorf(UnknownProcedure, 3, "unknown procedure '%s'", "f")
	be.Equal(t, err.Error(), "line 3: unknown procedure: unknown procedure 'f'")

	bare := Errorf(DuplicateIdentifier, 0, "duplicate identifier 'x'")
	be.Equal(t, bare.Error(), "duplicate identifier: duplicate identifier 'x'")
	be.Err(t, AtLine(bare, 7), "line 7:")
}

func TestIsKind(t *testing.T) {
	err := fmt.Errorf("wrapped: %w", Errorf(StructureMismatch, 2, "endif closes while"))
	be.True(t, IsKind(err, StructureMismatch))
	be.Equal(t, IsKind(err, UnclosedStructure), false)
	be.Equal(t, IsKind(fmt.Errorf("plain"), StructureMismatch), false)
}

func TestReport(t *testing.T) {
	var buf bytes.Buffer
	src := &SourceFileRecord{Name: "demo.nhl", Lines: []string{"proc a()", "  b()", "endproc"}}
	Report(&buf, src, Errorf(UnknownProcedure, 2, "unknown procedure 'b'"))
	out := buf.String()
	be.True(t, strings.HasPrefix(out, "demo.nhl:2: "))
	be.True(t, strings.Contains(out, "\n    b()\n"))
}

func TestWarner(t *testing.T) {
	cfg := config.NewConfig()
	var buf bytes.Buffer
	w := NewWarner(cfg, &buf, &SourceFileRecord{Name: "m.nhl", Lines: []string{"proc a()"}})
	w.Warn(config.WarnImplicitLocal, 1, "off by default")
	w.Warn(config.WarnArgCount, 1, "'%s' takes %d arguments", "f", 2)

	be.Equal(t, w.Count, 1)
	be.Equal(t, w.Issued, []Issued{{Warning: config.WarnArgCount, Line: 1}})
	be.True(t, strings.Contains(buf.String(), "'f' takes 2 arguments [-Warg-count]"))

	var none *Warner
	none.Warn(config.WarnArgCount, 1, "ignored")
}
