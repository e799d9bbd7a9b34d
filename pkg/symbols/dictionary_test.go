package symbols

import (
	"testing"

	"github.com/nalgeon/be"
	"github.com/xplshn/nhla/pkg/util"
	"gopkg.in/yaml.v3"
)

func TestProcedureAndVariableKeysDoNotCollide(t *testing.T) {
	d := NewDictionary("$return")
	be.Err(t, d.Add(NewVariable("f", 0x2000)), nil)
	be.Err(t, d.Add(NewProcedure("f", 0x1000, 1, 0x2002)), nil)

	v, ok := d.FindVariable("F")
	be.True(t, ok)
	be.Equal(t, v.Value, 0x2000)
	p, ok := d.FindProcedure("f")
	be.True(t, ok)
	be.Equal(t, p.Value, 0x1000)
	be.Equal(t, d.Keys(), []string{"f", "f("})
}

func TestDuplicateKeepsFirst(t *testing.T) {
	d := NewDictionary("$return")
	be.Err(t, d.Add(NewVariable("x", 0x2000)), nil)
	err := d.Add(NewVariable("x", 0x2002))
	be.True(t, util.IsKind(err, util.DuplicateIdentifier))

	v, _ := d.FindVariable("x")
	be.Equal(t, v.Value, 0x2000)
	be.Equal(t, d.Len(), 1)
}

func TestFindByKind(t *testing.T) {
	d := NewDictionary("$return")
	be.Err(t, d.Add(NewVariable("v", 0x2000)), nil)
	_, ok := d.FindProcedure("v")
	be.Equal(t, ok, false)

	id, ok := d.Find("v")
	be.True(t, ok)
	be.Equal(t, id.Kind, Variable)
}

func populated() *Dictionary {
	d := NewDictionary("$return")
	_ = d.Add(NewVariable("$return", 0x2000))
	_ = d.Add(NewVariable("$total", 0x2002))
	_ = d.Add(NewVariable("a", 0x2004))
	_ = d.Add(NewProcedure("demo", 0x1000, 2, 0x2004))
	_ = d.Add(NewProcedure("$main", 0x1006, 0, 0))
	return d
}

func TestDropLocals(t *testing.T) {
	d := populated()
	d.DropLocals()
	be.Equal(t, d.Keys(), []string{"$main(", "$return", "$total", "demo("})
}

func TestFinalizeModule(t *testing.T) {
	d := populated()
	d.FinalizeModule()
	be.Equal(t, d.Keys(), []string{"$main(", "$return", "demo("})

	var names []string
	for _, id := range d.Exports() {
		names = append(names, id.Key())
	}
	be.Equal(t, names, []string{"$main(", "$return"})
}

func TestInterfaceYAML(t *testing.T) {
	d := populated()
	d.FinalizeModule()
	out, err := NewInterface("demo.nhl", d).Marshal()
	be.Err(t, err, nil)

	var got Interface
	be.Err(t, yaml.Unmarshal(out, &got), nil)
	be.Equal(t, got.Module, "demo.nhl")
	be.Equal(t, got.Exports, []InterfaceEntry{
		{Name: "$main", Kind: "procedure", Address: "0x1006"},
		{Name: "$return", Kind: "variable", Address: "0x2000"},
	})
}

func TestKeepExports(t *testing.T) {
	d := populated()
	d.FinalizeModule()
	d.KeepExports()
	be.Equal(t, d.Keys(), []string{"$main(", "$return"})
	be.Err(t, d.Add(NewProcedure("demo", 0x1010, 0, 0)), nil)
}
