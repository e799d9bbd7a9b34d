package symbols

import (
	"fmt"

	"gopkg.in/yaml.v3"
)

// InterfaceEntry is one identifier of a module interface file.
type InterfaceEntry struct {
	Name    string `yaml:"name"`
	Kind    string `yaml:"kind"`
	Address string `yaml:"address"`
	Params  int    `yaml:"params,omitempty"`
}

// Interface is what a compiled module publishes to the modules linked with it.
type Interface struct {
	Module  string           `yaml:"module"`
	Exports []InterfaceEntry `yaml:"exports"`
}

// NewInterface describes the exported identifiers of d.
func NewInterface(module string, d *Dictionary) *Interface {
	iface := &Interface{Module: module, Exports: []InterfaceEntry{}}
	for _, id := range d.Exports() {
		e := InterfaceEntry{Name: id.Name, Kind: id.Kind.String(), Address: fmt.Sprintf("0x%04x", id.Value)}
		if id.Kind == Procedure {
			e.Params = id.ParamCount
		}
		iface.Exports = append(iface.Exports, e)
	}
	return iface
}

func (i *Interface) Marshal() ([]byte, error) { return yaml.Marshal(i) }
