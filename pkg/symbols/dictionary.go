// Package symbols holds the identifier dictionary shared by the passes of one
// assembly. Lookups are scope-unaware: callers decide when locals go away by
// calling DropLocals, and what survives the module by calling FinalizeModule.
package symbols

import (
	"sort"
	"strings"

	"github.com/xplshn/nhla/pkg/token"
	"github.com/xplshn/nhla/pkg/util"
)

type Kind int

const (
	Variable Kind = iota
	Procedure
)

func (k Kind) String() string {
	switch k {
	case Variable:
		return "variable"
	case Procedure:
		return "procedure"
	}
	return "unknown"
}

// Identifier is a named Variable or Procedure. Value is the storage address
// of a variable or the entry address of a procedure.
type Identifier struct {
	Name       string
	Kind       Kind
	Value      int
	ParamCount int
	ParamBase  int
}

func NewVariable(name string, address int) *Identifier {
	return &Identifier{Name: normalize(name), Kind: Variable, Value: address}
}

func NewProcedure(name string, entry, paramCount, paramBase int) *Identifier {
	return &Identifier{Name: normalize(name), Kind: Procedure, Value: entry, ParamCount: paramCount, ParamBase: paramBase}
}

// Key is the dictionary key: procedures are suffixed with "(" so that a
// procedure and a variable of the same name do not collide.
func (id *Identifier) Key() string {
	switch id.Kind {
	case Procedure:
		return ProcedureKey(id.Name)
	default:
		return id.Name
	}
}

// IsGlobal reports whether id outlives the procedure that created it.
func (id *Identifier) IsGlobal() bool {
	switch id.Kind {
	case Procedure:
		return true
	default:
		return token.IsGlobal(id.Name)
	}
}

// IsExported reports whether other modules may call or share id.
func (id *Identifier) IsExported() bool { return token.IsGlobal(id.Name) }

func ProcedureKey(name string) string { return normalize(name) + "(" }

func normalize(name string) string { return strings.ToLower(strings.TrimSpace(name)) }

type Dictionary struct {
	identifiers map[string]*Identifier
	result      string
}

// NewDictionary returns an empty dictionary. resultName names the reserved
// variable FinalizeModule keeps alongside the procedures.
func NewDictionary(resultName string) *Dictionary {
	return &Dictionary{identifiers: make(map[string]*Identifier), result: normalize(resultName)}
}

// Add inserts id, failing if its key is already present.
func (d *Dictionary) Add(id *Identifier) error {
	key := id.Key()
	if _, exists := d.identifiers[key]; exists {
		return util.Errorf(util.DuplicateIdentifier, 0, "duplicate identifier '%s'", key)
	}
	d.identifiers[key] = id
	return nil
}

// Find looks up a raw key ("name" or "name(").
func (d *Dictionary) Find(key string) (*Identifier, bool) {
	id, ok := d.identifiers[normalize(key)]
	return id, ok
}

func (d *Dictionary) FindVariable(name string) (*Identifier, bool) {
	id, ok := d.identifiers[normalize(name)]
	if !ok || id.Kind != Variable {
		return nil, false
	}
	return id, true
}

func (d *Dictionary) FindProcedure(name string) (*Identifier, bool) {
	id, ok := d.identifiers[ProcedureKey(name)]
	if !ok || id.Kind != Procedure {
		return nil, false
	}
	return id, true
}

// DropLocals removes every variable that is not global.
func (d *Dictionary) DropLocals() {
	for key, id := range d.identifiers {
		if !id.IsGlobal() {
			delete(d.identifiers, key)
		}
	}
}

// FinalizeModule removes everything except procedures and the reserved
// result variable.
func (d *Dictionary) FinalizeModule() {
	for key, id := range d.identifiers {
		switch id.Kind {
		case Procedure:
			continue
		case Variable:
			if key == d.result {
				continue
			}
		}
		delete(d.identifiers, key)
	}
}

func (d *Dictionary) Len() int { return len(d.identifiers) }

// Keys returns the dictionary keys in sorted order.
func (d *Dictionary) Keys() []string {
	keys := make([]string, 0, len(d.identifiers))
	for k := range d.identifiers {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Identifiers returns every entry sorted by key.
func (d *Dictionary) Identifiers() []*Identifier {
	ids := make([]*Identifier, 0, len(d.identifiers))
	for _, k := range d.Keys() {
		ids = append(ids, d.identifiers[k])
	}
	return ids
}

// Exports returns the procedures carrying the export sigil plus the result
// variable, sorted by key.
func (d *Dictionary) Exports() []*Identifier {
	var ids []*Identifier
	for _, id := range d.Identifiers() {
		if (id.Kind == Procedure && id.IsExported()) || (id.Kind == Variable && id.Name == d.result) {
			ids = append(ids, id)
		}
	}
	return ids
}

// KeepExports removes everything Exports would not return. It is what a
// module leaves behind for the modules compiled after it.
func (d *Dictionary) KeepExports() {
	for key, id := range d.identifiers {
		if (id.Kind == Procedure && id.IsExported()) || (id.Kind == Variable && id.Name == d.result) {
			continue
		}
		delete(d.identifiers, key)
	}
}
