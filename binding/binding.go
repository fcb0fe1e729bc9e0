// Package binding models the host-visibility state of module entities.
//
// Every bindable entity (function, table, memory, global) carries exactly one
// Binding: unbound (private to the module), imported (storage supplied by the
// host under a two-part name) or exported (defined in the module and offered
// to the host under a name).
//
// Replacing a binding is a plain field update. No uniqueness check is made
// against sibling entities; the encoder enforces export name uniqueness.
package binding

import "strconv"

// State identifies which of the three binding forms a Binding holds.
type State uint8

const (
	StateUnbound State = iota
	StateImported
	StateExported
)

func (s State) String() string {
	switch s {
	case StateUnbound:
		return "unbound"
	case StateImported:
		return "imported"
	case StateExported:
		return "exported"
	default:
		return "state(" + strconv.Itoa(int(s)) + ")"
	}
}

// Binding is a tagged value. The zero value is Unbound.
type Binding struct {
	Module string // import module; empty unless Imported
	Name   string // import field or export name
	State  State
}

// Unbound returns the binding of a module-private entity.
func Unbound() Binding {
	return Binding{}
}

// Export returns a binding offering the entity to the host under name.
func Export(name string) Binding {
	return Binding{State: StateExported, Name: name}
}

// Import returns a binding that takes the entity from the host slot module.name.
func Import(module, name string) Binding {
	return Binding{State: StateImported, Module: module, Name: name}
}

func (b Binding) IsUnbound() bool  { return b.State == StateUnbound }
func (b Binding) IsImported() bool { return b.State == StateImported }
func (b Binding) IsExported() bool { return b.State == StateExported }

// ExportName returns the export name if the binding is exported.
func (b Binding) ExportName() (string, bool) {
	if b.State != StateExported {
		return "", false
	}
	return b.Name, true
}

// ImportName returns the two-part import name if the binding is imported.
func (b Binding) ImportName() (module, name string, ok bool) {
	if b.State != StateImported {
		return "", "", false
	}
	return b.Module, b.Name, true
}

// Equal reports whether both bindings have the same state and names.
// Fields that do not apply to the state are ignored.
func (b Binding) Equal(o Binding) bool {
	if b.State != o.State {
		return false
	}
	switch b.State {
	case StateImported:
		return b.Module == o.Module && b.Name == o.Name
	case StateExported:
		return b.Name == o.Name
	default:
		return true
	}
}

func (b Binding) String() string {
	switch b.State {
	case StateImported:
		return "import " + strconv.Quote(b.Module) + " " + strconv.Quote(b.Name)
	case StateExported:
		return "export " + strconv.Quote(b.Name)
	default:
		return "unbound"
	}
}

// Bindable is implemented by every entity kind that can sit on the host
// boundary. Each kind holds its own Binding; there is no shared base type.
type Bindable interface {
	Binding() Binding
	SetBinding(Binding)
}
