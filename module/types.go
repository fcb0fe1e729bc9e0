package module

import (
	"slices"
	"strconv"
)

// ValType is a WebAssembly value type in its binary encoding.
type ValType byte

const (
	ValI32       ValType = 0x7F
	ValI64       ValType = 0x7E
	ValF32       ValType = 0x7D
	ValF64       ValType = 0x7C
	ValV128      ValType = 0x7B
	ValFuncRef   ValType = 0x70
	ValExternRef ValType = 0x6F
)

func (v ValType) String() string {
	switch v {
	case ValI32:
		return "i32"
	case ValI64:
		return "i64"
	case ValF32:
		return "f32"
	case ValF64:
		return "f64"
	case ValV128:
		return "v128"
	case ValFuncRef:
		return "funcref"
	case ValExternRef:
		return "externref"
	default:
		return "unknown"
	}
}

// RefType is the element type of a table.
type RefType byte

const (
	RefFunc   RefType = RefType(ValFuncRef)
	RefExtern RefType = RefType(ValExternRef)
)

func (r RefType) String() string {
	return ValType(r).String()
}

// Kind identifies an entity index space. Values match the binary
// import/export descriptor tags.
type Kind byte

const (
	KindFunction Kind = 0
	KindTable    Kind = 1
	KindMemory   Kind = 2
	KindGlobal   Kind = 3
)

func (k Kind) String() string {
	switch k {
	case KindFunction:
		return "function"
	case KindTable:
		return "table"
	case KindMemory:
		return "memory"
	case KindGlobal:
		return "global"
	default:
		return "kind(" + strconv.Itoa(int(k)) + ")"
	}
}

// Kinds lists every bindable kind in index-space order.
var Kinds = []Kind{KindFunction, KindTable, KindMemory, KindGlobal}

// Limits describes size constraints for tables and memories.
type Limits struct {
	Max      *uint64
	Min      uint64
	Shared   bool
	Memory64 bool
}

// Equal reports whether both limits describe the same bounds.
func (l Limits) Equal(o Limits) bool {
	if l.Min != o.Min || l.Shared != o.Shared || l.Memory64 != o.Memory64 {
		return false
	}
	if l.Max == nil || o.Max == nil {
		return l.Max == nil && o.Max == nil
	}
	return *l.Max == *o.Max
}

func (l Limits) String() string {
	s := strconv.FormatUint(l.Min, 10)
	if l.Max != nil {
		s += ".." + strconv.FormatUint(*l.Max, 10)
	}
	if l.Shared {
		s += " shared"
	}
	if l.Memory64 {
		s += " i64"
	}
	return s
}

// FuncType is a function signature.
type FuncType struct {
	Params  []ValType
	Results []ValType
}

// Equal reports whether both signatures are identical.
func (f FuncType) Equal(o FuncType) bool {
	return slices.Equal(f.Params, o.Params) && slices.Equal(f.Results, o.Results)
}

func (f FuncType) String() string {
	return "(" + joinTypes(f.Params) + ") -> (" + joinTypes(f.Results) + ")"
}

func joinTypes(ts []ValType) string {
	s := ""
	for i, t := range ts {
		if i > 0 {
			s += " "
		}
		s += t.String()
	}
	return s
}

// GlobalType describes a global's value type and mutability.
type GlobalType struct {
	ValType ValType
	Mutable bool
}
