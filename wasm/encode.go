package wasm

import (
	"strconv"

	"fortio.org/safecast"
	"go.uber.org/zap"

	"github.com/wippyai/wasm-post/binding"
	"github.com/wippyai/wasm-post/errors"
	"github.com/wippyai/wasm-post/module"
	"github.com/wippyai/wasm-post/wasm/internal/binary"
)

// Encode serializes a module context. It fails with an error matching
// errors.ErrDuplicateExportName when two entities share an export name and
// with errors.ErrInvalidModule when any other encoding invariant is broken.
// No output is produced on failure.
func Encode(ctx *module.Context) ([]byte, error) {
	if err := checkExports(ctx); err != nil {
		return nil, err
	}
	if err := checkStructure(ctx); err != nil {
		return nil, err
	}

	e := &encoder{ctx: ctx, w: binary.NewWriter()}
	e.w.WriteU32LE(Magic)
	e.w.WriteU32LE(Version)

	e.section(SectionType, e.types)
	e.section(SectionImport, e.imports)
	e.section(SectionFunction, e.functions)
	e.section(SectionTable, e.tables)
	e.section(SectionMemory, e.memories)
	e.section(SectionGlobal, e.globals)
	e.section(SectionExport, e.exports)
	e.section(SectionStart, e.start)
	e.passthrough(SectionElement)
	e.passthrough(SectionDataCount)
	e.section(SectionCode, e.code)
	e.passthrough(SectionData)
	e.flushCustom(len(ctx.Passthrough))

	out := e.w.Bytes()
	Logger().Debug("encoded module",
		zap.Int("bytes", len(out)),
		zap.Int("exports", len(ctx.Exports())),
		zap.Int("imports", len(ctx.Imports())))
	return out, nil
}

// checkExports enforces export name uniqueness across all kinds.
func checkExports(ctx *module.Context) error {
	seen := make(map[string]module.EntityRef)
	for _, exp := range ctx.Exports() {
		if prev, dup := seen[exp.Name]; dup {
			return errors.DuplicateExport(exp.Name, prev.String(), exp.EntityRef.String())
		}
		seen[exp.Name] = exp.EntityRef
	}
	return nil
}

// checkStructure verifies that every index space can be written without
// renumbering and that every definition is complete.
func checkStructure(ctx *module.Context) error {
	for _, kind := range module.Kinds {
		if _, err := safecast.Conv[uint32](ctx.Len(kind)); err != nil {
			return errors.Invalid([]string{kind.String()}, "%d entries exceed the index space", ctx.Len(kind))
		}
	}

	defined := make(map[module.Kind]module.EntityRef)
	for ref, e := range ctx.Bindings {
		if e.Binding().IsImported() {
			if first, ok := defined[ref.Kind]; ok {
				return errors.Invalid(path(ref), "imported %s follows defined %s; imports must precede definitions", ref, first)
			}
			continue
		}
		if _, ok := defined[ref.Kind]; !ok {
			defined[ref.Kind] = ref
		}
	}

	numTypes := len(ctx.Types)
	for i, f := range ctx.Functions.All() {
		ref := module.EntityRef{Kind: module.KindFunction, Index: i}
		if int(f.TypeIndex) >= numTypes {
			return errors.Invalid(path(ref), "type index %d out of range (%d types)", f.TypeIndex, numTypes)
		}
		if !f.Binding().IsImported() && f.Body == nil {
			return errors.Invalid(path(ref), "defined function has no body")
		}
	}
	for i, g := range ctx.Globals.All() {
		if !g.Binding().IsImported() && len(g.Init) == 0 {
			return errors.Invalid(path(module.EntityRef{Kind: module.KindGlobal, Index: i}), "defined global has no initializer")
		}
	}
	for i, t := range ctx.Tables.All() {
		if err := checkLimits(module.EntityRef{Kind: module.KindTable, Index: i}, t.Limits); err != nil {
			return err
		}
	}
	for i, m := range ctx.Memories.All() {
		if err := checkLimits(module.EntityRef{Kind: module.KindMemory, Index: i}, m.Limits); err != nil {
			return err
		}
	}
	if ctx.Start != nil && int(*ctx.Start) >= ctx.Functions.Len() {
		return errors.Invalid([]string{"start"}, "start function %d out of range", *ctx.Start)
	}
	return nil
}

func checkLimits(ref module.EntityRef, l module.Limits) error {
	if l.Memory64 {
		return nil
	}
	if _, err := safecast.Conv[uint32](l.Min); err != nil {
		return errors.Invalid(path(ref), "minimum %d does not fit a 32-bit limit", l.Min)
	}
	if l.Max != nil {
		if _, err := safecast.Conv[uint32](*l.Max); err != nil {
			return errors.Invalid(path(ref), "maximum %d does not fit a 32-bit limit", *l.Max)
		}
	}
	return nil
}

func path(ref module.EntityRef) []string {
	return []string{ref.Kind.String(), strconv.FormatUint(uint64(ref.Index), 10)}
}

type encoder struct {
	ctx     *module.Context
	w       *binary.Writer
	customs int // passthrough entries already visited for custom flushing
}

// section writes one section if body produced any content. Custom sections
// anchored before id are flushed first.
func (e *encoder) section(id byte, body func(w *binary.Writer) bool) {
	e.flushBefore(sectionOrder(id))
	sec := binary.NewWriter()
	if !body(sec) {
		return
	}
	e.w.Byte(id)
	e.w.WriteVec(sec.Bytes())
}

func (e *encoder) passthrough(id byte) {
	e.section(id, func(w *binary.Writer) bool {
		for _, raw := range e.ctx.Passthrough {
			if raw.ID == id {
				w.WriteBytes(raw.Payload)
				return true
			}
		}
		return false
	})
}

// flushBefore emits custom sections whose anchor sorts before order.
func (e *encoder) flushBefore(order int) {
	for e.customs < len(e.ctx.Passthrough) {
		raw := e.ctx.Passthrough[e.customs]
		if raw.ID != SectionCustom {
			e.customs++
			continue
		}
		if sectionOrder(raw.After) >= order {
			return
		}
		e.writeCustom(raw)
		e.customs++
	}
}

func (e *encoder) flushCustom(limit int) {
	for ; e.customs < limit; e.customs++ {
		if raw := e.ctx.Passthrough[e.customs]; raw.ID == SectionCustom {
			e.writeCustom(raw)
		}
	}
}

func (e *encoder) writeCustom(raw module.RawSection) {
	sec := binary.NewWriter()
	sec.WriteName(raw.Name)
	sec.WriteBytes(raw.Payload)
	e.w.Byte(SectionCustom)
	e.w.WriteVec(sec.Bytes())
}

func (e *encoder) types(w *binary.Writer) bool {
	if len(e.ctx.Types) == 0 {
		return false
	}
	writeCount(w, len(e.ctx.Types))
	for _, ft := range e.ctx.Types {
		w.Byte(FuncTypeByte)
		writeValTypes(w, ft.Params)
		writeValTypes(w, ft.Results)
	}
	return true
}

func (e *encoder) imports(w *binary.Writer) bool {
	imports := e.ctx.Imports()
	if len(imports) == 0 {
		return false
	}
	writeCount(w, len(imports))
	for _, imp := range imports {
		w.WriteName(imp.Module)
		w.WriteName(imp.Name)
		switch imp.Kind {
		case module.KindFunction:
			f, _ := e.ctx.Functions.At(imp.Index)
			w.Byte(KindFunc)
			w.WriteU32(f.TypeIndex)
		case module.KindTable:
			t, _ := e.ctx.Tables.At(imp.Index)
			w.Byte(KindTable)
			writeTableType(w, t)
		case module.KindMemory:
			m, _ := e.ctx.Memories.At(imp.Index)
			w.Byte(KindMemory)
			writeLimits(w, m.Limits)
		case module.KindGlobal:
			g, _ := e.ctx.Globals.At(imp.Index)
			w.Byte(KindGlobal)
			writeGlobalType(w, g.Type)
		}
	}
	return true
}

func (e *encoder) functions(w *binary.Writer) bool {
	var defined []uint32
	for _, f := range e.ctx.Functions.All() {
		if !f.Binding().IsImported() {
			defined = append(defined, f.TypeIndex)
		}
	}
	if len(defined) == 0 {
		return false
	}
	writeCount(w, len(defined))
	for _, idx := range defined {
		w.WriteU32(idx)
	}
	return true
}

func (e *encoder) tables(w *binary.Writer) bool {
	return writeDefined(w, &e.ctx.Tables, writeTableType)
}

func (e *encoder) memories(w *binary.Writer) bool {
	return writeDefined(w, &e.ctx.Memories, func(w *binary.Writer, m *module.Memory) {
		writeLimits(w, m.Limits)
	})
}

func (e *encoder) globals(w *binary.Writer) bool {
	return writeDefined(w, &e.ctx.Globals, func(w *binary.Writer, g *module.Global) {
		writeGlobalType(w, g.Type)
		w.WriteBytes(g.Init)
	})
}

func (e *encoder) exports(w *binary.Writer) bool {
	exports := e.ctx.Exports()
	if len(exports) == 0 {
		return false
	}
	writeCount(w, len(exports))
	for _, exp := range exports {
		w.WriteName(exp.Name)
		w.Byte(byte(exp.Kind))
		w.WriteU32(exp.Index)
	}
	return true
}

func (e *encoder) start(w *binary.Writer) bool {
	if e.ctx.Start == nil {
		return false
	}
	w.WriteU32(*e.ctx.Start)
	return true
}

func (e *encoder) code(w *binary.Writer) bool {
	var bodies []*module.Body
	for _, f := range e.ctx.Functions.All() {
		if !f.Binding().IsImported() {
			bodies = append(bodies, f.Body)
		}
	}
	if len(bodies) == 0 {
		return false
	}
	writeCount(w, len(bodies))
	for _, b := range bodies {
		writeCount(w, len(b.Locals)+len(b.Code))
		w.WriteBytes(b.Locals)
		w.WriteBytes(b.Code)
	}
	return true
}

// writeDefined writes the count and entries of every non-imported entity.
func writeDefined[T any, P interface {
	*T
	Binding() binding.Binding
}](w *binary.Writer, s *module.Section[T], write func(*binary.Writer, P)) bool {
	var defined []P
	for _, v := range s.All() {
		if p := P(v); !p.Binding().IsImported() {
			defined = append(defined, p)
		}
	}
	if len(defined) == 0 {
		return false
	}
	writeCount(w, len(defined))
	for _, p := range defined {
		write(w, p)
	}
	return true
}

// writeCount writes a vector length. Lengths are bounded by checkStructure
// and by the decoder, so the conversion cannot fail for a checked context.
func writeCount(w *binary.Writer, n int) {
	v, err := safecast.Conv[uint32](n)
	if err != nil {
		panic(err)
	}
	w.WriteU32(v)
}

func writeValTypes(w *binary.Writer, types []module.ValType) {
	writeCount(w, len(types))
	for _, t := range types {
		w.Byte(byte(t))
	}
}

func writeTableType(w *binary.Writer, t *module.Table) {
	w.Byte(byte(t.ElemType))
	writeLimits(w, t.Limits)
}

func writeLimits(w *binary.Writer, l module.Limits) {
	flags := LimitsNoMax
	if l.Max != nil {
		flags |= LimitsHasMax
	}
	if l.Shared {
		flags |= LimitsShared
	}
	if l.Memory64 {
		flags |= LimitsMemory64
	}
	w.Byte(flags)
	w.WriteU64(l.Min)
	if l.Max != nil {
		w.WriteU64(*l.Max)
	}
}

func writeGlobalType(w *binary.Writer, g module.GlobalType) {
	w.Byte(byte(g.ValType))
	if g.Mutable {
		w.Byte(1)
	} else {
		w.Byte(0)
	}
}
