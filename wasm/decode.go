package wasm

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/wippyai/wasm-post/binding"
	"github.com/wippyai/wasm-post/errors"
	"github.com/wippyai/wasm-post/module"
	"github.com/wippyai/wasm-post/wasm/internal/binary"
)

type rawImport struct {
	table   *module.Table
	memory  *module.Memory
	global  *module.GlobalType
	module  string
	name    string
	typeIdx uint32
	kind    byte
}

type rawExport struct {
	name string
	idx  uint32
	kind byte
}

type decoder struct {
	ctx      *module.Context
	imports  []rawImport
	funcs    []uint32
	tables   []*module.Table
	memories []*module.Memory
	globals  []*module.Global
	exports  []rawExport
	bodies   []*module.Body
	lastID   byte
}

// Decode parses a WebAssembly binary into a module context. Each index
// space lists imported entities first, then definitions, both in
// declaration order. Structurally invalid input fails with an error
// matching errors.ErrMalformedModule.
func Decode(data []byte) (*module.Context, error) {
	r := binary.NewReader(data, 0)

	magic, err := r.ReadU32LE()
	if err != nil {
		return nil, errors.Malformed("header", err, "truncated header")
	}
	if magic != Magic {
		return nil, errors.Malformed("header", nil, "invalid magic number 0x%08x", magic)
	}
	version, err := r.ReadU32LE()
	if err != nil {
		return nil, errors.Malformed("header", err, "truncated header")
	}
	if version != Version {
		return nil, errors.Malformed("header", nil, "unsupported version %d", version)
	}

	d := &decoder{ctx: module.New()}
	var lastOrder int

	for r.Len() > 0 {
		id, err := r.ReadByte()
		if err != nil {
			return nil, errors.Malformed("section header", err, "truncated section id")
		}
		name := SectionName(id)

		if id != SectionCustom {
			order := sectionOrder(id)
			if order == 0 {
				return nil, errors.Malformed(name, nil, "unknown section id 0x%02x", id)
			}
			if order <= lastOrder {
				return nil, errors.Malformed(name, nil, "section appears out of order")
			}
			lastOrder = order
		}

		size, err := r.ReadU32()
		if err != nil {
			return nil, errors.Malformed(name, err, "truncated section size")
		}
		start := r.Position()
		payload, err := r.ReadBytes(int(size))
		if err != nil {
			return nil, errors.Malformed(name, err, "section exceeds module size")
		}

		if err := d.section(id, payload, start); err != nil {
			if e, ok := err.(*errors.Error); ok && e.Kind == errors.KindUnsupported {
				return nil, e
			}
			return nil, errors.Malformed(name, err, "invalid %s section", name)
		}
		if id != SectionCustom {
			d.lastID = id
		}
	}

	if err := d.assemble(); err != nil {
		return nil, err
	}

	Logger().Debug("decoded module",
		zap.Int("bytes", len(data)),
		zap.Int("types", len(d.ctx.Types)),
		zap.Int("functions", d.ctx.Functions.Len()),
		zap.Int("tables", d.ctx.Tables.Len()),
		zap.Int("memories", d.ctx.Memories.Len()),
		zap.Int("globals", d.ctx.Globals.Len()),
		zap.Int("exports", len(d.exports)))

	return d.ctx, nil
}

func (d *decoder) section(id byte, payload []byte, start int) error {
	switch id {
	case SectionElement, SectionData, SectionDataCount:
		d.ctx.Passthrough = append(d.ctx.Passthrough, module.RawSection{ID: id, Payload: payload})
		return nil
	case SectionTag:
		return errors.Unsupported(errors.PhaseDecode, "exception tag section")
	}

	r := binary.NewReader(payload, start)
	var err error
	switch id {
	case SectionCustom:
		err = d.parseCustom(r)
	case SectionType:
		err = d.parseTypes(r)
	case SectionImport:
		err = d.parseImports(r)
	case SectionFunction:
		err = d.parseFunctions(r)
	case SectionTable:
		err = d.parseTables(r)
	case SectionMemory:
		err = d.parseMemories(r)
	case SectionGlobal:
		err = d.parseGlobals(r)
	case SectionExport:
		err = d.parseExports(r)
	case SectionStart:
		err = d.parseStart(r)
	case SectionCode:
		err = d.parseCode(r)
	}
	if err != nil {
		return err
	}
	if r.Len() != 0 {
		return fmt.Errorf("%d trailing bytes at offset %d", r.Len(), r.Position())
	}
	return nil
}

func (d *decoder) parseCustom(r *binary.Reader) error {
	name, err := r.ReadName()
	if err != nil {
		return err
	}
	rest, err := r.ReadRemaining()
	if err != nil {
		return err
	}
	d.ctx.Passthrough = append(d.ctx.Passthrough, module.RawSection{
		ID:      SectionCustom,
		Name:    name,
		Payload: rest,
		After:   d.lastID,
	})
	return nil
}

func (d *decoder) parseTypes(r *binary.Reader) error {
	count, err := r.ReadU32()
	if err != nil {
		return err
	}
	for i := uint32(0); i < count; i++ {
		form, err := r.ReadByte()
		if err != nil {
			return err
		}
		if form != FuncTypeByte {
			if isGCTypeForm(form) {
				return errors.Unsupported(errors.PhaseDecode, fmt.Sprintf("type %d: GC type definition 0x%02x", i, form))
			}
			return fmt.Errorf("type %d: unknown type form 0x%02x", i, form)
		}
		params, err := readValTypes(r)
		if err != nil {
			return fmt.Errorf("type %d params: %w", i, err)
		}
		results, err := readValTypes(r)
		if err != nil {
			return fmt.Errorf("type %d results: %w", i, err)
		}
		d.ctx.Types = append(d.ctx.Types, module.FuncType{Params: params, Results: results})
	}
	return nil
}

func (d *decoder) parseImports(r *binary.Reader) error {
	count, err := r.ReadU32()
	if err != nil {
		return err
	}
	for i := uint32(0); i < count; i++ {
		imp := rawImport{}
		if imp.module, err = r.ReadName(); err != nil {
			return err
		}
		if imp.name, err = r.ReadName(); err != nil {
			return err
		}
		if imp.kind, err = r.ReadByte(); err != nil {
			return err
		}
		switch imp.kind {
		case KindFunc:
			imp.typeIdx, err = r.ReadU32()
		case KindTable:
			imp.table, err = readTableType(r)
		case KindMemory:
			var limits module.Limits
			limits, err = readLimits(r)
			imp.memory = module.NewMemory(limits, binding.Unbound())
		case KindGlobal:
			var gt module.GlobalType
			gt, err = readGlobalType(r)
			imp.global = &gt
		case KindTag:
			err = errors.Unsupported(errors.PhaseDecode, fmt.Sprintf("import %q.%q: exception tag", imp.module, imp.name))
		default:
			err = fmt.Errorf("import %q.%q: unknown kind 0x%02x", imp.module, imp.name, imp.kind)
		}
		if err != nil {
			return err
		}
		d.imports = append(d.imports, imp)
	}
	return nil
}

func (d *decoder) parseFunctions(r *binary.Reader) error {
	count, err := r.ReadU32()
	if err != nil {
		return err
	}
	for i := uint32(0); i < count; i++ {
		idx, err := r.ReadU32()
		if err != nil {
			return err
		}
		d.funcs = append(d.funcs, idx)
	}
	return nil
}

func (d *decoder) parseTables(r *binary.Reader) error {
	count, err := r.ReadU32()
	if err != nil {
		return err
	}
	for i := uint32(0); i < count; i++ {
		t, err := readTableType(r)
		if err != nil {
			return fmt.Errorf("table %d: %w", i, err)
		}
		d.tables = append(d.tables, t)
	}
	return nil
}

func (d *decoder) parseMemories(r *binary.Reader) error {
	count, err := r.ReadU32()
	if err != nil {
		return err
	}
	for i := uint32(0); i < count; i++ {
		limits, err := readLimits(r)
		if err != nil {
			return fmt.Errorf("memory %d: %w", i, err)
		}
		d.memories = append(d.memories, module.NewMemory(limits, binding.Unbound()))
	}
	return nil
}

func (d *decoder) parseGlobals(r *binary.Reader) error {
	count, err := r.ReadU32()
	if err != nil {
		return err
	}
	for i := uint32(0); i < count; i++ {
		gt, err := readGlobalType(r)
		if err != nil {
			return fmt.Errorf("global %d: %w", i, err)
		}
		init, err := readConstExpr(r)
		if err != nil {
			return fmt.Errorf("global %d init: %w", i, err)
		}
		d.globals = append(d.globals, module.NewGlobal(gt, init, binding.Unbound()))
	}
	return nil
}

func (d *decoder) parseExports(r *binary.Reader) error {
	count, err := r.ReadU32()
	if err != nil {
		return err
	}
	for i := uint32(0); i < count; i++ {
		exp := rawExport{}
		if exp.name, err = r.ReadName(); err != nil {
			return err
		}
		if exp.kind, err = r.ReadByte(); err != nil {
			return err
		}
		if exp.idx, err = r.ReadU32(); err != nil {
			return err
		}
		d.exports = append(d.exports, exp)
	}
	return nil
}

func (d *decoder) parseStart(r *binary.Reader) error {
	idx, err := r.ReadU32()
	if err != nil {
		return err
	}
	d.ctx.Start = &idx
	return nil
}

func (d *decoder) parseCode(r *binary.Reader) error {
	count, err := r.ReadU32()
	if err != nil {
		return err
	}
	for i := uint32(0); i < count; i++ {
		size, err := r.ReadU32()
		if err != nil {
			return err
		}
		start := r.Position()
		raw, err := r.ReadBytes(int(size))
		if err != nil {
			return fmt.Errorf("body %d: %w", i, err)
		}
		body, err := splitBody(raw, start)
		if err != nil {
			return fmt.Errorf("body %d: %w", i, err)
		}
		d.bodies = append(d.bodies, body)
	}
	return nil
}

// splitBody separates the local declaration vector from the expression.
func splitBody(raw []byte, start int) (*module.Body, error) {
	r := binary.NewReader(raw, start)
	groups, err := r.ReadU32()
	if err != nil {
		return nil, err
	}
	for i := uint32(0); i < groups; i++ {
		if _, err := r.ReadU32(); err != nil {
			return nil, err
		}
		b, err := r.ReadByte()
		if err != nil {
			return nil, err
		}
		if b == refNullByte || b == refByte {
			if _, err := r.SkipLEB128(); err != nil {
				return nil, err
			}
		}
	}
	n := len(raw) - r.Len()
	if r.Len() == 0 {
		return nil, fmt.Errorf("missing function expression")
	}
	return &module.Body{Locals: raw[:n], Code: raw[n:]}, nil
}

// assemble builds the index spaces and applies export bindings.
func (d *decoder) assemble() error {
	if len(d.funcs) != len(d.bodies) {
		return errors.Malformed("code", nil, "function and code section counts differ (%d vs %d)", len(d.funcs), len(d.bodies))
	}

	c := d.ctx
	for _, imp := range d.imports {
		b := binding.Import(imp.module, imp.name)
		switch imp.kind {
		case KindFunc:
			c.Functions.Append(module.NewFunction(imp.typeIdx, nil, b))
		case KindTable:
			imp.table.SetBinding(b)
			c.Tables.Append(imp.table)
		case KindMemory:
			imp.memory.SetBinding(b)
			c.Memories.Append(imp.memory)
		case KindGlobal:
			c.Globals.Append(module.NewGlobal(*imp.global, nil, b))
		}
	}
	for i, typeIdx := range d.funcs {
		c.Functions.Append(module.NewFunction(typeIdx, d.bodies[i], binding.Unbound()))
	}
	for _, t := range d.tables {
		c.Tables.Append(t)
	}
	for _, m := range d.memories {
		c.Memories.Append(m)
	}
	for _, g := range d.globals {
		c.Globals.Append(g)
	}

	seen := make(map[string]module.EntityRef, len(d.exports))
	for _, exp := range d.exports {
		ref, err := exportRef(exp)
		if err != nil {
			return err
		}
		if prev, dup := seen[exp.name]; dup {
			return errors.Malformed("export", nil, "export name %q used by %s and %s", exp.name, prev, ref)
		}
		seen[exp.name] = ref

		e, ok := c.Entity(ref)
		if !ok {
			return errors.Malformed("export", nil, "export %q refers to missing %s", exp.name, ref)
		}
		if cur := e.Binding(); !cur.IsUnbound() {
			return errors.New(errors.PhaseDecode, errors.KindUnsupported).
				Path("export", exp.name).
				Detail("%s is already bound (%s); an entity carries a single binding", ref, cur).
				Build()
		}
		e.SetBinding(binding.Export(exp.name))
	}
	return nil
}

func exportRef(exp rawExport) (module.EntityRef, error) {
	ref := module.EntityRef{Index: exp.idx}
	switch exp.kind {
	case KindFunc:
		ref.Kind = module.KindFunction
	case KindTable:
		ref.Kind = module.KindTable
	case KindMemory:
		ref.Kind = module.KindMemory
	case KindGlobal:
		ref.Kind = module.KindGlobal
	case KindTag:
		return ref, errors.Unsupported(errors.PhaseDecode, fmt.Sprintf("export %q: exception tag", exp.name))
	default:
		return ref, errors.Malformed("export", nil, "export %q: unknown kind 0x%02x", exp.name, exp.kind)
	}
	return ref, nil
}

func readValTypes(r *binary.Reader) ([]module.ValType, error) {
	count, err := r.ReadU32()
	if err != nil {
		return nil, err
	}
	if int(count) > r.Len() {
		return nil, fmt.Errorf("value type count %d exceeds payload", count)
	}
	types := make([]module.ValType, 0, count)
	for i := uint32(0); i < count; i++ {
		vt, err := readValType(r)
		if err != nil {
			return nil, err
		}
		types = append(types, vt)
	}
	return types, nil
}

func readValType(r *binary.Reader) (module.ValType, error) {
	b, err := r.ReadByte()
	if err != nil {
		return 0, err
	}
	switch vt := module.ValType(b); vt {
	case module.ValI32, module.ValI64, module.ValF32, module.ValF64, module.ValV128,
		module.ValFuncRef, module.ValExternRef:
		return vt, nil
	}
	if b == refNullByte || b == refByte {
		return 0, fmt.Errorf("typed reference 0x%02x is not supported", b)
	}
	return 0, fmt.Errorf("invalid value type 0x%02x", b)
}

func readTableType(r *binary.Reader) (*module.Table, error) {
	b, err := r.ReadByte()
	if err != nil {
		return nil, err
	}
	if b == tableInitPrefix {
		return nil, fmt.Errorf("table initializer expressions are not supported")
	}
	elem := module.RefType(b)
	if elem != module.RefFunc && elem != module.RefExtern {
		return nil, fmt.Errorf("unsupported table element type 0x%02x", b)
	}
	limits, err := readLimits(r)
	if err != nil {
		return nil, err
	}
	return module.NewTable(elem, limits, binding.Unbound()), nil
}

func readLimits(r *binary.Reader) (module.Limits, error) {
	flags, err := r.ReadByte()
	if err != nil {
		return module.Limits{}, err
	}
	if flags&^(LimitsHasMax|LimitsShared|LimitsMemory64) != 0 {
		return module.Limits{}, fmt.Errorf("invalid limits flags 0x%02x", flags)
	}
	l := module.Limits{
		Shared:   flags&LimitsShared != 0,
		Memory64: flags&LimitsMemory64 != 0,
	}
	if l.Min, err = readLimit(r, l.Memory64); err != nil {
		return module.Limits{}, err
	}
	if flags&LimitsHasMax != 0 {
		m, err := readLimit(r, l.Memory64)
		if err != nil {
			return module.Limits{}, err
		}
		l.Max = &m
	}
	return l, nil
}

func readLimit(r *binary.Reader, wide bool) (uint64, error) {
	if wide {
		return r.ReadU64()
	}
	v, err := r.ReadU32()
	return uint64(v), err
}

func readGlobalType(r *binary.Reader) (module.GlobalType, error) {
	vt, err := readValType(r)
	if err != nil {
		return module.GlobalType{}, err
	}
	mut, err := r.ReadByte()
	if err != nil {
		return module.GlobalType{}, err
	}
	if mut > 1 {
		return module.GlobalType{}, fmt.Errorf("invalid mutability 0x%02x", mut)
	}
	return module.GlobalType{ValType: vt, Mutable: mut == 1}, nil
}

// readConstExpr copies a constant expression up to and including its end opcode.
func readConstExpr(r *binary.Reader) ([]byte, error) {
	var buf []byte
	for {
		op, err := r.ReadByte()
		if err != nil {
			return nil, err
		}
		buf = append(buf, op)
		switch op {
		case OpEnd:
			return buf, nil
		case OpI32Const, OpI64Const, OpGlobalGet, OpRefNull, OpRefFunc:
			imm, err := r.SkipLEB128()
			if err != nil {
				return nil, err
			}
			buf = append(buf, imm...)
		case OpF32Const, OpF64Const:
			n := 4
			if op == OpF64Const {
				n = 8
			}
			imm, err := r.ReadBytes(n)
			if err != nil {
				return nil, err
			}
			buf = append(buf, imm...)
		case OpPrefixSIMD:
			sub, err := r.SkipLEB128()
			if err != nil {
				return nil, err
			}
			if code, err := binary.NewReader(sub, 0).ReadU32(); err != nil || code != OpV128Const {
				return nil, fmt.Errorf("SIMD opcode 0x%x is not allowed in a constant expression", sub)
			}
			imm, err := r.ReadBytes(16)
			if err != nil {
				return nil, err
			}
			buf = append(buf, sub...)
			buf = append(buf, imm...)
		case OpI32Add, OpI32Sub, OpI32Mul, OpI64Add, OpI64Sub, OpI64Mul:
		default:
			return nil, fmt.Errorf("opcode 0x%02x is not allowed in a constant expression", op)
		}
	}
}

// sectionOrder returns the canonical position of a non-custom section, or 0
// for an unknown id.
func sectionOrder(id byte) int {
	switch id {
	case SectionType:
		return 1
	case SectionImport:
		return 2
	case SectionFunction:
		return 3
	case SectionTable:
		return 4
	case SectionMemory:
		return 5
	case SectionTag:
		return 6
	case SectionGlobal:
		return 7
	case SectionExport:
		return 8
	case SectionStart:
		return 9
	case SectionElement:
		return 10
	case SectionDataCount:
		return 11
	case SectionCode:
		return 12
	case SectionData:
		return 13
	default:
		return 0
	}
}

// SectionName returns the lowercase name of a section id.
func SectionName(id byte) string {
	switch id {
	case SectionCustom:
		return "custom"
	case SectionType:
		return "type"
	case SectionImport:
		return "import"
	case SectionFunction:
		return "function"
	case SectionTable:
		return "table"
	case SectionMemory:
		return "memory"
	case SectionGlobal:
		return "global"
	case SectionExport:
		return "export"
	case SectionStart:
		return "start"
	case SectionElement:
		return "element"
	case SectionCode:
		return "code"
	case SectionData:
		return "data"
	case SectionDataCount:
		return "data count"
	case SectionTag:
		return "tag"
	default:
		return fmt.Sprintf("section 0x%02x", id)
	}
}

// GC proposal type forms: rec, sub, sub final, struct, array.
func isGCTypeForm(form byte) bool {
	switch form {
	case 0x4e, 0x50, 0x4f, 0x5f, 0x5e:
		return true
	}
	return false
}
