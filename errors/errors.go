package errors

import (
	"fmt"
	"strings"
)

// Phase indicates where in processing the error occurred
type Phase string

const (
	PhaseDecode    Phase = "decode"    // binary to module context
	PhaseEncode    Phase = "encode"    // module context to binary
	PhasePass      Phase = "pass"      // in-place transformation
	PhaseVerify    Phase = "verify"    // host-load check
	PhaseToolchain Phase = "toolchain" // toolchain acquisition
	PhaseConfig    Phase = "config"    // configuration loading
)

// Kind categorizes the error
type Kind string

const (
	KindMalformedModule     Kind = "malformed_module"
	KindInvalidModule       Kind = "invalid_module"
	KindNoTableDeclared     Kind = "no_table_declared"
	KindDuplicateExportName Kind = "duplicate_export_name"
	KindNotInstalled        Kind = "not_installed"
	KindIntegrity           Kind = "integrity"
	KindUnsupported         Kind = "unsupported"
	KindNotFound            Kind = "not_found"
	KindInvalidInput        Kind = "invalid_input"
)

// Sentinels for errors.Is. Matching is by Phase and Kind only.
var (
	ErrMalformedModule     = &Error{Phase: PhaseDecode, Kind: KindMalformedModule}
	ErrInvalidModule       = &Error{Phase: PhaseEncode, Kind: KindInvalidModule}
	ErrDuplicateExportName = &Error{Phase: PhaseEncode, Kind: KindDuplicateExportName}
	ErrNoTableDeclared     = &Error{Phase: PhasePass, Kind: KindNoTableDeclared}
	ErrNotInstalled        = &Error{Phase: PhaseToolchain, Kind: KindNotInstalled}
	ErrIntegrity           = &Error{Phase: PhaseToolchain, Kind: KindIntegrity}
	ErrUnsupported         = &Error{Phase: PhaseDecode, Kind: KindUnsupported}
)

// Error is the structured error type used throughout the module
type Error struct {
	Value  any
	Cause  error
	Phase  Phase
	Kind   Kind
	Detail string
	Path   []string
}

// Error implements the error interface
func (e *Error) Error() string {
	var b strings.Builder

	b.WriteByte('[')
	b.WriteString(string(e.Phase))
	b.WriteString("] ")
	b.WriteString(string(e.Kind))

	if len(e.Path) > 0 {
		b.WriteString(" at ")
		b.WriteString(strings.Join(e.Path, "."))
	}

	if e.Detail != "" {
		b.WriteString(": ")
		b.WriteString(e.Detail)
	}

	if e.Cause != nil {
		b.WriteString(" (caused by: ")
		b.WriteString(e.Cause.Error())
		b.WriteByte(')')
	}

	return b.String()
}

// Unwrap returns the underlying error
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is reports whether target matches this error
func (e *Error) Is(target error) bool {
	if t, ok := target.(*Error); ok {
		return e.Phase == t.Phase && e.Kind == t.Kind
	}
	return false
}

// Builder provides structured error construction
type Builder struct {
	err Error
}

// New creates a new error builder
func New(phase Phase, kind Kind) *Builder {
	return &Builder{
		err: Error{
			Phase: phase,
			Kind:  kind,
		},
	}
}

// Path sets the entity path, e.g. "table", "0"
func (b *Builder) Path(path ...string) *Builder {
	b.err.Path = path
	return b
}

// Value sets the offending value
func (b *Builder) Value(v any) *Builder {
	b.err.Value = v
	return b
}

// Cause sets the underlying error
func (b *Builder) Cause(err error) *Builder {
	b.err.Cause = err
	return b
}

// Detail sets the human-readable detail message
func (b *Builder) Detail(msg string, args ...any) *Builder {
	if len(args) > 0 {
		b.err.Detail = fmt.Sprintf(msg, args...)
	} else {
		b.err.Detail = msg
	}
	return b
}

// Build returns the constructed error
func (b *Builder) Build() *Error {
	return &b.err
}

// Convenience constructors for common error patterns

// Malformed creates a decode failure for structurally invalid input
func Malformed(section string, cause error, detail string, args ...any) *Error {
	b := New(PhaseDecode, KindMalformedModule).Cause(cause).Detail(detail, args...)
	if section != "" {
		b.Path(section)
	}
	return b.Build()
}

// Invalid creates an encode failure for a context that violates an encoding invariant
func Invalid(path []string, detail string, args ...any) *Error {
	return New(PhaseEncode, KindInvalidModule).Path(path...).Detail(detail, args...).Build()
}

// DuplicateExport creates an encode failure for two entities sharing an export name
func DuplicateExport(name, first, second string) *Error {
	return &Error{
		Phase:  PhaseEncode,
		Kind:   KindDuplicateExportName,
		Detail: fmt.Sprintf("export name %q bound by both %s and %s", name, first, second),
		Value:  name,
	}
}

// NoTableDeclared creates the failure returned by a pass that needs a table
// when the module declares none
func NoTableDeclared(pass string) *Error {
	return &Error{
		Phase:  PhasePass,
		Kind:   KindNoTableDeclared,
		Path:   []string{pass},
		Detail: "module declares no table",
	}
}

// Unsupported creates an unsupported operation error
func Unsupported(phase Phase, what string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindUnsupported,
		Detail: what,
	}
}

// NotFound creates a not-found error
func NotFound(phase Phase, what, name string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindNotFound,
		Detail: fmt.Sprintf("%s %q not found", what, name),
	}
}

// InvalidInput creates an invalid input error
func InvalidInput(phase Phase, detail string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindInvalidInput,
		Detail: detail,
	}
}

// Integrity creates a toolchain package verification failure
func Integrity(pkg, detail string, args ...any) *Error {
	return New(PhaseToolchain, KindIntegrity).Path(pkg).Detail(detail, args...).Build()
}

// NotInstalledError is returned when no usable toolchain can be found.
// Hints carry platform-specific install instructions for diagnostics.
type NotInstalledError struct {
	Tool  string
	Hints []string
}

// NewNotInstalled creates a NotInstalledError for tool
func NewNotInstalled(tool string, hints []string) *NotInstalledError {
	return &NotInstalledError{Tool: tool, Hints: hints}
}

func (e *NotInstalledError) Error() string {
	return fmt.Sprintf("[%s] %s: %s is not installed", PhaseToolchain, KindNotInstalled, e.Tool)
}

// Is reports whether target matches this error type
func (e *NotInstalledError) Is(target error) bool {
	if _, ok := target.(*NotInstalledError); ok {
		return true
	}
	if t, ok := target.(*Error); ok {
		return t.Phase == PhaseToolchain && t.Kind == KindNotInstalled
	}
	return false
}
