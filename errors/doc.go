// Package errors provides structured error types for wasm-post.
//
// Errors are categorized by Phase (where the error occurred) and Kind (error category).
// The Error type includes the entity path, a detail message and the cause chain.
//
// Use the Builder for structured error construction:
//
//	err := errors.New(errors.PhaseEncode, errors.KindInvalidModule).
//		Path("function", "3").
//		Detail("defined function has no body").
//		Build()
//
// Or use convenience constructors for common patterns:
//
//	err := errors.NoTableDeclared("export-indirect-table")
//	err := errors.DuplicateExport("memory", "function 0", "memory 0")
//
// All errors implement the standard error interface and support errors.Is/As.
// The Err* sentinels match any Error with the same Phase and Kind:
//
//	if errors.Is(err, wperrors.ErrNoTableDeclared) { ... }
package errors
