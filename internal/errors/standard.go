// Package errors provides a standardized error format for fenceheap, shared
// by the region and heap packages so a caller can inspect a failure's
// category without string-matching its message.
package errors

import (
	"fmt"
	"runtime"
)

// ErrorCategory groups errors by the kind of failure they represent.
type ErrorCategory string

const (
	CategoryMemory     ErrorCategory = "MEMORY"
	CategorySecurity   ErrorCategory = "SECURITY"
	CategoryBounds     ErrorCategory = "BOUNDS"
	CategoryOverflow   ErrorCategory = "OVERFLOW"
	CategoryValidation ErrorCategory = "VALIDATION"
	CategorySystem     ErrorCategory = "SYSTEM"
)

// StandardError is a consistent error shape: a category, a machine-readable
// code, a human message, free-form context, and the caller that raised it.
type StandardError struct {
	Category ErrorCategory
	Code     string
	Message  string
	Context  map[string]interface{}
	Caller   string
}

func (e *StandardError) Error() string {
	return fmt.Sprintf("[%s:%s] %s (caller: %s)", e.Category, e.Code, e.Message, e.Caller)
}

// NewStandardError builds a StandardError, recording its immediate caller.
func NewStandardError(category ErrorCategory, code, message string, context map[string]interface{}) *StandardError {
	pc, _, _, ok := runtime.Caller(1)
	caller := "unknown"

	if ok {
		if fn := runtime.FuncForPC(pc); fn != nil {
			caller = fn.Name()
		}
	}

	return &StandardError{
		Category: category,
		Code:     code,
		Message:  message,
		Context:  context,
		Caller:   caller,
	}
}

// InvalidSize reports a zero or otherwise rejected allocation size.
func InvalidSize(size uintptr, context string) *StandardError {
	return NewStandardError(CategoryValidation, "INVALID_SIZE",
		fmt.Sprintf("invalid size %d in %s", size, context),
		map[string]interface{}{"size": size, "context": context})
}

// InvalidPointer reports a pointer that Classify found does not resolve to
// a live, valid payload for the operation requesting it.
func InvalidPointer(addr uintptr, class string, operation string) *StandardError {
	return NewStandardError(CategoryBounds, "INVALID_POINTER",
		fmt.Sprintf("pointer %#x (%s) is not valid for %s", addr, class, operation),
		map[string]interface{}{"addr": addr, "class": class, "operation": operation})
}

// HeapCorrupted reports a failed Validate, naming the reason it failed.
func HeapCorrupted(reason string) *StandardError {
	return NewStandardError(CategoryValidation, "HEAP_CORRUPTED",
		fmt.Sprintf("heap failed validation: %s", reason),
		map[string]interface{}{"reason": reason})
}

// ExpansionFailed reports that the Expander could not grant the requested
// delta, e.g. the underlying mmap/VirtualAlloc reservation is exhausted.
func ExpansionFailed(delta int64) *StandardError {
	return NewStandardError(CategoryMemory, "EXPANSION_FAILED",
		fmt.Sprintf("region expansion by %d bytes failed", delta),
		map[string]interface{}{"delta": delta})
}

// SizeOverflow reports that n*size in a zalloc-style call overflows uintptr.
func SizeOverflow(n, size uintptr) *StandardError {
	return NewStandardError(CategoryOverflow, "SIZE_OVERFLOW",
		fmt.Sprintf("%d * %d overflows uintptr", n, size),
		map[string]interface{}{"n": n, "size": size})
}

// NotSetUp reports an operation attempted before Setup or after Teardown.
func NotSetUp(operation string) *StandardError {
	return NewStandardError(CategorySystem, "NOT_SET_UP",
		fmt.Sprintf("heap is not set up for %s", operation),
		map[string]interface{}{"operation": operation})
}
