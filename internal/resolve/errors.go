package resolve

import (
	"errors"
	"fmt"

	"github.com/xkilldash9x/formsmith/internal/document"
)

// ErrNonMatch means a strategy found no qualifying element. It is expected and never
// surfaces past the chain.
var ErrNonMatch = errors.New("no matching element")

// ErrNoOption means a select had no option matching the target.
var ErrNoOption = errors.New("no matching option")

// WriteVerificationError reports a write whose read-back differs from what was written,
// the signature of a framework-controlled or scripted field that reverted the value.
type WriteVerificationError struct {
	Handle document.Handle
	Want   string
	Got    string
}

func (e *WriteVerificationError) Error() string {
	return fmt.Sprintf("write to element %d did not stick: want %q, got %q", e.Handle, e.Want, e.Got)
}

// StepPanicError wraps a panic recovered from a strategy.
type StepPanicError struct {
	Value interface{}
}

func (e *StepPanicError) Error() string {
	return fmt.Sprintf("strategy panicked: %v", e.Value)
}
