package resolve

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/xkilldash9x/formsmith/internal/document"
)

// Writer is the only component that mutates the document. Every write goes through the
// element's prototype value setter (inside the adapter), is followed by exactly one input
// and one change event, and is read back.
type Writer struct {
	doc    document.Adapter
	logger *zap.Logger
}

// NewWriter returns a writer over doc.
func NewWriter(doc document.Adapter, logger *zap.Logger) *Writer {
	return &Writer{doc: doc, logger: logger}
}

// Fill writes value into a text control and verifies it.
func (w *Writer) Fill(ctx context.Context, h document.Handle, value string) error {
	if err := w.doc.AssignValue(ctx, h, value); err != nil {
		return fmt.Errorf("assign value: %w", err)
	}
	if err := w.notify(ctx, h); err != nil {
		return err
	}
	return w.verify(ctx, h, value)
}

// Select picks option index of a select and verifies the selected value equals want.
func (w *Writer) Select(ctx context.Context, h document.Handle, index int, want string) error {
	if err := w.doc.SelectIndex(ctx, h, index); err != nil {
		return fmt.Errorf("select index %d: %w", index, err)
	}
	if err := w.notify(ctx, h); err != nil {
		return err
	}
	return w.verify(ctx, h, want)
}

// Clear empties a text control.
func (w *Writer) Clear(ctx context.Context, h document.Handle) error {
	return w.Fill(ctx, h, "")
}

// Click activates a control once.
func (w *Writer) Click(ctx context.Context, h document.Handle) error {
	if err := w.doc.Click(ctx, h); err != nil {
		return fmt.Errorf("click: %w", err)
	}
	return nil
}

func (w *Writer) notify(ctx context.Context, h document.Handle) error {
	for _, kind := range []document.EventKind{document.EventInput, document.EventChange} {
		if err := w.doc.Dispatch(ctx, h, kind); err != nil {
			return fmt.Errorf("dispatch %s: %w", kind, err)
		}
	}
	return nil
}

func (w *Writer) verify(ctx context.Context, h document.Handle, want string) error {
	got, err := w.doc.Value(ctx, h)
	if err != nil {
		return fmt.Errorf("read back: %w", err)
	}
	if got != want {
		verr := &WriteVerificationError{Handle: h, Want: want, Got: got}
		w.logger.Debug("Write did not stick.", zap.Int64("handle", int64(h)), zap.String("want", want), zap.String("got", got))
		return verr
	}
	return nil
}
