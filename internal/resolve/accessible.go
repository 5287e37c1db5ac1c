package resolve

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/xkilldash9x/formsmith/api/schemas"
	"github.com/xkilldash9x/formsmith/internal/document"
)

// accessibleLabel asks the adapter for a control whose accessible name matches one of the
// request's patterns, in order, each with a bounded visibility wait. Lookup failures and
// timeouts are non-matches.
func (e *Engine) accessibleLabel(ctx context.Context, req schemas.FieldRequest) (*schemas.ElementDescriptor, error) {
	return e.byLabel(ctx, req, writableEntry, func(ctx context.Context, n *document.Node) (*schemas.ElementDescriptor, error) {
		return e.fill(ctx, n, req.TargetValue)
	})
}

// accessibleMobile skips the dial-code box that often shares the mobile label.
func (e *Engine) accessibleMobile(ctx context.Context, req schemas.FieldRequest) (*schemas.ElementDescriptor, error) {
	accept := func(n *document.Node) bool { return writableEntry(n) && !hasDialCode(n) }
	return e.byLabel(ctx, req, accept, func(ctx context.Context, n *document.Node) (*schemas.ElementDescriptor, error) {
		return e.fill(ctx, n, req.TargetValue)
	})
}

// accessibleSelect is the select counterpart of accessibleLabel.
func (e *Engine) accessibleSelect(ctx context.Context, req schemas.FieldRequest) (*schemas.ElementDescriptor, error) {
	return e.byLabel(ctx, req, writableSelect, func(ctx context.Context, n *document.Node) (*schemas.ElementDescriptor, error) {
		return e.selectOption(ctx, n, req.TargetValue)
	})
}

type nodeWrite func(ctx context.Context, n *document.Node) (*schemas.ElementDescriptor, error)

func (e *Engine) byLabel(ctx context.Context, req schemas.FieldRequest, accept func(*document.Node) bool, write nodeWrite) (*schemas.ElementDescriptor, error) {
	for _, pattern := range req.LabelPatterns {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		h, err := e.doc.LookupByLabel(ctx, pattern, e.cfg.LabelTimeout)
		if err != nil {
			continue
		}
		snap, err := e.doc.Snapshot(ctx)
		if err != nil {
			return nil, err
		}
		n, ok := snap.Node(h)
		if !ok || !accept(n) {
			continue
		}
		desc, err := write(ctx, n)
		if err != nil {
			e.logger.Debug("Labelled control rejected the write.",
				zap.String("intent", string(req.Intent)),
				zap.String("pattern", pattern),
				zap.Error(err))
			continue
		}
		return desc, nil
	}
	return nil, ErrNonMatch
}

func hasDialCode(n *document.Node) bool { return strings.Contains(n.Value, "+") }
