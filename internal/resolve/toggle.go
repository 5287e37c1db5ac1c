package resolve

import (
	"context"
	"strings"

	"github.com/xkilldash9x/formsmith/api/schemas"
	"github.com/xkilldash9x/formsmith/internal/document"
)

// acceptTerms checks the radio or checkbox whose surrounding text matches the request.
// A control that is already checked is left alone.
func (e *Engine) acceptTerms(ctx context.Context, req schemas.FieldRequest) (*schemas.ElementDescriptor, error) {
	snap, err := e.doc.Snapshot(ctx)
	if err != nil {
		return nil, err
	}
	res := compile(req.LabelPatterns)
	for _, n := range snap.Elements("input") {
		if t := n.InputType(); t != "checkbox" && t != "radio" {
			continue
		}
		if !n.Visible || !n.Enabled() || !matchesAny(res, toggleText(snap, n)) {
			continue
		}
		d := document.Describe(n)
		if n.Checked {
			return &d, nil
		}
		if err := e.writer.Click(ctx, n.Handle); err != nil {
			return nil, err
		}
		after, err := e.doc.Snapshot(ctx)
		if err != nil {
			return nil, err
		}
		if now, ok := after.Node(n.Handle); !ok || !now.Checked {
			return nil, &WriteVerificationError{Handle: n.Handle, Want: "checked", Got: "unchecked"}
		}
		return &d, nil
	}
	return nil, ErrNonMatch
}

// toggleText gathers the texts a browser user would read as the control's caption.
func toggleText(snap *document.Snapshot, n *document.Node) string {
	var parts []string
	if p, ok := snap.Parent(n.Handle); ok {
		parts = append(parts, p.Text)
	}
	for _, sib := range snap.NextSiblings(n.Handle, 1) {
		parts = append(parts, sib.Text)
	}
	if id := n.Attr("id"); id != "" {
		for _, l := range snap.Elements("label") {
			if l.Attr("for") == id {
				parts = append(parts, l.Text)
			}
		}
	}
	parts = append(parts, n.Attr("aria-label"))
	return strings.Join(parts, " ")
}
