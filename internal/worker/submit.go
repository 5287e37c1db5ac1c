package worker

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/xkilldash9x/formsmith/api/schemas"
	"github.com/xkilldash9x/formsmith/internal/document"
)

const submitFallbackSelector = `input[type="submit"], button[type="submit"]`

// submit clicks the save control, waits, and records whether the page still complains
// about missing mandatory fields.
func (p *Pool) submit(ctx context.Context, doc document.Adapter, logger *zap.Logger, res *schemas.AccountResult) error {
	form := p.cfg.Form()
	h, err := findSubmit(ctx, doc, form.SubmitLabels)
	if err != nil {
		return err
	}
	if err := doc.Click(ctx, h); err != nil {
		return fmt.Errorf("failed to click save control: %w", err)
	}
	res.Submitted = true
	logger.Info("Form submitted.")

	if err := p.sleep(ctx, form.PostSubmitWait); err != nil {
		return err
	}
	if form.ErrorText == "" {
		return nil
	}
	text, err := doc.PageText(ctx)
	if err != nil {
		return fmt.Errorf("failed to read page after submit: %w", err)
	}
	if strings.Contains(strings.ToLower(text), strings.ToLower(form.ErrorText)) {
		res.FormErrors = true
		logger.Warn("Page reports missing mandatory fields after submit.")
	}
	return nil
}

// findSubmit looks for a visible button or span whose text is one of labels, in label
// order, then falls back to the first visible submit control.
func findSubmit(ctx context.Context, doc document.Adapter, labels []string) (document.Handle, error) {
	snap, err := doc.Snapshot(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to snapshot form: %w", err)
	}
	candidates := snap.Elements("button", "span", "input")
	for _, label := range labels {
		for _, n := range candidates {
			if n.Visible && strings.EqualFold(strings.TrimSpace(controlText(n)), label) {
				return n.Handle, nil
			}
		}
	}

	handles, err := doc.Query(ctx, submitFallbackSelector)
	if err != nil {
		return 0, fmt.Errorf("failed to query submit controls: %w", err)
	}
	for _, h := range handles {
		if snap.Visible(h) {
			return h, nil
		}
	}
	return 0, fmt.Errorf("no save control found: %w", document.ErrNotFound)
}

func controlText(n *document.Node) string {
	if n.Tag != "input" {
		return n.Text
	}
	switch n.InputType() {
	case "submit", "button":
		return n.Attr("value")
	}
	return ""
}
