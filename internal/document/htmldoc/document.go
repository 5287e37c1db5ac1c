// Package htmldoc implements document.Adapter over a parsed static HTML document.
//
// Geometry comes from inline left/top/width/height styles in px. Visibility honors the
// hidden attribute, type=hidden inputs and inline display/visibility, inherited from
// ancestors. Writes mutate the tree in place so the result can be rendered back out.
package htmldoc

import (
	"context"
	"fmt"
	"io"
	"os"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/antchfx/htmlquery"
	"github.com/mitchellh/go-homedir"
	"go.uber.org/zap"
	"golang.org/x/net/html"

	"github.com/xkilldash9x/formsmith/api/schemas"
	"github.com/xkilldash9x/formsmith/internal/document"
)

// EventHook observes every synthetic event after it is recorded. Hooks may mutate the
// document through SetAttr and RemoveAttr.
type EventHook func(h document.Handle, kind document.EventKind)

// ValueFilter rewrites a value on its way into an element, emulating inputs that mask or
// ignore programmatic writes.
type ValueFilter func(h document.Handle, value string) string

// Option configures a Document.
type Option func(*Document)

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(d *Document) { d.logger = logger.Named("htmldoc") }
}

// WithEventHook registers a hook run after each dispatched event.
func WithEventHook(hook EventHook) Option {
	return func(d *Document) { d.hooks = append(d.hooks, hook) }
}

// WithValueFilter installs a filter applied by AssignValue.
func WithValueFilter(filter ValueFilter) Option {
	return func(d *Document) { d.filter = filter }
}

// Document is a static document adapter. It is safe for use by one session; the mutex
// only guards the event log read by tests.
type Document struct {
	mu      sync.Mutex
	root    *html.Node
	nodes   []*html.Node
	handles map[*html.Node]document.Handle
	events  map[document.Handle][]document.EventKind
	clicks  map[document.Handle]int
	hooks   []EventHook
	filter  ValueFilter
	logger  *zap.Logger
}

var _ document.Adapter = (*Document)(nil)

// Parse reads an HTML document.
func Parse(r io.Reader, opts ...Option) (*Document, error) {
	root, err := htmlquery.Parse(r)
	if err != nil {
		return nil, fmt.Errorf("failed to parse html: %w", err)
	}
	d := &Document{
		root:    root,
		handles: make(map[*html.Node]document.Handle),
		events:  make(map[document.Handle][]document.EventKind),
		clicks:  make(map[document.Handle]int),
		logger:  zap.NewNop(),
	}
	for _, opt := range opts {
		opt(d)
	}
	d.index(root)
	return d, nil
}

// ParseString is Parse over a string.
func ParseString(s string, opts ...Option) (*Document, error) {
	return Parse(strings.NewReader(s), opts...)
}

// Load parses the file at path. A leading ~ is expanded.
func Load(path string, opts ...Option) (*Document, error) {
	expanded, err := homedir.Expand(path)
	if err != nil {
		return nil, fmt.Errorf("failed to expand path '%s': %w", path, err)
	}
	f, err := os.Open(expanded)
	if err != nil {
		return nil, fmt.Errorf("failed to open document '%s': %w", expanded, err)
	}
	defer f.Close()
	return Parse(f, opts...)
}

// index assigns handles in document order, starting at 1.
func (d *Document) index(n *html.Node) {
	if n.Type == html.ElementNode {
		d.nodes = append(d.nodes, n)
		d.handles[n] = document.Handle(len(d.nodes))
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		d.index(c)
	}
}

func (d *Document) node(h document.Handle) (*html.Node, error) {
	if h <= 0 || int(h) > len(d.nodes) {
		return nil, fmt.Errorf("handle %d: %w", h, document.ErrStaleHandle)
	}
	return d.nodes[h-1], nil
}

// Render writes the current document, including every write made so far.
func (d *Document) Render(w io.Writer) error {
	return html.Render(w, d.root)
}

// HandleByID returns the handle of the element with the given id.
func (d *Document) HandleByID(id string) (document.Handle, bool) {
	n := htmlquery.FindOne(d.root, fmt.Sprintf("//*[@id=%q]", id))
	if n == nil {
		return 0, false
	}
	h, ok := d.handles[n]
	return h, ok
}

// Events returns the events dispatched on h, in order.
func (d *Document) Events(h document.Handle) []document.EventKind {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]document.EventKind(nil), d.events[h]...)
}

// Clicks returns how many times h was clicked.
func (d *Document) Clicks(h document.Handle) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.clicks[h]
}

// SetAttr sets an attribute on h.
func (d *Document) SetAttr(h document.Handle, key, val string) error {
	n, err := d.node(h)
	if err != nil {
		return err
	}
	setAttr(n, key, val)
	return nil
}

// RemoveAttr deletes an attribute from h.
func (d *Document) RemoveAttr(h document.Handle, key string) error {
	n, err := d.node(h)
	if err != nil {
		return err
	}
	removeAttr(n, key)
	return nil
}

// Snapshot captures every element.
func (d *Document) Snapshot(ctx context.Context) (*document.Snapshot, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	nodes := make([]document.Node, 0, len(d.nodes))
	var walk func(n *html.Node, parent document.Handle, parentVisible bool, parentBox schemas.Rect)
	walk = func(n *html.Node, parent document.Handle, parentVisible bool, parentBox schemas.Rect) {
		if n.Type != html.ElementNode {
			for c := n.FirstChild; c != nil; c = c.NextSibling {
				walk(c, parent, parentVisible, parentBox)
			}
			return
		}
		h := d.handles[n]
		decls := declarations(htmlquery.SelectAttr(n, "style"))
		visible := parentVisible && !hiddenElement(n, decls)
		box := boxFromStyle(decls, parentBox)

		captured := document.Node{
			Handle:        h,
			Tag:           strings.ToLower(n.Data),
			Attrs:         attrMap(n),
			Text:          document.TruncateText(htmlquery.InnerText(n)),
			Value:         valueOf(n),
			Box:           box,
			Visible:       visible,
			Parent:        parent,
			SelectedIndex: -1,
		}
		if _, ok := captured.Attrs["checked"]; ok {
			captured.Checked = true
		}
		if captured.Tag == "select" {
			captured.Options = selectOptions(n)
			captured.SelectedIndex = selectedIndex(n)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			if c.Type == html.ElementNode {
				captured.Children = append(captured.Children, d.handles[c])
			}
		}
		nodes = append(nodes, captured)
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c, h, visible, box)
		}
	}
	walk(d.root, 0, true, schemas.Rect{})
	return document.NewSnapshot(nodes), nil
}

// Query matches a CSS selector. An unparsable selector matches nothing.
func (d *Document) Query(ctx context.Context, selector string) ([]document.Handle, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var out []document.Handle
	goquery.NewDocumentFromNode(d.root).Find(selector).Each(func(_ int, s *goquery.Selection) {
		for _, n := range s.Nodes {
			if h, ok := d.handles[n]; ok {
				out = append(out, h)
			}
		}
	})
	return out, nil
}

// LookupByLabel finds the first visible, writable control whose accessible name matches
// pattern. A static document cannot change, so the timeout is not waited out.
func (d *Document) LookupByLabel(ctx context.Context, pattern string, _ time.Duration) (document.Handle, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	re, err := regexp.Compile("(?i)" + pattern)
	if err != nil {
		return 0, fmt.Errorf("invalid label pattern '%s': %w", pattern, err)
	}
	snap, err := d.Snapshot(ctx)
	if err != nil {
		return 0, err
	}
	for _, n := range snap.Elements("input", "textarea", "select") {
		if !n.Visible || !n.Enabled() || !labelable(n) {
			continue
		}
		if name := d.accessibleName(snap, n); name != "" && re.MatchString(name) {
			return n.Handle, nil
		}
	}
	return 0, fmt.Errorf("label '%s': %w", pattern, document.ErrNotFound)
}

// accessibleName follows aria-labelledby, then aria-label, then associated labels.
func (d *Document) accessibleName(snap *document.Snapshot, n *document.Node) string {
	if ids := strings.Fields(n.Attr("aria-labelledby")); len(ids) > 0 {
		var parts []string
		for _, id := range ids {
			if h, ok := d.HandleByID(id); ok {
				if ref, ok := snap.Node(h); ok {
					parts = append(parts, ref.Text)
				}
			}
		}
		if name := strings.TrimSpace(strings.Join(parts, " ")); name != "" {
			return name
		}
	}
	if label := strings.TrimSpace(n.Attr("aria-label")); label != "" {
		return label
	}
	var parts []string
	if id := n.Attr("id"); id != "" {
		for _, l := range snap.Elements("label") {
			if l.Attr("for") == id {
				parts = append(parts, l.Text)
			}
		}
	}
	if l, ok := snap.Closest(n.Handle, func(a *document.Node) bool { return a.Tag == "label" }); ok {
		parts = append(parts, l.Text)
	}
	return strings.TrimSpace(strings.Join(parts, " "))
}

// AssignValue writes the value of an input, textarea or select.
func (d *Document) AssignValue(ctx context.Context, h document.Handle, value string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	n, err := d.node(h)
	if err != nil {
		return err
	}
	if d.filter != nil {
		value = d.filter(h, value)
	}
	switch strings.ToLower(n.Data) {
	case "input":
		setAttr(n, "value", value)
	case "textarea":
		for c := n.FirstChild; c != nil; {
			next := c.NextSibling
			n.RemoveChild(c)
			c = next
		}
		n.AppendChild(&html.Node{Type: html.TextNode, Data: value})
	case "select":
		for i, opt := range htmlquery.Find(n, ".//option") {
			if optionValue(opt) == value {
				return d.selectOption(n, i)
			}
		}
		return d.selectOption(n, -1)
	default:
		return fmt.Errorf("element <%s> has no value property", n.Data)
	}
	return nil
}

// SelectIndex sets the selected option of a select element.
func (d *Document) SelectIndex(ctx context.Context, h document.Handle, index int) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	n, err := d.node(h)
	if err != nil {
		return err
	}
	if !strings.EqualFold(n.Data, "select") {
		return fmt.Errorf("element <%s> is not a select", n.Data)
	}
	if index < 0 || index >= len(htmlquery.Find(n, ".//option")) {
		return fmt.Errorf("option index %d out of range", index)
	}
	return d.selectOption(n, index)
}

func (d *Document) selectOption(sel *html.Node, index int) error {
	for i, opt := range htmlquery.Find(sel, ".//option") {
		if i == index {
			setAttr(opt, "selected", "")
		} else {
			removeAttr(opt, "selected")
		}
	}
	return nil
}

// Dispatch records the event and runs hooks.
func (d *Document) Dispatch(ctx context.Context, h document.Handle, kind document.EventKind) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if _, err := d.node(h); err != nil {
		return err
	}
	d.record(h, kind)
	return nil
}

func (d *Document) record(h document.Handle, kind document.EventKind) {
	d.mu.Lock()
	d.events[h] = append(d.events[h], kind)
	hooks := d.hooks
	d.mu.Unlock()
	d.logger.Debug("Event dispatched.", zap.Int64("handle", int64(h)), zap.String("kind", string(kind)))
	for _, hook := range hooks {
		hook(h, kind)
	}
}

// Value reads the current value.
func (d *Document) Value(ctx context.Context, h document.Handle) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	n, err := d.node(h)
	if err != nil {
		return "", err
	}
	return valueOf(n), nil
}

// Click toggles checkboxes, checks radios (clearing the rest of the group) and counts the
// click. Checkbox and radio clicks fire input and change like a browser would.
func (d *Document) Click(ctx context.Context, h document.Handle) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	n, err := d.node(h)
	if err != nil {
		return err
	}
	d.mu.Lock()
	d.clicks[h]++
	d.mu.Unlock()

	if !strings.EqualFold(n.Data, "input") {
		return nil
	}
	switch strings.ToLower(htmlquery.SelectAttr(n, "type")) {
	case "checkbox":
		if hasAttr(n, "checked") {
			removeAttr(n, "checked")
		} else {
			setAttr(n, "checked", "")
		}
	case "radio":
		if name := htmlquery.SelectAttr(n, "name"); name != "" {
			for _, other := range htmlquery.Find(d.root, fmt.Sprintf("//input[@type='radio'][@name=%q]", name)) {
				removeAttr(other, "checked")
			}
		}
		setAttr(n, "checked", "")
	default:
		return nil
	}
	d.record(h, document.EventInput)
	d.record(h, document.EventChange)
	return nil
}

// PageText returns the text of visible elements under body.
func (d *Document) PageText(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	body := htmlquery.FindOne(d.root, "//body")
	if body == nil {
		body = d.root
	}
	var b strings.Builder
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		switch n.Type {
		case html.TextNode:
			b.WriteString(n.Data)
			b.WriteByte(' ')
			return
		case html.ElementNode:
			if hiddenElement(n, declarations(htmlquery.SelectAttr(n, "style"))) {
				return
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(body)
	return strings.Join(strings.Fields(b.String()), " "), nil
}

// -- node helpers --

var nonRendered = map[string]bool{
	"head": true, "script": true, "style": true, "template": true,
	"noscript": true, "meta": true, "title": true, "link": true,
}

func hiddenElement(n *html.Node, decls map[string]string) bool {
	tag := strings.ToLower(n.Data)
	if nonRendered[tag] || hasAttr(n, "hidden") || hiddenByStyle(decls) {
		return true
	}
	return tag == "input" && strings.EqualFold(htmlquery.SelectAttr(n, "type"), "hidden")
}

func labelable(n *document.Node) bool {
	if n.Tag != "input" {
		return true
	}
	switch n.InputType() {
	case "hidden", "submit", "button", "reset", "image":
		return false
	}
	return true
}

func attrMap(n *html.Node) map[string]string {
	attrs := make(map[string]string, len(n.Attr))
	for _, a := range n.Attr {
		attrs[strings.ToLower(a.Key)] = a.Val
	}
	return attrs
}

func hasAttr(n *html.Node, key string) bool {
	for _, a := range n.Attr {
		if strings.EqualFold(a.Key, key) {
			return true
		}
	}
	return false
}

func setAttr(n *html.Node, key, val string) {
	for i, a := range n.Attr {
		if strings.EqualFold(a.Key, key) {
			n.Attr[i].Val = val
			return
		}
	}
	n.Attr = append(n.Attr, html.Attribute{Key: key, Val: val})
}

func removeAttr(n *html.Node, key string) {
	kept := n.Attr[:0]
	for _, a := range n.Attr {
		if !strings.EqualFold(a.Key, key) {
			kept = append(kept, a)
		}
	}
	n.Attr = kept
}

func valueOf(n *html.Node) string {
	switch strings.ToLower(n.Data) {
	case "input":
		return htmlquery.SelectAttr(n, "value")
	case "textarea":
		return htmlquery.InnerText(n)
	case "select":
		opts := htmlquery.Find(n, ".//option")
		if i := selectedIndex(n); i >= 0 && i < len(opts) {
			return optionValue(opts[i])
		}
	}
	return ""
}

// optionValue is the value attribute, or the trimmed text when it is absent.
func optionValue(opt *html.Node) string {
	for _, a := range opt.Attr {
		if a.Key == "value" {
			return a.Val
		}
	}
	return strings.TrimSpace(htmlquery.InnerText(opt))
}

func selectOptions(sel *html.Node) []document.Option {
	var options []document.Option
	for _, opt := range htmlquery.Find(sel, ".//option") {
		disabled := hasAttr(opt, "disabled")
		if !disabled && opt.Parent != nil && strings.EqualFold(opt.Parent.Data, "optgroup") {
			disabled = hasAttr(opt.Parent, "disabled")
		}
		options = append(options, document.Option{
			Text:     strings.TrimSpace(htmlquery.InnerText(opt)),
			Value:    optionValue(opt),
			Disabled: disabled,
		})
	}
	return options
}

// selectedIndex is the last option marked selected, else 0, or -1 for an empty select.
func selectedIndex(sel *html.Node) int {
	opts := htmlquery.Find(sel, ".//option")
	if len(opts) == 0 {
		return -1
	}
	idx := 0
	for i, opt := range opts {
		if hasAttr(opt, "selected") {
			idx = i
		}
	}
	return idx
}
