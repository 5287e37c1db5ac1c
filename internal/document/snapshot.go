package document

import (
	"fmt"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/xkilldash9x/formsmith/api/schemas"
)

// MaxTextLen bounds the text captured per node. Label patterns match against its prefix.
const MaxTextLen = 512

// Option is one entry of a select element.
type Option struct {
	Text     string `json:"text"`
	Value    string `json:"value"`
	Disabled bool   `json:"disabled"`
}

// Node is the captured state of one element at snapshot time.
type Node struct {
	Handle        Handle            `json:"handle"`
	Tag           string            `json:"tag"`
	Attrs         map[string]string `json:"attrs"`
	Text          string            `json:"text"`
	Value         string            `json:"value"`
	Box           schemas.Rect      `json:"box"`
	Visible       bool              `json:"visible"`
	Parent        Handle            `json:"parent"`
	Children      []Handle          `json:"children"`
	Options       []Option          `json:"options,omitempty"`
	SelectedIndex int               `json:"selectedIndex"`
	Checked       bool              `json:"checked"`
}

// Attr returns an attribute value, or "" when absent.
func (n *Node) Attr(name string) string {
	return n.Attrs[name]
}

// InputType returns the lowercased type attribute of an input, "text" when absent.
func (n *Node) InputType() string {
	t := strings.ToLower(strings.TrimSpace(n.Attrs["type"]))
	if t == "" {
		return "text"
	}
	return t
}

// IsTextEntry reports whether the node is a free-text control: a textarea or an input of
// type text, search, tel or number.
func (n *Node) IsTextEntry() bool {
	switch n.Tag {
	case "textarea":
		return true
	case "input":
		switch n.InputType() {
		case "text", "search", "tel", "number":
			return true
		}
	}
	return false
}

// Enabled reports whether the control accepts input.
func (n *Node) Enabled() bool {
	_, disabled := n.Attrs["disabled"]
	_, readOnly := n.Attrs["readonly"]
	return !disabled && !readOnly
}

// Snapshot is an immutable capture of the document. It is never reused across mutations.
type Snapshot struct {
	nodes []Node
	index map[Handle]int
}

// NewSnapshot indexes nodes, which must already be in document order.
func NewSnapshot(nodes []Node) *Snapshot {
	s := &Snapshot{nodes: nodes, index: make(map[Handle]int, len(nodes))}
	for i := range nodes {
		s.index[nodes[i].Handle] = i
	}
	return s
}

// Len returns the number of captured elements.
func (s *Snapshot) Len() int { return len(s.nodes) }

// Node returns the captured node for h.
func (s *Snapshot) Node(h Handle) (*Node, bool) {
	i, ok := s.index[h]
	if !ok {
		return nil, false
	}
	return &s.nodes[i], true
}

// Elements returns nodes whose tag is one of tags, in document order. With no tags it
// returns every node.
func (s *Snapshot) Elements(tags ...string) []*Node {
	want := make(map[string]struct{}, len(tags))
	for _, t := range tags {
		want[strings.ToLower(t)] = struct{}{}
	}
	var out []*Node
	for i := range s.nodes {
		if _, ok := want[s.nodes[i].Tag]; ok || len(tags) == 0 {
			out = append(out, &s.nodes[i])
		}
	}
	return out
}

// Visible reports whether h was rendered at snapshot time.
func (s *Snapshot) Visible(h Handle) bool {
	n, ok := s.Node(h)
	return ok && n.Visible
}

// Descriptor derives the element descriptor for h.
func (s *Snapshot) Descriptor(h Handle) (schemas.ElementDescriptor, error) {
	n, ok := s.Node(h)
	if !ok {
		return schemas.ElementDescriptor{}, fmt.Errorf("descriptor for %d: %w", h, ErrStaleHandle)
	}
	return Describe(n), nil
}

// Describe builds a descriptor from a captured node.
func Describe(n *Node) schemas.ElementDescriptor {
	maxLength := -1
	if raw, ok := n.Attrs["maxlength"]; ok {
		if v, err := strconv.Atoi(strings.TrimSpace(raw)); err == nil {
			maxLength = v
		}
	}
	_, disabled := n.Attrs["disabled"]
	_, readOnly := n.Attrs["readonly"]
	typ := ""
	if n.Tag == "input" {
		typ = n.InputType()
	}
	return schemas.ElementDescriptor{
		Tag:          n.Tag,
		Type:         typ,
		Name:         n.Attrs["name"],
		ID:           n.Attrs["id"],
		Placeholder:  n.Attrs["placeholder"],
		AriaLabel:    n.Attrs["aria-label"],
		Autocomplete: n.Attrs["autocomplete"],
		MaxLength:    maxLength,
		Pattern:      n.Attrs["pattern"],
		Disabled:     disabled,
		ReadOnly:     readOnly,
		Box:          n.Box,
		Visible:      n.Visible,
	}
}

// Closest walks the ancestors of h, nearest first, and returns the first one for which
// match is true. The node itself is not considered.
func (s *Snapshot) Closest(h Handle, match func(*Node) bool) (*Node, bool) {
	n, ok := s.Node(h)
	if !ok {
		return nil, false
	}
	for n.Parent != 0 {
		parent, ok := s.Node(n.Parent)
		if !ok {
			return nil, false
		}
		if match(parent) {
			return parent, true
		}
		n = parent
	}
	return nil, false
}

// Parent returns the parent node of h.
func (s *Snapshot) Parent(h Handle) (*Node, bool) {
	n, ok := s.Node(h)
	if !ok || n.Parent == 0 {
		return nil, false
	}
	return s.Node(n.Parent)
}

// Descendants returns every node below h, in document order.
func (s *Snapshot) Descendants(h Handle) []*Node {
	root, ok := s.Node(h)
	if !ok {
		return nil
	}
	var out []*Node
	var walk func(children []Handle)
	walk = func(children []Handle) {
		for _, c := range children {
			child, ok := s.Node(c)
			if !ok {
				continue
			}
			out = append(out, child)
			walk(child.Children)
		}
	}
	walk(root.Children)
	return out
}

// NextSiblings returns up to limit element siblings following h.
func (s *Snapshot) NextSiblings(h Handle, limit int) []*Node {
	parent, ok := s.Parent(h)
	if !ok {
		return nil
	}
	var out []*Node
	seen := false
	for _, c := range parent.Children {
		if c == h {
			seen = true
			continue
		}
		if !seen {
			continue
		}
		if len(out) == limit {
			break
		}
		if sib, ok := s.Node(c); ok {
			out = append(out, sib)
		}
	}
	return out
}

// LabelTarget returns the control a label element points at: its for= target, else the
// first form control nested inside it.
func (s *Snapshot) LabelTarget(label *Node) (*Node, bool) {
	if id := label.Attrs["for"]; id != "" {
		for i := range s.nodes {
			if s.nodes[i].Attrs["id"] == id {
				return &s.nodes[i], true
			}
		}
	}
	for _, d := range s.Descendants(label.Handle) {
		switch d.Tag {
		case "input", "textarea", "select":
			return d, true
		}
	}
	return nil, false
}

// TruncateText trims s and bounds it to MaxTextLen bytes on a rune boundary.
func TruncateText(s string) string {
	s = strings.Join(strings.Fields(s), " ")
	if len(s) <= MaxTextLen {
		return s
	}
	cut := MaxTextLen
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut]
}
