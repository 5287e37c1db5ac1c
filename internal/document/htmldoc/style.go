package htmldoc

import (
	"strconv"
	"strings"

	"github.com/xkilldash9x/formsmith/api/schemas"
)

// declarations parses an inline style attribute into lowercased property → value pairs.
// Later declarations win unless an earlier one is !important.
func declarations(styleAttr string) map[string]string {
	out := make(map[string]string)
	important := make(map[string]bool)
	for _, part := range strings.Split(styleAttr, ";") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		kv := strings.SplitN(part, ":", 2)
		if len(kv) != 2 {
			continue
		}
		prop := strings.ToLower(strings.TrimSpace(kv[0]))
		val := strings.TrimSpace(kv[1])
		if prop == "" || val == "" {
			continue
		}
		isImportant := false
		if strings.HasSuffix(strings.ToLower(val), "!important") {
			isImportant = true
			val = strings.TrimSpace(val[:len(val)-len("!important")])
		}
		if important[prop] && !isImportant {
			continue
		}
		out[prop] = strings.ToLower(val)
		important[prop] = isImportant
	}
	return out
}

// length parses a px or unitless length. Other units are rejected.
func length(v string) (float64, bool) {
	v = strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(v), "px"))
	if v == "" {
		return 0, false
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, false
	}
	return f, true
}

// hiddenByStyle reports display:none or visibility:hidden.
func hiddenByStyle(decls map[string]string) bool {
	return decls["display"] == "none" || decls["visibility"] == "hidden" || decls["visibility"] == "collapse"
}

// boxFromStyle reads an absolute box from left/top/width/height. Missing coordinates fall
// back to the parent box, so unstyled children share their container's position.
func boxFromStyle(decls map[string]string, parent schemas.Rect) schemas.Rect {
	box := parent
	if v, ok := length(decls["left"]); ok {
		box.X = v
		box.Width = 0
	}
	if v, ok := length(decls["top"]); ok {
		box.Y = v
		box.Height = 0
	}
	if v, ok := length(decls["width"]); ok {
		box.Width = v
	}
	if v, ok := length(decls["height"]); ok {
		box.Height = v
	}
	return box
}
