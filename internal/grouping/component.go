package grouping

import "fmt"

// Kind identifies the top-level variant a strategy contributes to.
// It is a closed enumeration: strategies cannot invent new variant names.
type Kind uint8

const (
	KindApp Kind = iota
	KindSystem
	KindDefault
)

// Kinds lists every variant kind in canonical iteration order.
var Kinds = []Kind{KindApp, KindSystem, KindDefault}

// String returns the variant name used as key in the result mapping.
func (k Kind) String() string {
	switch k {
	case KindApp:
		return "app"
	case KindSystem:
		return "system"
	case KindDefault:
		return "default"
	default:
		return fmt.Sprintf("kind(%d)", uint8(k))
	}
}

// ParseKind converts a variant name into a Kind.
func ParseKind(name string) (Kind, error) {
	switch name {
	case "app":
		return KindApp, nil
	case "system":
		return KindSystem, nil
	case "default":
		return KindDefault, nil
	}
	return 0, fmt.Errorf("unknown variant kind %q", name)
}

func (k Kind) description() string {
	switch k {
	case KindApp:
		return "in-app"
	case KindSystem:
		return "system"
	default:
		return "default"
	}
}

// Component is a node of a grouping tree. Values holds either nested *Component
// nodes or primitive string values.
type Component struct {
	ID          string
	Hint        string
	Contributes bool
	Values      []any
}

// NewComponent creates a component whose contribution is derived from its values:
// it contributes when it holds any primitive value or any contributing child.
func NewComponent(id string, values ...any) *Component {
	c := &Component{ID: id, Values: values}
	c.Contributes = calculateContributes(values)
	return c
}

// NewVariantComponent builds the composite component for a variant kind.
func NewVariantComponent(kind Kind, children []*Component) *Component {
	values := make([]any, len(children))
	for i, child := range children {
		values[i] = child
	}
	return NewComponent(kind.String(), values...)
}

func calculateContributes(values []any) bool {
	for _, v := range values {
		child, ok := v.(*Component)
		if !ok || child.Contributes {
			return true
		}
	}
	return false
}

// Update overwrites the contribution flag and, when hint is not empty, the hint.
func (c *Component) Update(contributes bool, hint string) {
	c.Contributes = contributes
	if hint != "" {
		c.Hint = hint
	}
}

// SetHint overwrites the hint without touching the contribution flag.
func (c *Component) SetHint(hint string) {
	c.Hint = hint
}

// IterValues returns the contributing primitive values of the tree in depth-first order.
// A non-contributing component yields nothing.
func (c *Component) IterValues() []string {
	if !c.Contributes {
		return nil
	}
	var out []string
	for _, v := range c.Values {
		switch val := v.(type) {
		case *Component:
			out = append(out, val.IterValues()...)
		case string:
			out = append(out, val)
		default:
			out = append(out, fmt.Sprint(val))
		}
	}
	return out
}

// Hash returns the hash of the contributing values, or false when the component
// does not contribute.
func (c *Component) Hash() (string, bool) {
	if !c.Contributes {
		return "", false
	}
	return HashFromValues(c.IterValues()), true
}

// AsDict renders the tree for persistence and debugging display.
func (c *Component) AsDict() map[string]any {
	values := make([]any, 0, len(c.Values))
	for _, v := range c.Values {
		if child, ok := v.(*Component); ok {
			values = append(values, child.AsDict())
			continue
		}
		values = append(values, v)
	}

	var hint any
	if c.Hint != "" {
		hint = c.Hint
	}

	return map[string]any{
		"id":          c.ID,
		"contributes": c.Contributes,
		"hint":        hint,
		"values":      values,
	}
}
