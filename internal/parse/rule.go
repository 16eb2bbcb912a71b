// Package parse extracts typed metrics from free-form process output using
// declarative regular-expression rules.
package parse

import "fmt"

// Kind is the value type a rule converts its captured text into.
type Kind int

const (
	KindString Kind = iota
	KindFloat
	KindInt
	KindEnum
)

// ParseKind maps the config spelling of a rule type to a Kind. An empty
// string means the default, str.
func ParseKind(s string) (Kind, error) {
	switch s {
	case "", "str", "string":
		return KindString, nil
	case "float":
		return KindFloat, nil
	case "int":
		return KindInt, nil
	case "enum":
		return KindEnum, nil
	default:
		return KindString, fmt.Errorf("unknown rule type %q (expected one of: float, int, enum, str)", s)
	}
}

func (k Kind) String() string {
	switch k {
	case KindString:
		return "str"
	case KindFloat:
		return "float"
	case KindInt:
		return "int"
	case KindEnum:
		return "enum"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Direction says whether larger or smaller values of a metric are better.
type Direction string

const (
	DirectionUnset  Direction = ""
	DirectionHigher Direction = "higher"
	DirectionLower  Direction = "lower"
)

// ParseDirection accepts "", "higher" or "lower".
func ParseDirection(s string) (Direction, error) {
	switch Direction(s) {
	case DirectionUnset, DirectionHigher, DirectionLower:
		return Direction(s), nil
	default:
		return DirectionUnset, fmt.Errorf("unknown direction %q (expected 'higher' or 'lower')", s)
	}
}

// Rule declares how to extract one named metric.
type Rule struct {
	Name     string
	Pattern  string
	Kind     Kind
	Required bool
	Units    string
	Enum     []string
	Better   Direction
}
