package errors

import "fmt"

// Position identifies an instruction inside a compiled function. Line is the
// source line the compiler attached to the instruction, or 0 when the unit
// carries no line table.
type Position struct {
	Function string // Name of the function definition
	PC       int    // Absolute instruction index after linking
	Line     int    // 1-based source line, 0 if unknown
}

func (p Position) String() string {
	name := p.Function
	if name == "" {
		name = "<anonymous>"
	}
	if p.Line > 0 {
		return fmt.Sprintf("%s:%d (pc %d)", name, p.Line, p.PC)
	}
	return fmt.Sprintf("%s (pc %d)", name, p.PC)
}
