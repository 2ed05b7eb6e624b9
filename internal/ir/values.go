package ir

import "fmt"

// Value is an operand: a Variable or a Constant.
type Value interface {
	Type() Type
	String() string
}

// Variable is an SSA temporary or parameter. Each Variable is defined once,
// either as a block parameter or as the result of one operation.
type Variable struct {
	Name string
	typ  Type
}

// NewVariable creates a Variable of the given type.
func NewVariable(name string, typ Type) *Variable {
	return &Variable{Name: name, typ: typ}
}

// Type returns the static type of the variable.
func (v *Variable) Type() Type { return v.typ }

func (v *Variable) String() string { return v.Name }

// Constant is a prebuilt value. A prebuilt GC object can never be a stub;
// a Constant with Null set is the null pointer of its type.
type Constant struct {
	Name string
	typ  Type
	Null bool
}

// NewConstant creates a prebuilt constant of the given type.
func NewConstant(name string, typ Type) *Constant {
	return &Constant{Name: name, typ: typ}
}

// NullOf returns the null pointer of type t.
func NullOf(t Type) *Constant {
	return &Constant{Name: "null", typ: t, Null: true}
}

// Type returns the static type of the constant.
func (c *Constant) Type() Type { return c.typ }

func (c *Constant) String() string {
	if c.Null {
		return fmt.Sprintf("(%s)null", c.typ)
	}
	return "$" + c.Name
}
