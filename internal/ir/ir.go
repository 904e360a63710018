// Package ir defines TILT's typed SSA intermediate representation (spec
// §3): values, instructions, basic blocks with block parameters, functions,
// imports and modules. A Module is immutable once lowering returns it --
// both engines consume it read-only (spec §5).
package ir

import "tilt/internal/types"

// ID names an SSA value within a function. IDs are dense and assigned in
// definition order by the lowering pass; they double as the index a VM frame
// uses to look a value up.
type ID int

// Op is one of the closed set of instruction opcodes (spec §3 table).
type Op byte

const (
	OpConst Op = iota
	OpAdd
	OpSub
	OpMul
	OpDiv
	OpEq
	OpLt
	OpSizeof
	OpPtrAdd
	OpLoad
	OpStore
	OpAlloc
	OpFree
	OpCall
)

func (op Op) String() string {
	switch op {
	case OpConst:
		return "const"
	case OpAdd:
		return "add"
	case OpSub:
		return "sub"
	case OpMul:
		return "mul"
	case OpDiv:
		return "div"
	case OpEq:
		return "eq"
	case OpLt:
		return "lt"
	case OpSizeof:
		return "sizeof"
	case OpPtrAdd:
		return "ptr.add"
	case OpLoad:
		return "load"
	case OpStore:
		return "store"
	case OpAlloc:
		return "alloc"
	case OpFree:
		return "free"
	case OpCall:
		return "call"
	default:
		return "unknown"
	}
}

// Value is an operand: either a literal constant of a known type, or a
// reference to a previously defined SSA name (a function parameter, a block
// parameter, or the result of an earlier instruction in the same block
// chain).
type Value struct {
	IsConst bool
	Const   int64      // valid when IsConst
	ConstTy types.Type // type of the literal, valid when IsConst
	Ref     ID         // valid when !IsConst
}

// ConstValue builds a constant operand.
func ConstValue(ty types.Type, n int64) Value {
	return Value{IsConst: true, Const: n, ConstTy: ty}
}

// RefValue builds a reference operand.
func RefValue(id ID) Value {
	return Value{Ref: id}
}

// Instr is one IR instruction. Assigning instructions have Dest set and
// ResultTy != types.Void; void instructions (store, free) have no
// destination.
type Instr struct {
	Op       Op
	Dest     ID         // valid when assigning
	ResultTy types.Type // result type for assigning instructions, types.Void otherwise
	Args     []Value    // operands, in source order
	SizeofTy types.Type // operand of sizeof.T(); otherwise unused
	Callee   string     // function or import name, for OpCall
}

// TermKind distinguishes the four terminator forms (spec §3).
type TermKind byte

const (
	TermRet TermKind = iota
	TermRetVoid
	TermBr
	TermBrIf
)

// Terminator ends every basic block exactly once.
type Terminator struct {
	Kind TermKind

	// TermRet
	RetValue Value

	// TermBr
	Target     string
	TargetArgs []Value

	// TermBrIf
	Cond        Value
	TrueTarget  string
	TrueArgs    []Value
	FalseTarget string
	FalseArgs   []Value
}

// Param is a name+type pair: a function parameter or a block parameter.
type Param struct {
	Name string
	ID   ID
	Type types.Type
}

// Block is a basic block: a label, an ordered parameter list (the SSA join
// mechanism, replacing phi-nodes), an ordered instruction list and exactly
// one terminator.
type Block struct {
	Label  string
	Params []Param
	Instrs []Instr
	Term   Terminator
}

// Func is a TILT function definition.
type Func struct {
	Name     string
	Params   []Param
	RetType  types.Type
	Blocks   []*Block
	NumSSA   int // number of SSA IDs allocated for this function, for pre-sizing frames
}

// Entry returns the function's entry block (the first block, per spec §3).
func (f *Func) Entry() *Block {
	if len(f.Blocks) == 0 {
		return nil
	}
	return f.Blocks[0]
}

// Block looks up a block by label within f.
func (f *Func) Block(label string) *Block {
	for _, b := range f.Blocks {
		if b.Label == label {
			return b
		}
	}
	return nil
}

// Import declares an externally supplied function. Both engines resolve an
// import by Name alone (print_i32, alloc, free); Module is not consulted.
type Import struct {
	Module  string
	Name    string
	CC      string // optional calling-convention tag, informational only
	Params  []types.Type
	RetType types.Type
}

// Module is an ordered collection of imports and function definitions.
// Names are unique across both namespaces (spec §3 invariant). A Module is
// immutable once lowering hands it back to the driver.
type Module struct {
	Imports []*Import
	Funcs   []*Func
	BuildID string // see DESIGN.md: surfaced by --verbose, not semantically load-bearing
}

// FuncByName looks up a local function definition.
func (m *Module) FuncByName(name string) *Func {
	for _, f := range m.Funcs {
		if f.Name == name {
			return f
		}
	}
	return nil
}

// ImportByName looks up an import declaration.
func (m *Module) ImportByName(name string) *Import {
	for _, imp := range m.Imports {
		if imp.Name == name {
			return imp
		}
	}
	return nil
}

// Callee describes the resolved target of a call instruction: exactly one
// of Func or Import is non-nil.
type Callee struct {
	Func   *Func
	Import *Import
}

// Resolve finds the function or import named name within m.
func (m *Module) Resolve(name string) (Callee, bool) {
	if f := m.FuncByName(name); f != nil {
		return Callee{Func: f}, true
	}
	if imp := m.ImportByName(name); imp != nil {
		return Callee{Import: imp}, true
	}
	return Callee{}, false
}
