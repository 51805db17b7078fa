package vm

// FunctionDef is the compiled form of one function. Ids inside Code are
// local to the Unit the definition came from until the unit is linked.
type FunctionDef struct {
	Name         string        `msgpack:"name"`
	Code         []Instruction `msgpack:"code"`
	Lines        []int32       `msgpack:"lines,omitempty"`
	Arity        uint16        `msgpack:"arity"`
	StackSlots   uint16        `msgpack:"stack"`
	CaptureSlots uint16        `msgpack:"captures,omitempty"`

	// UsesParentCapture makes instances share the env of the activation
	// that created them instead of allocating their own.
	UsesParentCapture bool `msgpack:"parent_capture,omitempty"`
	IsAsync           bool `msgpack:"async,omitempty"`
	IsGenerator       bool `msgpack:"generator,omitempty"`
	IsArrow           bool `msgpack:"arrow,omitempty"`

	id      FuncID
	linked  bool
	nested  []FuncID // functions instantiated by this one
	classes []ClassID
	gcEpoch uint64
}

// ID returns the runtime id assigned by the link pass.
func (d *FunctionDef) ID() FuncID { return d.id }

// Line returns the source line recorded for pc, or 0.
func (d *FunctionDef) Line(pc int) int {
	if pc >= 0 && pc < len(d.Lines) {
		return int(d.Lines[pc])
	}
	return 0
}

type FuncID uint32
type ClassID uint32

type MethodKind uint8

const (
	MethodNormal MethodKind = iota
	MethodGetter
	MethodSetter
)

// MethodDef binds a function to a class member name.
type MethodDef struct {
	Name     uint32     `msgpack:"name"` // field name id
	Function uint32     `msgpack:"fn"`
	Kind     MethodKind `msgpack:"kind,omitempty"`
	Static   bool       `msgpack:"static,omitempty"`
}

// ClassDef describes a class. Constructor is a function id or -1 for the
// default constructor.
type ClassDef struct {
	Name        string      `msgpack:"name"`
	Constructor int32       `msgpack:"ctor"`
	HasSuper    bool        `msgpack:"extends,omitempty"`
	Methods     []MethodDef `msgpack:"methods,omitempty"`

	id       ClassID
	ctor     *FunctionDef
	methods  []linkedMethod
	gcEpoch  uint64
	linkedBy *LinkedUnit
}

type linkedMethod struct {
	key    PropertyKey
	def    *FunctionDef
	kind   MethodKind
	static bool
}

func (c *ClassDef) ID() ClassID { return c.id }

type RegexSource struct {
	Pattern string `msgpack:"pattern"`
	Flags   string `msgpack:"flags,omitempty"`
}

// Template holds the literal fragments of a template string; a template with
// n fragments takes n-1 substitutions.
type Template struct {
	Fragments []string `msgpack:"fragments"`
}

// Unit is the compiler's output: functions, classes and the interned pools
// their instructions refer to.
type Unit struct {
	Name         string         `msgpack:"name"`
	Main         uint32         `msgpack:"main"`
	Functions    []*FunctionDef `msgpack:"functions"`
	Classes      []*ClassDef    `msgpack:"classes,omitempty"`
	Strings      []string       `msgpack:"strings,omitempty"`
	FieldNames   []string       `msgpack:"fields,omitempty"`
	DynamicNames []string       `msgpack:"names,omitempty"`
	Floats       []float64      `msgpack:"floats,omitempty"`
	BigInts      []int64        `msgpack:"bigints,omitempty"`
	Regexes      []RegexSource  `msgpack:"regexes,omitempty"`
	Templates    []Template     `msgpack:"templates,omitempty"`
}

// LinkedUnit is a Unit whose instructions have been rewritten to runtime ids
// and absolute jump targets.
type LinkedUnit struct {
	Name      string
	Main      *FunctionDef
	Functions []*FunctionDef
	Classes   []*ClassDef
	pins      int
}
