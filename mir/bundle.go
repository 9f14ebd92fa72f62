package mir

// Bundle is a single unit representing the lowered contents of one
// compilation unit.  All functions a bundle's code can call are immediately
// defined in the bundle: units are distinct and self-contained.
type Bundle struct {
	// The name of the compilation unit.
	Name string

	// The functions of the unit, keyed by name.
	Funcs map[string]*Func

	// The entry function lowered from the unit's `Start ... End` block.
	Main *Func
}
