package builtins

import (
	"fmt"
	"io"
	"os"
	"sort"

	"lynx/pkg/vm"
)

// GetStandardInitializers returns all built-in initializers sorted by priority
func GetStandardInitializers() []BuiltinInitializer {
	initializers := []BuiltinInitializer{
		&GlobalsInitializer{},
		&ObjectInitializer{},
		&FunctionInitializer{},
		&ArrayInitializer{},
		&StringInitializer{},
		&NumberInitializer{},
		&SymbolInitializer{},
		&RegExpInitializer{},
		&PromiseInitializer{},
		&MathInitializer{},
		&JSONInitializer{},
		&ConsoleInitializer{},
		&MapInitializer{},
		&SetInitializer{},
	}

	// Sort by priority (lower numbers first)
	sort.SliceStable(initializers, func(i, j int) bool {
		return initializers[i].Priority() < initializers[j].Priority()
	})

	return initializers
}

// Install runs the standard initializers against rt. Nil writers default to
// the process's stdout and stderr.
func Install(rt *vm.Runtime, stdout, stderr io.Writer) error {
	return InstallWith(rt, stdout, stderr, GetStandardInitializers())
}

// InstallWith runs initializers in the order given.
func InstallWith(rt *vm.Runtime, stdout, stderr io.Writer, initializers []BuiltinInitializer) error {
	if stdout == nil {
		stdout = os.Stdout
	}
	if stderr == nil {
		stderr = os.Stderr
	}
	realm := rt.Realm()
	ctx := &RuntimeContext{
		Runtime: rt,
		Stdout:  stdout,
		Stderr:  stderr,
		DefineGlobal: func(name string, value vm.Value) error {
			rt.SetGlobal(name, value)
			return nil
		},
		ObjectPrototype:   realm.ObjectPrototype,
		FunctionPrototype: realm.FunctionPrototype,
		ArrayPrototype:    realm.ArrayPrototype,
	}
	for _, init := range initializers {
		if err := init.InitRuntime(ctx); err != nil {
			return fmt.Errorf("builtins: %s: %w", init.Name(), err)
		}
	}
	return nil
}
