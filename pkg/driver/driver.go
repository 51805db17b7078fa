// Package driver wires configuration, the runtime and the builtins into a
// session that loads and executes compiled units.
package driver

import (
	"bytes"
	stderrors "errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/tliron/commonlog"

	"lynx/pkg/asm"
	"lynx/pkg/builtins"
	"lynx/pkg/config"
	"lynx/pkg/errors"
	"lynx/pkg/regex"
	"lynx/pkg/unitfile"
	"lynx/pkg/vm"
)

// Version is reported by `lynx version` and process.version.
const Version = "0.1.0"

var log = commonlog.GetLogger("lynx.driver")

// Lynx is an engine session: one runtime with the standard library
// installed. Globals defined by one unit stay visible to the units executed
// after it.
type Lynx struct {
	cfg    *config.Config
	rt     *vm.Runtime
	stdout io.Writer
	stderr io.Writer
}

// NewLynx creates a session with the default configuration writing to the
// process's stdout and stderr.
func NewLynx() (*Lynx, error) {
	return NewLynxWithConfig(config.Default(), os.Stdout, os.Stderr, nil)
}

// NewLynxWithConfig creates a session from cfg. argv becomes process.argv.
func NewLynxWithConfig(cfg *config.Config, stdout, stderr io.Writer, argv []string) (*Lynx, error) {
	if cfg == nil {
		cfg = config.Default()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	opts := cfg.Options()
	opts.RegexCompiler = regex.Compile

	l := &Lynx{cfg: cfg, rt: vm.New(opts), stdout: stdout, stderr: stderr}

	initializers := append(builtins.GetStandardInitializers(), NewProcessInitializer(argv))
	if err := builtins.InstallWith(l.rt, stdout, stderr, initializers); err != nil {
		return nil, fmt.Errorf("builtin initialization failed: %w", err)
	}
	log.Debugf("session created (config %q)", cfg.Path)
	return l, nil
}

// Runtime returns the session's runtime.
func (l *Lynx) Runtime() *vm.Runtime { return l.rt }

// Attach binds the session to the calling goroutine. It must be called
// before Execute, and Close must be called from the same goroutine.
func (l *Lynx) Attach() error { return l.rt.Attach() }

// Close detaches the session.
func (l *Lynx) Close() { l.rt.Detach() }

// Execute runs u. An uncaught script exception is returned as
// *errors.RuntimeError, a rejected unit as *errors.LinkError.
func (l *Lynx) Execute(u *vm.Unit) (vm.Value, error) {
	v, err := l.rt.Execute(u)
	if err != nil {
		log.Debugf("unit %s failed: %s", u.Name, err)
		return vm.Undefined, l.rt.UncaughtError(err)
	}
	return v, nil
}

// RunFile loads and executes the unit at path.
func (l *Lynx) RunFile(path string) (vm.Value, error) {
	u, err := LoadUnit(path)
	if err != nil {
		return vm.Undefined, err
	}
	log.Infof("running %s", path)
	return l.Execute(u)
}

// DisplayResult prints value, or the error that replaced it. It returns true
// if execution completed without error.
func (l *Lynx) DisplayResult(value vm.Value, err error) bool {
	if err != nil {
		Report(l.stderr, err)
		return false
	}
	if !value.IsUndefined() {
		fmt.Fprintln(l.stdout, l.rt.Inspect(value))
	}
	return true
}

// Report writes err to w, using the engine's error rendering when err
// carries an engine error.
func Report(w io.Writer, err error) {
	var lerr errors.LynxError
	if stderrors.As(err, &lerr) {
		errors.DisplayErrors(w, []errors.LynxError{lerr})
		return
	}
	fmt.Fprintf(w, "error: %s\n", err)
}

// LoadUnit reads a compiled unit (.lxb) or assembles a text unit (.lxs).
// Files with other extensions are recognised by the unit file magic.
func LoadUnit(path string) (*vm.Unit, error) {
	switch filepath.Ext(path) {
	case unitfile.Ext:
		return unitfile.ReadFile(path)
	case asm.Ext:
		return asm.AssembleFile(path)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if unitfile.IsUnit(data) {
		return unitfile.Decode(bytes.NewReader(data))
	}
	return asm.Assemble(path, string(data))
}
