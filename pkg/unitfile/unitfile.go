// Package unitfile stores compiled units on disk as msgpack.
package unitfile

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/vmihailenco/msgpack/v5"

	"lynx/pkg/vm"
)

// Ext is the file extension of compiled units.
const Ext = ".lxb"

// Current schema version; increment when the encoding of vm.Unit changes.
const schemaVersion uint16 = 1

var magic = []byte("LXB\x00")

// ErrNotUnit is returned when the input does not start with the unit file
// magic.
var ErrNotUnit = errors.New("unitfile: not a compiled unit")

type header struct {
	Schema uint16 `msgpack:"schema"`
	Engine string `msgpack:"engine,omitempty"`
}

// Encode writes u to w.
func Encode(w io.Writer, u *vm.Unit) error {
	if _, err := w.Write(magic); err != nil {
		return err
	}
	enc := msgpack.NewEncoder(w)
	enc.SetOmitEmpty(true)
	if err := enc.Encode(header{Schema: schemaVersion, Engine: "lynx"}); err != nil {
		return err
	}
	return enc.Encode(u)
}

// Decode reads a unit written by Encode.
func Decode(r io.Reader) (*vm.Unit, error) {
	br := bufio.NewReader(r)
	got := make([]byte, len(magic))
	if _, err := io.ReadFull(br, got); err != nil || !bytes.Equal(got, magic) {
		return nil, ErrNotUnit
	}
	dec := msgpack.NewDecoder(br)
	var h header
	if err := dec.Decode(&h); err != nil {
		return nil, fmt.Errorf("unitfile: header: %w", err)
	}
	if h.Schema != schemaVersion {
		return nil, fmt.Errorf("unitfile: schema %d, this build reads %d", h.Schema, schemaVersion)
	}
	u := new(vm.Unit)
	if err := dec.Decode(u); err != nil {
		return nil, fmt.Errorf("unitfile: %w", err)
	}
	return u, nil
}

// IsUnit reports whether data starts with the unit file magic.
func IsUnit(data []byte) bool { return bytes.HasPrefix(data, magic) }

// WriteFile encodes u into path, replacing it atomically.
func WriteFile(path string, u *vm.Unit) (err error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	f, err := os.CreateTemp(dir, "tmp-*")
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = os.Remove(f.Name())
		}
	}()
	w := bufio.NewWriter(f)
	if err = Encode(w, u); err != nil {
		f.Close()
		return err
	}
	if err = w.Flush(); err != nil {
		f.Close()
		return err
	}
	if err = f.Close(); err != nil {
		return err
	}
	return os.Rename(f.Name(), path)
}

// ReadFile decodes the unit stored at path.
func ReadFile(path string) (*vm.Unit, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	u, err := Decode(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return u, nil
}
