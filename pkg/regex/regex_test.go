package regex

import (
	"testing"

	"lynx/pkg/vm"
)

func TestExec(t *testing.T) {
	testCases := []struct {
		pattern, flags, input string
		start                 int
		wantStart, wantEnd    int
		wantText              string
	}{
		{"b+", "", "abbbc", 0, 1, 4, "bbb"},
		{"B", "i", "abc", 0, 1, 2, "b"},
		{"^c", "m", "ab\nc", 0, 3, 4, "c"},
		{"a.c", "s", "a\nc", 0, 0, 3, "a\nc"},
		{"é", "", "aéé", 2, 2, 3, "é"},
	}
	for _, tc := range testCases {
		p, err := Compile(tc.pattern, tc.flags)
		if err != nil {
			t.Fatalf("Compile(%q, %q): %v", tc.pattern, tc.flags, err)
		}
		m, err := p.Exec(tc.input, tc.start)
		if err != nil {
			t.Fatalf("Exec: %v", err)
		}
		if m == nil {
			t.Errorf("/%s/%s on %q: no match", tc.pattern, tc.flags, tc.input)
			continue
		}
		if m.Start != tc.wantStart || m.End != tc.wantEnd || m.Captures[0].Text != tc.wantText {
			t.Errorf("/%s/%s on %q = [%d,%d) %q, want [%d,%d) %q", tc.pattern, tc.flags, tc.input,
				m.Start, m.End, m.Captures[0].Text, tc.wantStart, tc.wantEnd, tc.wantText)
		}
	}
}

func TestNoMatch(t *testing.T) {
	p, err := Compile("x", "")
	if err != nil {
		t.Fatal(err)
	}
	for _, start := range []int{0, 3, 10} {
		m, err := p.Exec("abc", start)
		if err != nil || m != nil {
			t.Errorf("Exec(start=%d) = %v, %v, want no match", start, m, err)
		}
	}
}

func TestGroups(t *testing.T) {
	p, err := Compile(`(?<year>\d{4})-(x)?`, "")
	if err != nil {
		t.Fatal(err)
	}
	m, err := p.Exec("on 2024-05", 0)
	if err != nil || m == nil {
		t.Fatalf("Exec = %v, %v", m, err)
	}
	if len(m.Captures) != 3 {
		t.Fatalf("captures = %d, want 3", len(m.Captures))
	}
	idx, ok := m.Names["year"]
	if !ok {
		t.Fatalf("named group missing from %v", m.Names)
	}
	if got := m.Captures[idx]; !got.Matched || got.Text != "2024" || got.Start != 3 {
		t.Errorf("year = %+v", got)
	}
	unmatched := 0
	for _, c := range m.Captures {
		if !c.Matched {
			unmatched++
		}
	}
	if unmatched != 1 {
		t.Errorf("unmatched groups = %d, want 1", unmatched)
	}
}

func TestCompileErrors(t *testing.T) {
	if _, err := Compile("(", ""); err == nil {
		t.Errorf("unbalanced pattern compiled")
	}
	if _, err := Compile("a", "z"); err == nil {
		t.Errorf("unknown flag accepted")
	}
	p, err := Compile("a", "gyd")
	if err != nil {
		t.Fatalf("stateful flags rejected: %v", err)
	}
	if p.Source() != "a" || p.Flags() != "gyd" {
		t.Errorf("Source/Flags = %q/%q", p.Source(), p.Flags())
	}
}

func TestRuntimeIntegration(t *testing.T) {
	opts := vm.DefaultOptions()
	opts.RegexCompiler = Compile
	rt := vm.New(opts)
	if err := rt.Attach(); err != nil {
		t.Fatal(err)
	}
	defer rt.Detach()

	re, err := rt.NewRegExp(`(\w+)@(\w+)`, "g")
	if err != nil {
		t.Fatal(err)
	}
	m, err := rt.RegExpExec(re, rt.String("mail me@host now"))
	if err != nil {
		t.Fatal(err)
	}
	idx, _ := rt.GetProperty(m, rt.Key("index"))
	if idx.AsInteger() != 5 {
		t.Errorf("index = %s, want 5", rt.Inspect(idx))
	}
	user, _ := rt.GetProperty(m, rt.Key("1"))
	if rt.GoString(user) != "me" {
		t.Errorf("m[1] = %s", rt.Inspect(user))
	}
	li, _ := rt.GetProperty(re, rt.Key("lastIndex"))
	if li.AsInteger() != 12 {
		t.Errorf("lastIndex = %s, want 12", rt.Inspect(li))
	}

	if _, err := rt.NewRegExp("(", ""); err == nil {
		t.Errorf("bad pattern did not throw")
	}
}

func TestFlags(t *testing.T) {
	for _, flags := range []string{"", "i", "gimsuy", "du"} {
		p, err := Compile(`\w+`, flags)
		if err != nil {
			t.Errorf("Compile(flags %q): %v", flags, err)
			continue
		}
		if p.Flags() != flags {
			t.Errorf("Flags() = %q, want %q", p.Flags(), flags)
		}
	}
	if _, err := Compile("a", "x"); err == nil {
		t.Error("Compile with flag x succeeded, want an error")
	}
}
