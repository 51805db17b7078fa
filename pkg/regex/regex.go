// Package regex compiles script regular expressions with regexp2 in its
// ECMAScript mode and adapts the matches to the engine's collaborator types.
package regex

import (
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/dlclark/regexp2"

	"lynx/pkg/vm"
)

// DefaultTimeout bounds a single Exec so a catastrophic pattern cannot hang
// the runtime.
const DefaultTimeout = 5 * time.Second

// Pattern is a compiled regular expression.
type Pattern struct {
	re     *regexp2.Regexp
	source string
	flags  string
	groups []int          // group numbers in capture order, 0 first
	names  map[string]int // group name -> position in groups
}

// Compile translates script flags into regexp2 options and compiles the
// pattern. The g and y flags are stateful and handled by the caller; d is
// accepted and ignored.
func Compile(pattern, flags string) (vm.CompiledPattern, error) {
	p, err := CompileTimeout(pattern, flags, DefaultTimeout)
	if err != nil {
		return nil, err
	}
	return p, nil
}

// CompileTimeout is Compile with an explicit match timeout. A zero timeout
// disables the check.
func CompileTimeout(pattern, flags string, timeout time.Duration) (*Pattern, error) {
	opts, err := translateFlags(flags)
	if err != nil {
		return nil, err
	}
	re, err := regexp2.Compile(pattern, opts)
	if err != nil {
		return nil, err
	}
	if timeout > 0 {
		re.MatchTimeout = timeout
	}

	p := &Pattern{re: re, source: pattern, flags: flags}
	p.groups = re.GetGroupNumbers()
	sort.Ints(p.groups)
	pos := make(map[int]int, len(p.groups))
	for i, n := range p.groups {
		pos[n] = i
	}
	for _, name := range re.GetGroupNames() {
		if _, err := strconv.Atoi(name); err == nil {
			continue
		}
		if p.names == nil {
			p.names = make(map[string]int)
		}
		p.names[name] = pos[re.GroupNumberFromName(name)]
	}
	return p, nil
}

func translateFlags(flags string) (regexp2.RegexOptions, error) {
	opts := regexp2.RegexOptions(regexp2.ECMAScript)
	for _, c := range flags {
		switch c {
		case 'i':
			opts |= regexp2.IgnoreCase
		case 'm':
			opts |= regexp2.Multiline
		case 's':
			opts |= regexp2.Singleline
		case 'u':
			opts |= regexp2.Unicode
		case 'g', 'y', 'd':
		default:
			return 0, fmt.Errorf("unsupported flag %q", c)
		}
	}
	return opts, nil
}

func (p *Pattern) Source() string { return p.source }
func (p *Pattern) Flags() string  { return p.flags }

// Exec matches input from rune offset start.
func (p *Pattern) Exec(input string, start int) (*vm.RegexMatch, error) {
	runes := []rune(input)
	if start > len(runes) {
		return nil, nil
	}
	m, err := p.re.FindRunesMatchStartingAt(runes, start)
	if err != nil || m == nil {
		return nil, err
	}
	out := &vm.RegexMatch{
		Start:    m.Index,
		End:      m.Index + m.Length,
		Captures: make([]vm.RegexCapture, len(p.groups)),
		Names:    p.names,
	}
	for i, n := range p.groups {
		g := m.GroupByNumber(n)
		if g == nil || len(g.Captures) == 0 {
			out.Captures[i] = vm.RegexCapture{Start: -1}
			continue
		}
		out.Captures[i] = vm.RegexCapture{Matched: true, Start: g.Index, Text: g.String()}
	}
	return out, nil
}
