package vm

import "testing"

func TestBuilder_RejectsOutOfRange(t *testing.T) {
	testCases := []struct {
		name  string
		build func(b *Builder)
	}{
		{"stack too large", func(b *Builder) { b.Stack(70000) }},
		{"negative arity", func(b *Builder) { b.Arity(-1) }},
		{"captures too large", func(b *Builder) { b.Captures(1 << 16) }},
		{"negative stack offset", func(b *Builder) { b.WriteStack(-1, 0) }},
		{"negative param", func(b *Builder) { b.ReadParam(0, -2) }},
		{"negative argc", func(b *Builder) { b.Call(0, 0, -1) }},
		{"line overflow", func(b *Builder) { b.SetLine(1 << 40) }},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			defer func() {
				if recover() == nil {
					t.Errorf("%s did not panic", tc.name)
				}
			}()
			tc.build(NewBuilder("f"))
		})
	}
}

func TestBuilder_KeepsInRangeValues(t *testing.T) {
	b := NewBuilder("f").Stack(65535).Arity(3).Captures(2)
	b.WriteStack(65534, 1)
	b.Call(0, 10, 4)
	def := b.Def()
	if def.StackSlots != 65535 || def.Arity != 3 || def.CaptureSlots != 2 {
		t.Errorf("def sizes = %d/%d/%d", def.StackSlots, def.Arity, def.CaptureSlots)
	}
	if ins := def.Code[0]; ins.X != 65534 || ins.A != 1 {
		t.Errorf("WriteStack = %+v", ins)
	}
	if ins := def.Code[1]; ins.X != 10 || ins.Y != 4 {
		t.Errorf("Call = %+v", ins)
	}
}
