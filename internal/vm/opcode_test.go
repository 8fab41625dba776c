package vm

import (
	"errors"
	"testing"

	"github.com/retroenv/retrogolib/assert"
)

func TestDecode(t *testing.T) {
	tests := []struct {
		opcode   uint16
		expected Op
	}{
		{0x00E0, OpCls},
		{0x00EE, OpRts},
		{0x0123, OpUnknown},
		{0x00E1, OpUnknown},
		{0x1ABC, OpJmp},
		{0x2ABC, OpJsr},
		{0x3A12, OpSkeqImm},
		{0x4A12, OpSkneImm},
		{0x5AB0, OpSkeqReg},
		{0x5AB1, OpUnknown},
		{0x6A12, OpMovImm},
		{0x7A12, OpAddImm},
		{0x8AB0, OpMovReg},
		{0x8AB1, OpOr},
		{0x8AB2, OpAnd},
		{0x8AB3, OpXor},
		{0x8AB4, OpAddReg},
		{0x8AB5, OpSub},
		{0x8AB6, OpShr},
		{0x8AB7, OpRsb},
		{0x8ABE, OpShl},
		{0x8AB8, OpUnknown},
		{0x9AB0, OpSkneReg},
		{0x9AB1, OpUnknown},
		{0xAABC, OpMvi},
		{0xBABC, OpJmi},
		{0xCA12, OpRand},
		{0xDAB5, OpSprite},
		{0xEA9E, OpSkpr},
		{0xEAA1, OpSkup},
		{0xEA00, OpUnknown},
		{0xFA07, OpGdelay},
		{0xFA0A, OpKey},
		{0xFA15, OpSdelay},
		{0xFA18, OpSsound},
		{0xFA1E, OpAdi},
		{0xFA29, OpFont},
		{0xFA33, OpBcd},
		{0xFA55, OpStr},
		{0xFA65, OpLdr},
		{0xFA99, OpUnknown},
	}

	for _, tt := range tests {
		t.Run(Disassemble(tt.opcode), func(t *testing.T) {
			assert.Equal(t, tt.expected, Decode(tt.opcode))
		})
	}
}

func TestInstructionTable_Complete(t *testing.T) {
	for op := OpUnknown; op < opCount; op++ {
		assert.True(t, instructions[op].Name != nil)
		assert.True(t, instructions[op].Execute != nil)
		assert.True(t, opNames[op] != "")
	}
}

func TestDisassemble(t *testing.T) {
	tests := []struct {
		opcode   uint16
		expected string
	}{
		{0x00E0, "cls"},
		{0x00EE, "rts"},
		{0x1228, "jmp 0x0228"},
		{0x3A12, "skeq va, 18"},
		{0x8124, "add v1, v2"},
		{0x8106, "shr v1"},
		{0xC30F, "rand v3, 0x0f"},
		{0xD125, "sprite v1, v2, 5"},
		{0xF355, "str v0-v3"},
		{0xF265, "ldr v0-v2"},
		{0x0123, "unknown 0x0123"},
	}

	for _, tt := range tests {
		t.Run(tt.expected, func(t *testing.T) {
			assert.Equal(t, tt.expected, Disassemble(tt.opcode))
		})
	}
}

func TestOp_String(t *testing.T) {
	assert.Equal(t, "sprite", OpSprite.String())
	assert.Equal(t, "unknown", Op(200).String())
}

func TestAddImmediate_Wraps(t *testing.T) {
	for _, v := range []uint8{0, 1, 0x7F, 0xFE, 0xFF} {
		for _, kk := range []uint8{0, 1, 0x80, 0xFF} {
			machine, _ := newTestVM(t, 0x7400|uint16(kk))
			machine.registers[4] = v
			machine.registers[0x0F] = 0x55

			stepN(t, machine, 1)
			assert.Equal(t, uint8((int(v)+int(kk))%256), machine.V(4))
			assert.Equal(t, uint8(0x55), machine.V(0x0F))
		}
	}
}

func TestArithmetic(t *testing.T) {
	tests := []struct {
		name     string
		opcode   uint16
		x, y     uint8
		expected uint8
		vf       uint8
	}{
		{"mov", 0x8120, 1, 9, 9, 0xAA},
		{"or", 0x8121, 0x0F, 0xF0, 0xFF, 0xAA},
		{"and", 0x8122, 0x3C, 0x0F, 0x0C, 0xAA},
		{"xor", 0x8123, 0xFF, 0x0F, 0xF0, 0xAA},
		{"add no carry", 0x8124, 100, 155, 255, 0},
		{"add carry", 0x8124, 200, 100, 44, 1},
		{"add carry exact", 0x8124, 0xFF, 0x01, 0x00, 1},
		{"sub no borrow", 0x8125, 10, 3, 7, 1},
		{"sub equal", 0x8125, 5, 5, 0, 0},
		{"sub borrow", 0x8125, 3, 10, 249, 0},
		{"shr odd", 0x8126, 0x05, 0, 0x02, 1},
		{"shr even", 0x8126, 0x04, 0, 0x02, 0},
		{"rsb no borrow", 0x8127, 3, 10, 7, 1},
		{"rsb equal", 0x8127, 5, 5, 0, 0},
		{"rsb borrow", 0x8127, 10, 3, 249, 0},
		{"shl high bit", 0x812E, 0x81, 0, 0x02, 1},
		{"shl low bit", 0x812E, 0x41, 0, 0x82, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			machine, _ := newTestVM(t, tt.opcode)
			machine.registers[1] = tt.x
			machine.registers[2] = tt.y
			machine.registers[0x0F] = 0xAA

			stepN(t, machine, 1)
			assert.Equal(t, tt.expected, machine.V(1))
			assert.Equal(t, tt.vf, machine.V(0x0F))
			assert.Equal(t, tt.y, machine.V(2))
		})
	}
}

func TestAddRegister_CarryProperty(t *testing.T) {
	for x := 0; x < 256; x += 17 {
		for y := 0; y < 256; y += 13 {
			machine, _ := newTestVM(t, 0x8014)
			machine.registers[0] = uint8(x)
			machine.registers[1] = uint8(y)

			stepN(t, machine, 1)
			assert.Equal(t, uint8((x+y)%256), machine.V(0))
			if x+y > 255 {
				assert.Equal(t, uint8(1), machine.V(0x0F))
			} else {
				assert.Equal(t, uint8(0), machine.V(0x0F))
			}
		}
	}
}

func TestShiftRight_Property(t *testing.T) {
	for x := 0; x < 256; x++ {
		machine, _ := newTestVM(t, 0x8306)
		machine.registers[3] = uint8(x)

		stepN(t, machine, 1)
		assert.Equal(t, uint8(x&1), machine.V(0x0F))
		assert.Equal(t, uint8(x>>1), machine.V(3))
	}
}

func TestFlagRegisterAsDestination(t *testing.T) {
	// VF receives the result, not the flag
	machine, _ := newTestVM(t, 0x8F14)
	machine.registers[0x0F] = 200
	machine.registers[1] = 100

	stepN(t, machine, 1)
	assert.Equal(t, uint8(44), machine.V(0x0F))
}

func TestSkips(t *testing.T) {
	tests := []struct {
		name   string
		opcode uint16
		x, y   uint8
		skip   bool
	}{
		{"skeq imm equal", 0x3107, 7, 0, true},
		{"skeq imm differ", 0x3107, 8, 0, false},
		{"skne imm equal", 0x4107, 7, 0, false},
		{"skne imm differ", 0x4107, 8, 0, true},
		{"skeq reg equal", 0x5120, 3, 3, true},
		{"skeq reg differ", 0x5120, 3, 4, false},
		{"skne reg equal", 0x9120, 3, 3, false},
		{"skne reg differ", 0x9120, 3, 4, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			machine, _ := newTestVM(t, tt.opcode)
			machine.registers[1] = tt.x
			machine.registers[2] = tt.y

			stepN(t, machine, 1)
			if tt.skip {
				assert.Equal(t, ProgramStart+4, machine.PC())
			} else {
				assert.Equal(t, ProgramStart+2, machine.PC())
			}
		})
	}
}

func TestKeySkips(t *testing.T) {
	machine, _ := newTestVM(t, 0xE19E, 0xE1A1, 0x0000, 0xE19E, 0x0000, 0xE1A1)
	machine.registers[1] = 0x1A // only the low nibble selects the key

	// not pressed: skpr falls through, skup skips
	stepN(t, machine, 2)
	assert.Equal(t, ProgramStart+6, machine.PC())

	machine.KeyDown(KeyA)
	stepN(t, machine, 1)
	assert.Equal(t, ProgramStart+10, machine.PC())

	stepN(t, machine, 1)
	assert.Equal(t, ProgramStart+12, machine.PC())
}

func TestJumpsAndCalls(t *testing.T) {
	machine, _ := newTestVM(t,
		0x2206, // 200: jsr 0x206
		0x6101, // 202: mov v1, 1
		0x1202, // 204: jmp 0x202
		0x6102, // 206: mov v1, 2
		0x00EE, // 208: rts
	)

	stepN(t, machine, 1)
	assert.Equal(t, uint16(0x206), machine.PC())
	assert.Equal(t, 1, machine.StackDepth())

	stepN(t, machine, 2)
	assert.Equal(t, uint16(0x202), machine.PC())
	assert.Equal(t, 0, machine.StackDepth())
	assert.Equal(t, uint8(2), machine.V(1))

	stepN(t, machine, 2)
	assert.Equal(t, uint16(0x202), machine.PC())
	assert.Equal(t, uint8(1), machine.V(1))
	assert.False(t, machine.Spinning())
}

func TestJump_Spinning(t *testing.T) {
	machine, _ := newTestVM(t, 0x6000, 0x1202)

	stepN(t, machine, 1)
	assert.False(t, machine.Spinning())

	stepN(t, machine, 1)
	assert.True(t, machine.Spinning())
	assert.Equal(t, uint16(0x202), machine.PC())
}

func TestJumpIndexed(t *testing.T) {
	machine, _ := newTestVM(t, 0xB300)
	machine.registers[0] = 0x10

	stepN(t, machine, 1)
	assert.Equal(t, uint16(0x310), machine.PC())

	machine, _ = newTestVM(t, 0xBFFF)
	machine.registers[0] = 0x02
	stepN(t, machine, 1)
	assert.Equal(t, uint16(0x001), machine.PC())
}

func TestReturn_Underflow(t *testing.T) {
	machine, _ := newTestVM(t, 0x00EE)

	err := machine.Step()
	assert.True(t, errors.Is(err, ErrStackUnderflow))
}

func TestCall_Overflow(t *testing.T) {
	machine, _ := newTestVM(t, 0x2200)

	stepN(t, machine, StackSize)
	assert.Equal(t, StackSize, machine.StackDepth())

	err := machine.Step()
	assert.True(t, errors.Is(err, ErrStackOverflow))
}

func TestIndexInstructions(t *testing.T) {
	machine, _ := newTestVM(t, 0xAFF0, 0xF11E, 0xF229)
	machine.registers[1] = 0x20
	machine.registers[2] = 0xAB

	stepN(t, machine, 1)
	assert.Equal(t, uint16(0xFF0), machine.I())

	stepN(t, machine, 1)
	assert.Equal(t, uint16(0x010), machine.I())
	assert.Equal(t, uint8(0), machine.V(0x0F))

	stepN(t, machine, 1)
	assert.Equal(t, uint16(0x0B*FontGlyphSize), machine.I())
}

func TestRand_Masked(t *testing.T) {
	for i := 0; i < 32; i++ {
		machine, _ := newTestVM(t, 0xC50F, 0xC600)
		for j := 0; j < i; j++ {
			machine.rng.Uint64()
		}

		stepN(t, machine, 2)
		assert.Equal(t, uint8(0), machine.V(5)&0xF0)
		assert.Equal(t, uint8(0), machine.V(6))
	}
}

func TestTimerRegisters(t *testing.T) {
	machine, _ := newTestVM(t, 0xF215, 0xF307)
	machine.registers[2] = 10

	stepN(t, machine, 2)
	assert.Equal(t, uint8(9), machine.V(3))
}

func TestBCD(t *testing.T) {
	tests := []struct {
		value    uint8
		expected [3]uint8
	}{
		{234, [3]uint8{2, 3, 4}},
		{5, [3]uint8{0, 0, 5}},
		{100, [3]uint8{1, 0, 0}},
		{255, [3]uint8{2, 5, 5}},
	}

	for _, tt := range tests {
		machine, _ := newTestVM(t, 0xA300, 0xF433)
		machine.registers[4] = tt.value

		stepN(t, machine, 2)
		for i, digit := range tt.expected {
			assert.Equal(t, digit, machine.ReadMemory(0x300+uint16(i)))
		}
		assert.Equal(t, uint16(0x300), machine.I())
	}
}

func TestStoreLoad_RoundTrip(t *testing.T) {
	machine, _ := newTestVM(t,
		0xA400, // mvi 0x400
		0xF555, // str v0-v5
		0x6000, 0x6100, 0x6200, 0x6300, 0x6400, 0x6500,
		0xF565, // ldr v0-v5
	)
	original := []uint8{9, 8, 7, 250, 1, 128}
	for i, v := range original {
		machine.registers[i] = v
	}
	machine.registers[6] = 0x66

	stepN(t, machine, 2)
	for i, v := range original {
		assert.Equal(t, v, machine.ReadMemory(0x400+uint16(i)))
	}
	assert.Equal(t, uint8(0), machine.ReadMemory(0x406))

	stepN(t, machine, 6)
	assert.Equal(t, uint8(0), machine.V(3))

	stepN(t, machine, 1)
	for i, v := range original {
		assert.Equal(t, v, machine.V(i))
	}
	assert.Equal(t, uint8(0x66), machine.V(6))
	assert.Equal(t, uint16(0x400), machine.I())
}
