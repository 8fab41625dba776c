package vm

import (
	"context"
	"fmt"
	"log/slog"
)

// Op identifies one instruction of the base instruction set.
type Op uint8

const (
	OpUnknown Op = iota
	OpCls        // 00E0
	OpRts        // 00EE
	OpJmp        // 1NNN
	OpJsr        // 2NNN
	OpSkeqImm    // 3XNN
	OpSkneImm    // 4XNN
	OpSkeqReg    // 5XY0
	OpMovImm     // 6XNN
	OpAddImm     // 7XNN
	OpMovReg     // 8XY0
	OpOr         // 8XY1
	OpAnd        // 8XY2
	OpXor        // 8XY3
	OpAddReg     // 8XY4
	OpSub        // 8XY5
	OpShr        // 8XY6
	OpRsb        // 8XY7
	OpShl        // 8XYE
	OpSkneReg    // 9XY0
	OpMvi        // ANNN
	OpJmi        // BNNN
	OpRand       // CXNN
	OpSprite     // DXYN
	OpSkpr       // EX9E
	OpSkup       // EXA1
	OpGdelay     // FX07
	OpKey        // FX0A
	OpSdelay     // FX15
	OpSsound     // FX18
	OpAdi        // FX1E
	OpFont       // FX29
	OpBcd        // FX33
	OpStr        // FX55
	OpLdr        // FX65

	opCount
)

var opNames = [opCount]string{
	OpUnknown: "unknown",
	OpCls:     "cls",
	OpRts:     "rts",
	OpJmp:     "jmp",
	OpJsr:     "jsr",
	OpSkeqImm: "skeq",
	OpSkneImm: "skne",
	OpSkeqReg: "skeq",
	OpMovImm:  "mov",
	OpAddImm:  "add",
	OpMovReg:  "mov",
	OpOr:      "or",
	OpAnd:     "and",
	OpXor:     "xor",
	OpAddReg:  "add",
	OpSub:     "sub",
	OpShr:     "shr",
	OpRsb:     "rsb",
	OpShl:     "shl",
	OpSkneReg: "skne",
	OpMvi:     "mvi",
	OpJmi:     "jmi",
	OpRand:    "rand",
	OpSprite:  "sprite",
	OpSkpr:    "skpr",
	OpSkup:    "skup",
	OpGdelay:  "gdelay",
	OpKey:     "key",
	OpSdelay:  "sdelay",
	OpSsound:  "ssound",
	OpAdi:     "adi",
	OpFont:    "font",
	OpBcd:     "bcd",
	OpStr:     "str",
	OpLdr:     "ldr",
}

// String returns the mnemonic of op.
func (op Op) String() string {
	if op >= opCount {
		return opNames[OpUnknown]
	}
	return opNames[op]
}

// Decode maps an opcode to its instruction. Patterns without a handler decode
// to OpUnknown.
func Decode(opcode uint16) Op {
	switch opcode & 0xF000 {
	case 0x0000:
		switch opcode {
		case 0x00E0:
			// 00E0 - Clear screen
			return OpCls

		case 0x00EE:
			// 00EE - Return from subroutine
			return OpRts
		}

	case 0x1000:
		// 1NNN - Jumps to address NNN
		return OpJmp

	case 0x2000:
		// 2NNN - Calls subroutine at NNN
		return OpJsr

	case 0x3000:
		// 3XNN - Skips the next instruction if VX equals NN
		return OpSkeqImm

	case 0x4000:
		// 4XNN - Skips the next instruction if VX does not equal NN
		return OpSkneImm

	case 0x5000:
		// 5XY0 - Skips the next instruction if VX equals VY
		if opcode&0x000F == 0 {
			return OpSkeqReg
		}

	case 0x6000:
		// 6XNN - Sets VX to NN
		return OpMovImm

	case 0x7000:
		// 7XNN - Adds NN to VX
		return OpAddImm

	case 0x8000:
		// 8XY_
		switch opcode & 0x000F {
		case 0x0000:
			// 8XY0 - Sets VX to the value of VY
			return OpMovReg

		case 0x0001:
			// 8XY1 - Sets VX to (VX OR VY)
			return OpOr

		case 0x0002:
			// 8XY2 - Sets VX to (VX AND VY)
			return OpAnd

		case 0x0003:
			// 8XY3 - Sets VX to (VX XOR VY)
			return OpXor

		case 0x0004:
			// 8XY4 - Adds VY to VX. VF is set to 1 when there's a carry, and to 0 when there isn't.
			return OpAddReg

		case 0x0005:
			// 8XY5 - VY is subtracted from VX. VF is set to 1 when VX > VY, and 0 otherwise.
			return OpSub

		case 0x0006:
			// 8XY6 - Shifts VX right by one. VF is set to the value of the least significant bit of VX before the shift.
			return OpShr

		case 0x0007:
			// 8XY7 - Sets VX to VY minus VX. VF is set to 1 when VY > VX, and 0 otherwise.
			return OpRsb

		case 0x000E:
			// 8XYE - Shifts VX left by one. VF is set to the value of the most significant bit of VX before the shift.
			return OpShl
		}

	case 0x9000:
		// 9XY0 - Skips the next instruction if VX doesn't equal VY
		if opcode&0x000F == 0 {
			return OpSkneReg
		}

	case 0xA000:
		// ANNN - Sets I to the address NNN
		return OpMvi

	case 0xB000:
		// BNNN - Jumps to the address NNN plus V0
		return OpJmi

	case 0xC000:
		// CXNN - Sets VX to a random number, masked by NN
		return OpRand

	case 0xD000:
		// DXYN - Draws a sprite at coordinate (VX, VY) that has a width of 8
		// pixels and a height of N pixels.
		// Each row of 8 pixels is read as bit-coded starting from memory
		// location I;
		// I value doesn't change after the execution of this instruction.
		// VF is set to 1 if any screen pixels are flipped from set to unset
		// when the sprite is drawn, and to 0 if that doesn't happen.
		return OpSprite

	case 0xE000:
		switch opcode & 0x00FF {
		case 0x009E:
			// EX9E - Skips the next instruction if the key stored in VX is pressed
			return OpSkpr

		case 0x00A1:
			// EXA1 - Skips the next instruction if the key stored in VX isn't pressed
			return OpSkup
		}

	case 0xF000:
		switch opcode & 0x00FF {
		case 0x0007:
			// FX07 - Sets VX to the value of the delay timer
			return OpGdelay

		case 0x000A:
			// FX0A - A key press is awaited, and then stored in VX
			return OpKey

		case 0x0015:
			// FX15 - Sets the delay timer to VX
			return OpSdelay

		case 0x0018:
			// FX18 - Sets the sound timer to VX
			return OpSsound

		case 0x001E:
			// FX1E - Adds VX to I, wrapping at the end of memory
			return OpAdi

		case 0x0029:
			// FX29 - Sets I to the location of the sprite for the
			// character in VX. Characters 0-F (in hexadecimal) are
			// represented by a 4x5 font
			return OpFont

		case 0x0033:
			// FX33 - Stores the Binary-coded decimal representation of VX
			// at the addresses I, I plus 1, and I plus 2
			return OpBcd

		case 0x0055:
			// FX55 - Stores V0 to VX in memory starting at address I
			return OpStr

		case 0x0065:
			// FX65 - Reads memory starting at address I into V0...VX
			return OpLdr
		}
	}

	return OpUnknown
}

// Disassemble returns the assembly form of opcode.
func Disassemble(opcode uint16) string {
	return instructions[Decode(opcode)].Name(opcode)
}

func (vm *VM) executeOpcode(pc uint16, op Op, opcode uint16) error {
	instr := instructions[op]

	if slog.Default().Enabled(context.Background(), slog.LevelDebug) {
		slog.Debug(
			"exec",
			"pc", fmt.Sprintf("0x%04x", pc),
			"opcode", fmt.Sprintf("0x%04x", opcode),
			"instr", instr.Name(opcode),
		)
	}

	vm.spinning = false
	return instr.Execute(vm, opcode)
}

type instruction struct {
	Name    func(opcode uint16) string
	Execute func(vm *VM, opcode uint16) error
}

func regX(opcode uint16) uint16 { return (opcode & 0x0F00) >> 8 }

func regY(opcode uint16) uint16 { return (opcode & 0x00F0) >> 4 }

func imm8(opcode uint16) uint8 { return uint8(opcode & 0x00FF) }

func addr12(opcode uint16) uint16 { return opcode & 0x0FFF }

func (vm *VM) skipIf(cond bool) {
	if cond {
		vm.pc = wrapAddr(vm.pc + InstructionSize)
	}
}

func nameX(mnemonic string) func(uint16) string {
	return func(opcode uint16) string {
		return fmt.Sprintf("%s v%x", mnemonic, regX(opcode))
	}
}

func nameXY(mnemonic string) func(uint16) string {
	return func(opcode uint16) string {
		return fmt.Sprintf("%s v%x, v%x", mnemonic, regX(opcode), regY(opcode))
	}
}

func nameXImm(mnemonic string) func(uint16) string {
	return func(opcode uint16) string {
		return fmt.Sprintf("%s v%x, %d", mnemonic, regX(opcode), imm8(opcode))
	}
}

func nameAddr(mnemonic string) func(uint16) string {
	return func(opcode uint16) string {
		return fmt.Sprintf("%s 0x%04x", mnemonic, addr12(opcode))
	}
}

// aluFlag runs a flag-producing operation on VX and VY. VF is written before
// VX, so VX wins when X is F.
func aluFlag(f func(x, y uint8) (result, carry uint8)) func(vm *VM, opcode uint16) error {
	return func(vm *VM, opcode uint16) error {
		vX, vY := regX(opcode), regY(opcode)
		result, carry := f(vm.registers[vX], vm.registers[vY])

		vm.registers[0x0F] = carry
		vm.registers[vX] = result
		return nil
	}
}

func alu(f func(x, y uint8) uint8) func(vm *VM, opcode uint16) error {
	return func(vm *VM, opcode uint16) error {
		vX, vY := regX(opcode), regY(opcode)
		vm.registers[vX] = f(vm.registers[vX], vm.registers[vY])
		return nil
	}
}

func flag(cond bool) uint8 {
	if cond {
		return 1
	}
	return 0
}

var instructions = [opCount]instruction{
	OpUnknown: {
		Name: func(opcode uint16) string {
			return fmt.Sprintf("unknown 0x%04X", opcode)
		},
		Execute: func(vm *VM, opcode uint16) error {
			return &DecodeError{Opcode: opcode, PC: wrapAddr(vm.pc - InstructionSize)}
		},
	},

	// 00E0	cls	Clear the screen
	OpCls: {
		Name: func(opcode uint16) string {
			return "cls"
		},
		Execute: func(vm *VM, opcode uint16) error {
			vm.gfx.clear()
			vm.display.Clear()
			return nil
		},
	},

	// 00EE	rts	return from subroutine call
	OpRts: {
		Name: func(opcode uint16) string {
			return "rts"
		},
		Execute: func(vm *VM, opcode uint16) error {
			pc, err := vm.stack.pop()
			if err != nil {
				return fmt.Errorf("rts at 0x%04x: %w", wrapAddr(vm.pc-InstructionSize), err)
			}
			vm.pc = pc
			return nil
		},
	},

	// 1xxx	jmp xxx	jump to address xxx
	OpJmp: {
		Name: nameAddr("jmp"),
		Execute: func(vm *VM, opcode uint16) error {
			pc := addr12(opcode)
			vm.spinning = pc == wrapAddr(vm.pc-InstructionSize)
			vm.pc = pc
			return nil
		},
	},

	// 2xxx	jsr xxx	jump to subroutine at address xxx
	OpJsr: {
		Name: nameAddr("jsr"),
		Execute: func(vm *VM, opcode uint16) error {
			if err := vm.stack.push(vm.pc); err != nil {
				return fmt.Errorf("jsr at 0x%04x: %w", wrapAddr(vm.pc-InstructionSize), err)
			}
			vm.pc = addr12(opcode)
			return nil
		},
	},

	// 3rxx	skeq vr,xx	skip if register r = constant
	OpSkeqImm: {
		Name: nameXImm("skeq"),
		Execute: func(vm *VM, opcode uint16) error {
			vm.skipIf(vm.registers[regX(opcode)] == imm8(opcode))
			return nil
		},
	},

	// 4rxx	skne vr,xx	skip if register r <> constant
	OpSkneImm: {
		Name: nameXImm("skne"),
		Execute: func(vm *VM, opcode uint16) error {
			vm.skipIf(vm.registers[regX(opcode)] != imm8(opcode))
			return nil
		},
	},

	// 5ry0	skeq vr,vy	skip if register r = register y
	OpSkeqReg: {
		Name: nameXY("skeq"),
		Execute: func(vm *VM, opcode uint16) error {
			vm.skipIf(vm.registers[regX(opcode)] == vm.registers[regY(opcode)])
			return nil
		},
	},

	// 6rxx	mov vr,xx	move constant to register r
	OpMovImm: {
		Name: nameXImm("mov"),
		Execute: func(vm *VM, opcode uint16) error {
			vm.registers[regX(opcode)] = imm8(opcode)
			return nil
		},
	},

	// 7rxx	add vr,xx	add constant to register r	No carry generated
	OpAddImm: {
		Name: nameXImm("add"),
		Execute: func(vm *VM, opcode uint16) error {
			vm.registers[regX(opcode)] += imm8(opcode)
			return nil
		},
	},

	// 8ry0	mov vr,vy	move register vy into vr
	OpMovReg: {
		Name:    nameXY("mov"),
		Execute: alu(func(_, y uint8) uint8 { return y }),
	},

	// 8ry1	or rx,ry	or register vy into register vx
	OpOr: {
		Name:    nameXY("or"),
		Execute: alu(func(x, y uint8) uint8 { return x | y }),
	},

	// 8ry2	and rx,ry	and register vy into register vx
	OpAnd: {
		Name:    nameXY("and"),
		Execute: alu(func(x, y uint8) uint8 { return x & y }),
	},

	// 8ry3	xor rx,ry	exclusive or register ry into register rx
	OpXor: {
		Name:    nameXY("xor"),
		Execute: alu(func(x, y uint8) uint8 { return x ^ y }),
	},

	// 8ry4	add vr,vy	add register vy to vr,carry in vf
	OpAddReg: {
		Name: nameXY("add"),
		Execute: aluFlag(func(x, y uint8) (uint8, uint8) {
			sum := uint16(x) + uint16(y)
			return uint8(sum), flag(sum > 0xFF)
		}),
	},

	// 8ry5	sub vr,vy	subtract register vy from vr	vf set to 1 if vr > vy
	OpSub: {
		Name: nameXY("sub"),
		Execute: aluFlag(func(x, y uint8) (uint8, uint8) {
			return x - y, flag(x > y)
		}),
	},

	// 8r06	shr vr	shift register vr right, bit 0 goes into register vf
	OpShr: {
		Name: nameX("shr"),
		Execute: aluFlag(func(x, _ uint8) (uint8, uint8) {
			return x >> 1, x & 0x01
		}),
	},

	// 8ry7	rsb vr,vy	subtract register vr from register vy, result in vr	vf set to 1 if vy > vr
	OpRsb: {
		Name: nameXY("rsb"),
		Execute: aluFlag(func(x, y uint8) (uint8, uint8) {
			return y - x, flag(y > x)
		}),
	},

	// 8r0e	shl vr	shift register vr left,bit 7 goes into register vf
	OpShl: {
		Name: nameX("shl"),
		Execute: aluFlag(func(x, _ uint8) (uint8, uint8) {
			return x << 1, x >> 7
		}),
	},

	// 9ry0	skne rx,ry	skip if rx not equal to ry
	OpSkneReg: {
		Name: nameXY("skne"),
		Execute: func(vm *VM, opcode uint16) error {
			vm.skipIf(vm.registers[regX(opcode)] != vm.registers[regY(opcode)])
			return nil
		},
	},

	// axxx	mvi xxx	Load index register with constant xxx
	OpMvi: {
		Name: nameAddr("mvi"),
		Execute: func(vm *VM, opcode uint16) error {
			vm.index = addr12(opcode)
			return nil
		},
	},

	// bxxx	jmi xxx	Jump to address xxx+register v0
	OpJmi: {
		Name: nameAddr("jmi"),
		Execute: func(vm *VM, opcode uint16) error {
			vm.pc = wrapAddr(addr12(opcode) + uint16(vm.registers[0]))
			return nil
		},
	},

	// crxx	rand vr,xxx	vr = random number masked by xxx
	OpRand: {
		Name: func(opcode uint16) string {
			return fmt.Sprintf("rand v%x, 0x%02x", regX(opcode), imm8(opcode))
		},
		Execute: func(vm *VM, opcode uint16) error {
			x := uint8(vm.rng.IntN(256))
			vm.registers[regX(opcode)] = x & imm8(opcode)
			return nil
		},
	},

	// sprite rx,ry,s	Draw sprite at screen location rx,ry height s
	// Sprites stored in memory at location in index register, 8 bits wide.
	// Wraps around the right edge once, clipped at the bottom.
	// If when drawn, clears a pixel, vf is set to 1 otherwise it is zero.
	// All drawing is xor drawing (e.g. it toggles the screen pixels)
	OpSprite: {
		Name: func(opcode uint16) string {
			return fmt.Sprintf("sprite v%x, v%x, %d", regX(opcode), regY(opcode), opcode&0x000F)
		},
		Execute: func(vm *VM, opcode uint16) error {
			xLocation := int(vm.registers[regX(opcode)])
			yLocation := int(vm.registers[regY(opcode)])
			height := opcode & 0x000F

			vm.registers[0x0F] = 0
			for row := uint16(0); row < height; row++ {
				pixel := vm.memory.read(vm.index + row)
				screenY := yLocation + int(row)
				if screenY >= ScreenHeight {
					continue
				}

				const width = 8
				for bit := 0; bit < width; bit++ {
					mask := uint8(0x80 >> bit)
					if pixel&mask == 0 {
						continue
					}

					screenX, ok := spriteColumn(xLocation + bit)
					if !ok {
						continue
					}

					lit, collision := vm.gfx.toggle(screenX, screenY)
					if collision {
						vm.registers[0x0F] = 1
					}
					vm.display.Set(screenX, screenY, lit)
				}
			}

			return nil
		},
	},

	// ek9e	skpr k	skip if key (register rk) pressed	The key is a key number, see the chip-8 documentation
	OpSkpr: {
		Name: nameX("skpr"),
		Execute: func(vm *VM, opcode uint16) error {
			key := Key(vm.registers[regX(opcode)] & 0x0F)
			vm.skipIf(vm.keypad.isPressed(key))
			return nil
		},
	},

	// eka1	skup k	skip if key (register rk) not pressed
	OpSkup: {
		Name: nameX("skup"),
		Execute: func(vm *VM, opcode uint16) error {
			key := Key(vm.registers[regX(opcode)] & 0x0F)
			vm.skipIf(!vm.keypad.isPressed(key))
			return nil
		},
	},

	// fr07	gdelay vr	get delay timer into vr
	OpGdelay: {
		Name: nameX("gdelay"),
		Execute: func(vm *VM, opcode uint16) error {
			vm.registers[regX(opcode)] = vm.timers.delay
			return nil
		},
	},

	// fr0a	key vr	wait for for keypress,put key in register vr
	// Without a pressed key PC is rewound onto this instruction and the VM
	// suspends until Step observes a key.
	OpKey: {
		Name: nameX("key"),
		Execute: func(vm *VM, opcode uint16) error {
			vX := regX(opcode)
			if key, ok := vm.keypad.firstPressed(); ok {
				vm.registers[vX] = uint8(key)
				return nil
			}

			vm.pc = wrapAddr(vm.pc - InstructionSize)
			vm.awaitingKey = true
			vm.keyRegister = uint8(vX)
			slog.Debug("key wait suspended", "reg", fmt.Sprintf("v%x", vX))
			return nil
		},
	},

	// fr15	sdelay vr	set the delay timer to vr
	OpSdelay: {
		Name: nameX("sdelay"),
		Execute: func(vm *VM, opcode uint16) error {
			vm.timers.delay = vm.registers[regX(opcode)]
			return nil
		},
	},

	// fr18	ssound vr	set the sound timer to vr
	OpSsound: {
		Name: nameX("ssound"),
		Execute: func(vm *VM, opcode uint16) error {
			vm.timers.sound = vm.registers[regX(opcode)]
			return nil
		},
	},

	// fr1e	adi vr	add register vr to the index register
	OpAdi: {
		Name: nameX("adi"),
		Execute: func(vm *VM, opcode uint16) error {
			vm.index = wrapAddr(vm.index + uint16(vm.registers[regX(opcode)]))
			return nil
		},
	},

	// fr29	font vr	point I to the sprite for hexadecimal character in vr	Sprite is 5 bytes high
	OpFont: {
		Name: nameX("font"),
		Execute: func(vm *VM, opcode uint16) error {
			vm.index = glyphAddr(vm.registers[regX(opcode)])
			return nil
		},
	},

	// fr33	bcd vr	store the bcd representation of register vr at location I,I+1,I+2	Doesn't change I
	OpBcd: {
		Name: nameX("bcd"),
		Execute: func(vm *VM, opcode uint16) error {
			x := vm.registers[regX(opcode)]

			vm.memory.write(vm.index, x/100)
			vm.memory.write(vm.index+1, (x/10)%10)
			vm.memory.write(vm.index+2, x%10)
			return nil
		},
	},

	// fr55	str v0-vr	store registers v0-vr at location I onwards	Doesn't change I
	OpStr: {
		Name: func(opcode uint16) string {
			return fmt.Sprintf("str v0-v%x", regX(opcode))
		},
		Execute: func(vm *VM, opcode uint16) error {
			n := regX(opcode)

			for i := uint16(0); i <= n; i++ {
				vm.memory.write(vm.index+i, vm.registers[i])
			}
			return nil
		},
	},

	// fr65	ldr v0-vr	load registers v0-vr from location I onwards	Doesn't change I
	OpLdr: {
		Name: func(opcode uint16) string {
			return fmt.Sprintf("ldr v0-v%x", regX(opcode))
		},
		Execute: func(vm *VM, opcode uint16) error {
			n := regX(opcode)

			for i := uint16(0); i <= n; i++ {
				vm.registers[i] = vm.memory.read(vm.index + i)
			}
			return nil
		},
	},
}
