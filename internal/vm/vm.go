package vm

import (
	"fmt"
	"log/slog"
	"math/rand/v2"
)

const (
	MemorySize    = 4096
	StackSize     = 16
	RegisterCount = 16
	ScreenWidth   = 64
	ScreenHeight  = 32
	KeyCount      = 16

	ProgramStart    = uint16(0x200)
	InstructionSize = 2
	MaxProgramSize  = MemorySize - int(ProgramStart)
)

// Display receives pixel intents produced by the clear and draw instructions.
type Display interface {
	Clear()
	Set(x, y int, lit bool)
}

type nopDisplay struct{}

func (nopDisplay) Clear() {}

func (nopDisplay) Set(_, _ int, _ bool) {}

// VM is a single emulation session. It owns all machine state and is not safe
// for concurrent use: Step, KeyDown and KeyUp must be called from one goroutine.
type VM struct {
	memory    memory
	registers [RegisterCount]uint8 // V registers (V0-VF)
	stack     stack

	pc    uint16 // Program counter
	index uint16 // Index register

	timers timers
	gfx    framebuffer
	keypad keypad

	awaitingKey bool
	keyRegister uint8 // destination register of a pending key wait
	spinning    bool

	display Display
	rng     *rand.Rand
	program []byte
}

type Option func(*VM)

// WithRand replaces the random source used by the rnd instruction.
func WithRand(rng *rand.Rand) Option {
	return func(vm *VM) {
		vm.rng = rng
	}
}

func New(display Display, opts ...Option) *VM {
	if display == nil {
		display = nopDisplay{}
	}

	vm := &VM{
		display: display,
		rng:     rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64())),
	}
	for _, opt := range opts {
		opt(vm)
	}

	vm.initialize()
	return vm
}

type Key uint8

const (
	Key0 = Key(iota)
	Key1
	Key2
	Key3
	Key4
	Key5
	Key6
	Key7
	Key8
	Key9
	KeyA
	KeyB
	KeyC
	KeyD
	KeyE
	KeyF
)

// Load resets the session and copies program into memory at ProgramStart.
func (vm *VM) Load(program []byte) error {
	if len(program) > MaxProgramSize {
		return fmt.Errorf("%w: %d bytes, at most %d fit", ErrROMTooLarge, len(program), MaxProgramSize)
	}

	vm.program = append([]byte(nil), program...)
	vm.initialize()
	return nil
}

// Reset restarts the session with the last loaded program.
func (vm *VM) Reset() {
	vm.initialize()
}

func (vm *VM) initialize() {
	vm.pc = ProgramStart
	vm.index = 0
	vm.stack.reset()
	vm.awaitingKey = false
	vm.keyRegister = 0
	vm.spinning = false

	// Clear the display
	vm.gfx.clear()
	vm.display.Clear()

	slog.Debug("clear keypad", "n", KeyCount)
	vm.keypad.reset()

	slog.Debug("clear registers", "n", len(vm.registers))
	vm.registers = [RegisterCount]uint8{}

	// Clear memory
	slog.Debug("clear memory", "n", MemorySize)
	vm.memory = memory{}

	// Load font set into memory
	slog.Debug("load font", "at", fmt.Sprintf("0x%04x", FontStart), "n", len(chip8Font))
	copy(vm.memory[FontStart:], chip8Font[:])

	// Load program into memory
	if len(vm.program) > 0 {
		slog.Info("load program", "at", fmt.Sprintf("0x%04x", ProgramStart), "n", len(vm.program))
		copy(vm.memory[ProgramStart:], vm.program)
	}

	// Reset timers
	vm.timers = timers{}
}

// KeyDown marks key as pressed. Codes above KeyF are ignored.
func (vm *VM) KeyDown(key Key) {
	vm.keypad.press(key)
}

// KeyUp marks key as released. Codes above KeyF are ignored.
func (vm *VM) KeyUp(key Key) {
	vm.keypad.release(key)
}

// Step executes one instruction and ticks both timers once.
//
// While a key wait is pending Step only re-checks the keypad. An unknown
// opcode advances PC past it and returns a *DecodeError without touching any
// other state.
func (vm *VM) Step() error {
	if vm.awaitingKey {
		vm.resumeKeyWait()
		return nil
	}

	pc := vm.pc
	opcode := vm.fetchOpcode()
	op := Decode(opcode)

	vm.pc = wrapAddr(vm.pc + InstructionSize)

	if op == OpUnknown {
		return &DecodeError{Opcode: opcode, PC: pc}
	}

	vm.timers.tick()

	return vm.executeOpcode(pc, op, opcode)
}

func (vm *VM) resumeKeyWait() {
	key, ok := vm.keypad.firstPressed()
	if !ok {
		return
	}

	slog.Debug("key wait resumed", "key", fmt.Sprintf("%X", key), "reg", fmt.Sprintf("v%x", vm.keyRegister))
	vm.registers[vm.keyRegister] = uint8(key)
	vm.awaitingKey = false
	vm.pc = wrapAddr(vm.pc + InstructionSize)
}

func (vm *VM) fetchOpcode() uint16 {
	hi := vm.memory.read(vm.pc)
	lo := vm.memory.read(vm.pc + 1)

	opcode := uint16(hi)<<8 | uint16(lo) // Op code is two bytes
	return opcode
}

func (vm *VM) PC() uint16 { return vm.pc }

func (vm *VM) I() uint16 { return vm.index }

// V returns register Vr. Only the low nibble of r is used.
func (vm *VM) V(r int) uint8 { return vm.registers[r&0x0F] }

func (vm *VM) DelayTimer() uint8 { return vm.timers.delay }

func (vm *VM) SoundTimer() uint8 { return vm.timers.sound }

// SoundActive reports whether the tone should be playing.
func (vm *VM) SoundActive() bool { return vm.timers.soundActive() }

// AwaitingKey reports whether a key wait instruction is suspended.
func (vm *VM) AwaitingKey() bool { return vm.awaitingKey }

// Spinning reports whether the last executed instruction jumped to itself.
func (vm *VM) Spinning() bool { return vm.spinning }

func (vm *VM) Pixel(x, y int) bool { return vm.gfx.lit(x, y) }

func (vm *VM) IsKeyPressed(key Key) bool { return vm.keypad.isPressed(key) }

func (vm *VM) StackDepth() int { return vm.stack.depth() }

// ReadMemory returns the byte at addr, wrapped into the address space.
func (vm *VM) ReadMemory(addr uint16) uint8 { return vm.memory.read(addr) }
