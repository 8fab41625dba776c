package hal

import (
	"fmt"
	"log/slog"
	"unsafe"

	"github.com/faiface/mainthread"
	"github.com/kapitanov/chip8emu/internal/driver"
	"github.com/kapitanov/chip8emu/internal/vm"
	"github.com/veandco/go-sdl2/sdl"
)

const (
	DefaultScale = 16

	bgColor = uint32(0x000000)
	fgColor = uint32(0xbea700)
)

type Config struct {
	Title string
	Scale int // Window pixels per screen pixel
}

func (c *Config) Validate() error {
	if c.Scale <= 0 {
		return fmt.Errorf("scale must be positive, got %d", c.Scale)
	}
	return nil
}

// HAL is an SDL window. It receives pixel intents from the VM through
// Clear and Set, and uploads them to the screen on Present. All SDL calls are
// made on the main thread.
type HAL struct {
	window          *sdl.Window
	renderer        *sdl.Renderer
	texture         *sdl.Texture
	backBuffer      []uint32
	backBufferPitch int
	dirty           bool
}

// New opens the window. It must be called from inside mainthread.Run.
func New(cfg Config) (*HAL, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	hal := &HAL{
		backBuffer:      make([]uint32, vm.ScreenWidth*vm.ScreenHeight),
		backBufferPitch: vm.ScreenWidth * int(unsafe.Sizeof(uint32(0))),
		dirty:           true,
	}

	if err := mainthread.CallErr(func() error { return hal.init(cfg) }); err != nil {
		hal.Shutdown()
		return nil, err
	}

	return hal, nil
}

func (hal *HAL) init(cfg Config) error {
	if err := sdl.Init(sdl.INIT_VIDEO | sdl.INIT_EVENTS); err != nil {
		return fmt.Errorf("failed to init sdl: %w", err)
	}

	width, height := int32(vm.ScreenWidth*cfg.Scale), int32(vm.ScreenHeight*cfg.Scale)

	window, err := sdl.CreateWindow(cfg.Title, sdl.WINDOWPOS_UNDEFINED, sdl.WINDOWPOS_UNDEFINED, width, height, sdl.WINDOW_SHOWN)
	if err != nil {
		return fmt.Errorf("failed to create sdl window: %w", err)
	}
	hal.window = window
	slog.Debug("hal: create window", "width", width, "height", height)

	renderer, err := sdl.CreateRenderer(window, -1, sdl.RENDERER_ACCELERATED)
	if err != nil {
		return fmt.Errorf("failed to create sdl renderer: %w", err)
	}
	hal.renderer = renderer

	err = renderer.SetLogicalSize(width, height)
	if err != nil {
		return fmt.Errorf("failed to resize sdl renderer: %w", err)
	}
	slog.Debug("hal: create renderer")

	texture, err := renderer.CreateTexture(sdl.PIXELFORMAT_ARGB8888, sdl.TEXTUREACCESS_STREAMING, vm.ScreenWidth, vm.ScreenHeight)
	if err != nil {
		return fmt.Errorf("failed to create sdl texture: %w", err)
	}
	hal.texture = texture
	slog.Debug("hal: create texture")

	return nil
}

func (hal *HAL) Shutdown() {
	mainthread.Call(func() {
		if hal.texture != nil {
			if err := hal.texture.Destroy(); err != nil {
				slog.Error("failed to destroy sdl texture", "err", err)
			}
		}

		if hal.renderer != nil {
			if err := hal.renderer.Destroy(); err != nil {
				slog.Error("failed to destroy sdl renderer", "err", err)
			}
		}

		if hal.window != nil {
			if err := hal.window.Destroy(); err != nil {
				slog.Error("failed to destroy sdl window", "err", err)
			}
		}

		sdl.Quit()
	})
}

// Clear blanks the back buffer.
func (hal *HAL) Clear() {
	for i := range hal.backBuffer {
		hal.backBuffer[i] = bgColor
	}
	hal.dirty = true
}

// Set updates one pixel of the back buffer.
func (hal *HAL) Set(x, y int, lit bool) {
	if x < 0 || x >= vm.ScreenWidth || y < 0 || y >= vm.ScreenHeight {
		return
	}

	color := bgColor
	if lit {
		color = fgColor
	}

	hal.backBuffer[x+y*vm.ScreenWidth] = color
	hal.dirty = true
}

// Present shows the back buffer if it changed since the last call.
func (hal *HAL) Present() error {
	if !hal.dirty {
		return nil
	}
	hal.dirty = false

	return mainthread.CallErr(func() error {
		backBufferPtr := unsafe.Pointer(&hal.backBuffer[0])
		if err := hal.texture.Update(nil, backBufferPtr, hal.backBufferPitch); err != nil {
			return fmt.Errorf("failed to update sdl texture: %w", err)
		}

		if err := hal.renderer.Clear(); err != nil {
			return fmt.Errorf("failed to clear sdl renderer: %w", err)
		}

		if err := hal.renderer.Copy(hal.texture, nil, nil); err != nil {
			return fmt.Errorf("failed to copy sdl texture to renderer: %w", err)
		}

		hal.renderer.Present()
		return nil
	})
}

// ReadInput drains pending SDL events. Closing the window returns
// driver.ErrQuit, Backspace returns driver.ErrReboot.
func (hal *HAL) ReadInput(keyDown func(vm.Key), keyUp func(vm.Key)) error {
	var events []sdl.Event
	mainthread.Call(func() {
		for e := sdl.PollEvent(); e != nil; e = sdl.PollEvent() {
			events = append(events, e)
		}
	})

	for _, e := range events {
		switch e := e.(type) {
		case *sdl.QuitEvent:
			slog.Debug("hal: exit requested")
			return driver.ErrQuit

		case *sdl.KeyboardEvent:
			if e.Repeat != 0 {
				continue
			}

			down := e.GetType() == sdl.KEYDOWN
			if err := processKey(down, e.Keysym.Scancode, keyDown, keyUp); err != nil {
				return err
			}
		}
	}

	return nil
}

func processKey(down bool, scancode sdl.Scancode, keyDown func(vm.Key), keyUp func(vm.Key)) error {
	if down && scancode == sdl.SCANCODE_BACKSPACE {
		return driver.ErrReboot
	}

	key, ok := keyMap(scancode)
	if !ok {
		return nil
	}

	if down {
		keyDown(key)
	} else {
		keyUp(key)
	}

	return nil
}

func keyMap(scancode sdl.Scancode) (vm.Key, bool) {
	// Physical                Logical
	// ================        =================
	// | 1 | 2 | 3 | 4 |       | 1 | 2 | 3 | C |
	// | q | w | e | r |       | 4 | 5 | 6 | D |
	// | a | s | d | f |  <=>  | 7 | 8 | 9 | E |
	// | z | x | c | v |       | A | 0 | B | F |
	// ================        =================

	switch scancode {
	case sdl.SCANCODE_X:
		return vm.Key0, true
	case sdl.SCANCODE_1:
		return vm.Key1, true
	case sdl.SCANCODE_2:
		return vm.Key2, true
	case sdl.SCANCODE_3:
		return vm.Key3, true
	case sdl.SCANCODE_Q:
		return vm.Key4, true
	case sdl.SCANCODE_W:
		return vm.Key5, true
	case sdl.SCANCODE_E:
		return vm.Key6, true
	case sdl.SCANCODE_A:
		return vm.Key7, true
	case sdl.SCANCODE_S:
		return vm.Key8, true
	case sdl.SCANCODE_D:
		return vm.Key9, true
	case sdl.SCANCODE_Z:
		return vm.KeyA, true
	case sdl.SCANCODE_C:
		return vm.KeyB, true
	case sdl.SCANCODE_4:
		return vm.KeyC, true
	case sdl.SCANCODE_R:
		return vm.KeyD, true
	case sdl.SCANCODE_F:
		return vm.KeyE, true
	case sdl.SCANCODE_V:
		return vm.KeyF, true
	default:
		return 0, false
	}
}
