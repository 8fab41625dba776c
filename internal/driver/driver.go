package driver

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/kapitanov/chip8emu/internal/vm"
)

const (
	DefaultSpeed     = 700
	DefaultFrameRate = 60
)

var (
	ErrReboot = errors.New("reboot")
	ErrQuit   = errors.New("quit")
)

// Machine is the part of *vm.VM the driver needs.
type Machine interface {
	Step() error
	Reset()
	KeyDown(key vm.Key)
	KeyUp(key vm.Key)
	SoundActive() bool
	Spinning() bool
}

// Frontend shows the display and delivers input. ReadInput returns ErrQuit or
// ErrReboot when the user asks for it.
type Frontend interface {
	ReadInput(keyDown func(vm.Key), keyUp func(vm.Key)) error
	Present() error
}

// Speaker plays a tone while active.
type Speaker interface {
	SetActive(active bool)
}

type nopSpeaker struct{}

func (nopSpeaker) SetActive(bool) {}

type Config struct {
	Speed       int  // Instructions per second
	FrameRate   int  // Frames per second; timers tick with instructions, not frames
	SkipUnknown bool // Log and skip unknown opcodes instead of stopping
}

func (c *Config) Validate() error {
	if c.Speed <= 0 {
		return fmt.Errorf("speed must be positive, got %d", c.Speed)
	}

	if c.FrameRate <= 0 {
		return fmt.Errorf("frame rate must be positive, got %d", c.FrameRate)
	}

	return nil
}

func (c *Config) stepsPerFrame() int {
	return max(1, c.Speed/c.FrameRate)
}

// Run drives machine until ctx is cancelled, the frontend asks to quit or the
// machine fails. A reboot request resets the machine and keeps running.
func Run(ctx context.Context, machine Machine, frontend Frontend, speaker Speaker, cfg Config) error {
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid driver config: %w", err)
	}

	if speaker == nil {
		speaker = nopSpeaker{}
	}
	defer speaker.SetActive(false)

	ticker := time.NewTicker(time.Second / time.Duration(cfg.FrameRate))
	defer ticker.Stop()

	r := &runner{
		machine:  machine,
		frontend: frontend,
		speaker:  speaker,
		cfg:      cfg,
	}

	slog.Debug("driver: start", "speed", cfg.Speed, "frameRate", cfg.FrameRate, "stepsPerFrame", cfg.stepsPerFrame())

	for {
		err := r.runFrame()
		if errors.Is(err, ErrQuit) {
			slog.Debug("driver: quit")
			return nil
		}

		if errors.Is(err, ErrReboot) {
			slog.Info("driver: reboot")
			machine.Reset()
			r.looped = false
		} else if err != nil {
			return err
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

type runner struct {
	machine  Machine
	frontend Frontend
	speaker  Speaker
	cfg      Config

	looped bool
}

func (r *runner) runFrame() error {
	if err := r.runSteps(); err != nil {
		return err
	}

	if err := r.frontend.Present(); err != nil {
		return fmt.Errorf("present frame: %w", err)
	}

	if err := r.frontend.ReadInput(r.machine.KeyDown, r.machine.KeyUp); err != nil {
		return err
	}

	r.speaker.SetActive(r.machine.SoundActive())
	return nil
}

func (r *runner) runSteps() error {
	n := r.cfg.stepsPerFrame()
	for i := 0; i < n; i++ {
		err := r.machine.Step()
		if err == nil {
			if r.machine.Spinning() && !r.looped {
				slog.Info("driver: program looped")
				r.looped = true
			}
			continue
		}

		var decodeErr *vm.DecodeError
		if r.cfg.SkipUnknown && errors.As(err, &decodeErr) {
			slog.Warn("driver: skip unknown opcode",
				"pc", fmt.Sprintf("0x%04x", decodeErr.PC),
				"opcode", fmt.Sprintf("0x%04x", decodeErr.Opcode),
			)
			continue
		}

		return fmt.Errorf("step: %w", err)
	}

	return nil
}
