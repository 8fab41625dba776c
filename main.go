package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"

	"github.com/faiface/mainthread"
	"github.com/kapitanov/chip8emu/internal/audio"
	"github.com/kapitanov/chip8emu/internal/driver"
	"github.com/kapitanov/chip8emu/internal/hal"
	"github.com/kapitanov/chip8emu/internal/vm"
	"github.com/spf13/cobra"
)

func main() {
	mainthread.Run(run)
}

func run() {
	cmd := &cobra.Command{
		Use:           fmt.Sprintf("%s PATH_TO_ROM_FILE", filepath.Base(os.Args[0])),
		Short:         "Run emulator",
		Args:          cobra.ExactArgs(1),
		SilenceErrors: true,
	}

	verbose := cmd.PersistentFlags().BoolP("verbose", "v", false, "enable verbose logging")
	speed := cmd.Flags().IntP("speed", "s", driver.DefaultSpeed, "instructions per second")
	scale := cmd.Flags().Int("scale", hal.DefaultScale, "window pixels per screen pixel")
	mute := cmd.Flags().BoolP("mute", "m", false, "disable sound")
	skipUnknown := cmd.Flags().Bool("skip-unknown", false, "skip unknown opcodes instead of stopping")

	cmd.PersistentPreRun = func(_ *cobra.Command, _ []string) {
		loggerOpts := &slog.HandlerOptions{
			Level: slog.LevelInfo,
		}
		if *verbose {
			loggerOpts.Level = slog.LevelDebug
		}

		slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, loggerOpts)))
	}

	cmd.RunE = func(_ *cobra.Command, args []string) error {
		bs, err := readROM(args[0])
		if err != nil {
			return err
		}

		driverCfg := driver.Config{
			Speed:       *speed,
			FrameRate:   driver.DefaultFrameRate,
			SkipUnknown: *skipUnknown,
		}
		if err = driverCfg.Validate(); err != nil {
			return err
		}

		h, err := hal.New(hal.Config{Title: "CHIP-8", Scale: *scale})
		if err != nil {
			return fmt.Errorf("unable to initialize hal: %w", err)
		}
		defer h.Shutdown()

		var speaker driver.Speaker
		if !*mute {
			beeper, err := audio.New(audio.Config{
				SampleRate: audio.DefaultSampleRate,
				Frequency:  audio.DefaultFrequency,
				Volume:     audio.DefaultVolume,
			})
			if err != nil {
				slog.Warn("sound disabled", "err", err)
			} else {
				defer func() {
					if err := beeper.Close(); err != nil {
						slog.Error("failed to close beeper", "err", err)
					}
				}()
				speaker = beeper
			}
		}

		machine := vm.New(h)
		if err = machine.Load(bs); err != nil {
			return fmt.Errorf("unable to load %q: %w", args[0], err)
		}

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
		defer stop()

		err = driver.Run(ctx, machine, h, speaker, driverCfg)
		if err != nil && ctx.Err() == nil {
			return err
		}
		return nil
	}

	cmd.AddCommand(newDisasmCommand())

	cmd.SetArgs(os.Args[1:])
	if err := cmd.Execute(); err != nil {
		slog.Error("fatal error", "err", err)
		os.Exit(1)
	}
}

func newDisasmCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "disasm PATH_TO_ROM_FILE",
		Short: "Print the instructions of a program",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			bs, err := readROM(args[0])
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			for i := 0; i+1 < len(bs); i += vm.InstructionSize {
				opcode := uint16(bs[i])<<8 | uint16(bs[i+1])
				addr := int(vm.ProgramStart) + i
				if _, err := fmt.Fprintf(out, "0x%04x  %04X  %s\n", addr, opcode, vm.Disassemble(opcode)); err != nil {
					return err
				}
			}
			return nil
		},
	}
}

func readROM(path string) ([]byte, error) {
	bs, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("unable to load file %q: %w", path, err)
	}

	if len(bs) > vm.MaxProgramSize {
		return nil, fmt.Errorf("unable to load file %q: %w", path, vm.ErrROMTooLarge)
	}

	return bs, nil
}
