package audio

import (
	"encoding/binary"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"sync/atomic"

	"github.com/ebitengine/oto/v3"
)

const (
	DefaultSampleRate = 44100
	DefaultFrequency  = 440.0
	DefaultVolume     = 0.15

	bytesPerSample = 4 // float32, mono
)

type Config struct {
	SampleRate int
	Frequency  float64 // Tone frequency in Hz
	Volume     float32 // Peak amplitude, 0..1
}

func (c *Config) Validate() error {
	if c.SampleRate <= 0 {
		return fmt.Errorf("sample rate must be positive, got %d", c.SampleRate)
	}

	if c.Frequency <= 0 || c.Frequency*2 > float64(c.SampleRate) {
		return fmt.Errorf("frequency %.1f Hz out of range for %d Hz sample rate", c.Frequency, c.SampleRate)
	}

	if c.Volume < 0 || c.Volume > 1 {
		return fmt.Errorf("volume must be within 0..1, got %.2f", c.Volume)
	}

	return nil
}

// Beeper plays a square wave while the sound timer is active. SetActive is
// called from the driver goroutine, Read from oto's playback goroutine.
type Beeper struct {
	ctx    *oto.Context
	player *oto.Player
	active atomic.Bool

	mutex sync.Mutex // guards wave
	wave  squareWave
}

func New(cfg Config) (*Beeper, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	op := &oto.NewContextOptions{
		SampleRate:   cfg.SampleRate,
		ChannelCount: 1,
		Format:       oto.FormatFloat32LE,
	}

	ctx, ready, err := oto.NewContext(op)
	if err != nil {
		return nil, fmt.Errorf("failed to create audio context: %w", err)
	}
	<-ready
	slog.Debug("audio: context ready", "sampleRate", cfg.SampleRate)

	b := &Beeper{
		ctx:  ctx,
		wave: newSquareWave(cfg),
	}
	b.player = ctx.NewPlayer(b)
	b.player.Play()

	return b, nil
}

// SetActive turns the tone on or off.
func (b *Beeper) SetActive(active bool) {
	if b.active.Swap(active) != active {
		slog.Debug("audio: tone", "active", active)
	}
}

// Read fills p with float32 samples: the tone while active, silence otherwise.
func (b *Beeper) Read(p []byte) (int, error) {
	b.mutex.Lock()
	defer b.mutex.Unlock()

	n := len(p) / bytesPerSample * bytesPerSample
	b.wave.fill(p[:n], b.active.Load())
	return n, nil
}

func (b *Beeper) Close() error {
	b.active.Store(false)
	if b.player == nil {
		return nil
	}

	err := b.player.Close()
	b.player = nil
	if err != nil {
		return fmt.Errorf("failed to close audio player: %w", err)
	}
	return nil
}

// squareWave generates a mono float32 square wave one sample at a time.
type squareWave struct {
	period int // samples per cycle
	phase  int
	volume float32
}

func newSquareWave(cfg Config) squareWave {
	return squareWave{
		period: max(2, int(math.Round(float64(cfg.SampleRate)/cfg.Frequency))),
		volume: cfg.Volume,
	}
}

func (w *squareWave) next() float32 {
	v := w.volume
	if w.phase >= w.period/2 {
		v = -v
	}

	w.phase++
	if w.phase == w.period {
		w.phase = 0
	}
	return v
}

// fill writes little-endian float32 samples into p. The phase is reset while
// silent so every beep starts on the same edge.
func (w *squareWave) fill(p []byte, active bool) {
	for i := 0; i+bytesPerSample <= len(p); i += bytesPerSample {
		var v float32
		if active {
			v = w.next()
		} else {
			w.phase = 0
		}
		binary.LittleEndian.PutUint32(p[i:], math.Float32bits(v))
	}
}
