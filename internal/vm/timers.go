package vm

type timers struct {
	delay uint8 // Delay timer
	sound uint8 // Sound timer
}

// tick counts both timers down by one, stopping at zero.
func (t *timers) tick() {
	if t.delay > 0 {
		t.delay--
	}

	if t.sound > 0 {
		t.sound--
	}
}

func (t *timers) soundActive() bool {
	return t.sound > 0
}
