package vm

// keypad is the set of currently held keys, one bit per key code.
type keypad uint16

func (k *keypad) reset() {
	*k = 0
}

func (k *keypad) press(key Key) {
	if key < KeyCount {
		*k |= 1 << key
	}
}

func (k *keypad) release(key Key) {
	if key < KeyCount {
		*k &^= 1 << key
	}
}

func (k keypad) isPressed(key Key) bool {
	return key < KeyCount && k&(1<<key) != 0
}

// firstPressed returns the lowest pressed key code.
func (k keypad) firstPressed() (Key, bool) {
	for key := Key0; key <= KeyF; key++ {
		if k.isPressed(key) {
			return key, true
		}
	}

	return 0, false
}
