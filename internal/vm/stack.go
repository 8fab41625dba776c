package vm

// stack holds return addresses of active subroutine calls.
type stack struct {
	frames [StackSize]uint16
	sp     int
}

func (s *stack) reset() {
	s.frames = [StackSize]uint16{}
	s.sp = 0
}

func (s *stack) push(addr uint16) error {
	if s.sp == len(s.frames) {
		return ErrStackOverflow
	}

	s.frames[s.sp] = addr
	s.sp++
	return nil
}

func (s *stack) pop() (uint16, error) {
	if s.sp == 0 {
		return 0, ErrStackUnderflow
	}

	s.sp--
	return s.frames[s.sp], nil
}

func (s *stack) depth() int {
	return s.sp
}
