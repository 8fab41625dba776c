package vm

import (
	"errors"
	"fmt"
)

var (
	ErrUnknownOpcode  = errors.New("unknown opcode")
	ErrStackOverflow  = errors.New("call stack overflow")
	ErrStackUnderflow = errors.New("call stack underflow")
	ErrROMTooLarge    = errors.New("rom too large")
)

// DecodeError reports an opcode with no handler.
type DecodeError struct {
	Opcode uint16
	PC     uint16
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("unknown op code 0x%04X at 0x%04x", e.Opcode, e.PC)
}

func (e *DecodeError) Unwrap() error {
	return ErrUnknownOpcode
}
