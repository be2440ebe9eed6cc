package arena

import "errors"

var (
	// ErrCapacity is returned when an append would grow a contiguous arena past its capacity.
	ErrCapacity = errors.New("arena: capacity exceeded")

	// ErrOutOfRange is returned when a range or slot lies outside the arena.
	ErrOutOfRange = errors.New("arena: out of range")

	// ErrExhausted is returned by Allocate when every slot is live.
	ErrExhausted = errors.New("arena: no free slots")

	// ErrPointerMismatch is returned by Deallocate when the allocation's pointer does not belong to its slot.
	ErrPointerMismatch = errors.New("arena: pointer does not match slot")

	// ErrDoubleFree is returned by Deallocate when the slot is already free.
	ErrDoubleFree = errors.New("arena: slot already free")
)
