package emu

import (
	"fmt"
	"io"
)

// SysWrite is the only proxied system call: write(fd, buf, len).
const SysWrite uint64 = 64

// magicMemWords is the size of the syscall argument block in doublewords.
const magicMemWords = 8

// HostResult represents the effect of a tohost write.
type HostResult struct {
	// Exited is true if the program signalled completion.
	Exited bool

	// ExitCode is the value reported with completion. Zero means pass.
	ExitCode int64
}

// Host is the interface for handling writes to the tohost channel.
type Host interface {
	// ToHost handles one value written to tohost.
	ToHost(value uint64) HostResult
}

// HTIFHost implements the host-target interface used by riscv-tests and
// similar bare-metal environments. An odd value ends the run with exit code
// value>>1; an even value is the address of an eight-doubleword syscall
// block whose first word selects the call.
type HTIFHost struct {
	memory   *Memory
	stdout   io.Writer
	stderr   io.Writer
	fromHost uint64
}

// NewHTIFHost creates an HTIF host. fromHost is the address the syscall
// result is written to; zero disables the reply.
func NewHTIFHost(memory *Memory, fromHost uint64, stdout, stderr io.Writer) *HTIFHost {
	return &HTIFHost{
		memory:   memory,
		stdout:   stdout,
		stderr:   stderr,
		fromHost: fromHost,
	}
}

// ToHost handles one tohost write.
func (h *HTIFHost) ToHost(value uint64) HostResult {
	if value&1 == 1 {
		return HostResult{Exited: true, ExitCode: int64(value >> 1)}
	}

	var magic [magicMemWords]uint64
	for i := range magic {
		magic[i] = h.memory.Read64(value + uint64(i)*8)
	}

	switch magic[0] {
	case SysWrite:
		h.reply(h.handleWrite(magic[1], magic[2], magic[3]))
	default:
		_, _ = fmt.Fprintf(h.stderr, "Unknown tohost syscall %x\n", magic[0])
	}

	return HostResult{}
}

func (h *HTIFHost) handleWrite(fd, buf, length uint64) uint64 {
	data := make([]byte, length)
	for i := range data {
		data[i] = h.memory.Read8(buf + uint64(i))
	}

	var w io.Writer
	switch fd {
	case 1:
		w = h.stdout
	case 2:
		w = h.stderr
	default:
		return ^uint64(0)
	}

	n, err := w.Write(data)
	if err != nil {
		return ^uint64(0)
	}
	return uint64(n)
}

func (h *HTIFHost) reply(result uint64) {
	if h.fromHost == 0 {
		return
	}
	h.memory.Write64(h.fromHost, result)
}
