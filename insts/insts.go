// Package insts provides RISC-V instruction definitions, decoding and
// disassembly.
//
// This package implements decoding of RV64 machine code into structured
// instruction representations. It supports:
//   - RV64I base integer instructions
//   - M (multiply/divide) and A (atomic) extensions
//   - Zicsr and the privileged SYSTEM instructions (ecall, ebreak, mret, ...)
//   - F/D loads and stores
//
// Usage:
//
//	decoder := insts.NewDecoder()
//	inst := decoder.Decode(0x00a58593) // addi a1, a1, 10
//	fmt.Println(insts.Disassemble(0x00a58593))
package insts
