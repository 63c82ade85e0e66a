// This file is part of exesym.
//
// Copyright (C) 2019-2024 GoRE Authors
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program. If not, see <http://www.gnu.org/licenses/>.

package exesym

import (
	"fmt"

	"golang.org/x/arch/x86/x86asm"
)

// Instruction is a decoded machine instruction.
type Instruction struct {
	// Address of the first byte of the instruction.
	Address uint64
	// Raw bytes of the instruction.
	Raw []byte
	// Op is the instruction mnemonic.
	Op string
	// Text is the instruction in Intel syntax.
	Text string
}

// Disassemble decodes the instructions in the address range covered by the
// symbol. Only x86 code is supported.
func (f *File) Disassemble(sym Symbol) ([]Instruction, error) {
	if f.FileInfo.Arch != Arch386 && f.FileInfo.Arch != ArchAMD64 {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedArch, f.FileInfo.Arch)
	}
	if sym.Size == 0 {
		return nil, nil
	}
	buf, err := f.Bytes(sym.Value, sym.Size)
	if err != nil {
		return nil, fmt.Errorf("failed to get the code of %s: %w", sym.Name, err)
	}
	mode := f.FileInfo.WordSize * 8

	var insts []Instruction
	s := 0
	for s < len(buf) {
		inst, err := x86asm.Decode(buf[s:], mode)
		if err != nil {
			return nil, fmt.Errorf("failed to decode instruction at 0x%x: %w", sym.Value+uint64(s), err)
		}
		pc := sym.Value + uint64(s)
		insts = append(insts, Instruction{
			Address: pc,
			Raw:     buf[s : s+inst.Len],
			Op:      inst.Op.String(),
			Text:    x86asm.IntelSyntax(inst, pc, nil),
		})

		// Update next instruction location.
		s = s + inst.Len
	}
	return insts, nil
}
