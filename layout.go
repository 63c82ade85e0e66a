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
	"encoding/binary"
	"fmt"
)

// ElfClass is the bit width of an ELF file. The values match the
// EI_CLASS byte of the ELF identification.
type ElfClass uint8

const (
	Class32 ElfClass = 1
	Class64 ElfClass = 2
)

func (c ElfClass) String() string {
	switch c {
	case Class32:
		return "ELFCLASS32"
	case Class64:
		return "ELFCLASS64"
	default:
		return fmt.Sprintf("ElfClass(%d)", uint8(c))
	}
}

// Header is the part of the ELF file header the decoder needs.
type Header struct {
	Class ElfClass
	// ByteOrder of the file. Little-endian is used if nil.
	ByteOrder binary.ByteOrder
}

func (h Header) byteOrder() binary.ByteOrder {
	if h.ByteOrder == nil {
		return binary.LittleEndian
	}
	return h.ByteOrder
}

// SectionHeader describes one section of an ELF file.
type SectionHeader struct {
	Name      string
	Offset    uint64
	Size      uint64
	EntrySize uint64
}

// symField is the location of a field inside a symbol entry. Width is in bytes.
type symField struct {
	off   uint64
	width uint64
}

type symLayout struct {
	entrySize uint64
	name      symField
	value     symField
	size      symField
	info      symField
	other     symField
	shndx     symField
}

// Elf32_Sym and Elf64_Sym.
var symLayouts = map[ElfClass]symLayout{
	Class32: {
		entrySize: 16,
		name:      symField{0, 4},
		value:     symField{4, 4},
		size:      symField{8, 4},
		info:      symField{12, 1},
		other:     symField{13, 1},
		shndx:     symField{14, 2},
	},
	Class64: {
		entrySize: 24,
		name:      symField{0, 4},
		value:     symField{8, 8},
		size:      symField{16, 8},
		info:      symField{4, 1},
		other:     symField{5, 1},
		shndx:     symField{6, 2},
	},
}

func layoutFor(class ElfClass) (symLayout, error) {
	l, ok := symLayouts[class]
	if !ok {
		return symLayout{}, fmt.Errorf("%w: %s", ErrInvalidClass, class)
	}
	return l, nil
}

// entryReader reads fields of a single entry. Every read is checked against
// the entry slice.
type entryReader struct {
	entry []byte
	base  uint64
	order binary.ByteOrder
}

func (r entryReader) read(f symField) (uint64, error) {
	if f.off+f.width > uint64(len(r.entry)) {
		return 0, ErrOutOfBounds
	}
	b := r.entry[f.off : f.off+f.width]
	switch f.width {
	case 1:
		return uint64(b[0]), nil
	case 2:
		return uint64(r.order.Uint16(b)), nil
	case 4:
		return uint64(r.order.Uint32(b)), nil
	case 8:
		return r.order.Uint64(b), nil
	}
	return 0, fmt.Errorf("unsupported field width %d", f.width)
}

func (l symLayout) decode(r entryReader) (Symbol, error) {
	var vals [6]uint64
	for i, f := range [...]symField{l.name, l.value, l.size, l.info, l.other, l.shndx} {
		v, err := r.read(f)
		if err != nil {
			return Symbol{}, err
		}
		vals[i] = v
	}
	return Symbol{
		NameOffset:   uint32(vals[0]),
		Value:        vals[1],
		Size:         vals[2],
		Info:         uint8(vals[3]),
		Other:        uint8(vals[4]),
		SectionIndex: uint16(vals[5]),
	}, nil
}
