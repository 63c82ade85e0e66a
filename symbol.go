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

	"github.com/ianlancetaylor/demangle"
)

// Symbol is one decoded symbol table entry. Symbols are handed out by value,
// changing a copy does not affect the table it came from.
type Symbol struct {
	// NameOffset is the index of the name in the string table.
	NameOffset uint32
	// Name is the string found at NameOffset.
	Name string
	// DemangledName is only set when the table was decoded with WithDemangle.
	DemangledName string
	// Value is the address or other value of the symbol.
	Value uint64
	// Size is the size of the symbol.
	Size uint64
	// Info holds the raw binding and type.
	Info uint8
	// Other holds the raw visibility.
	Other uint8
	// SectionIndex is the index of the section the symbol is defined in.
	SectionIndex uint16
}

// Demangled returns the demangled name, or the raw name if it is not a
// mangled C++ or Rust symbol.
func (s Symbol) Demangled(opts ...demangle.Option) string {
	if s.DemangledName != "" && len(opts) == 0 {
		return s.DemangledName
	}
	return demangle.Filter(s.Name, opts...)
}

// String returns every field of the symbol on one line.
func (s Symbol) String() string {
	return fmt.Sprintf("name=%q name_offset=%d value=0x%x size=%d info=0x%02x other=0x%02x shndx=%d",
		s.Name, s.NameOffset, s.Value, s.Size, s.Info, s.Other, s.SectionIndex)
}
