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
	"errors"
	"fmt"
)

var (
	// ErrNotEnoughBytesRead is returned if read call returned less bytes than what is needed.
	ErrNotEnoughBytesRead = errors.New("not enough bytes read")
	// ErrUnsupportedFile is returned if the file format is not supported by the operation.
	ErrUnsupportedFile = errors.New("unsupported file")
	// ErrUnsupportedArch is returned when disassembling code for an architecture
	// that has no decoder.
	ErrUnsupportedArch = errors.New("unsupported architecture")
	// ErrSectionDoesNotExist is returned when accessing a section that does not exist.
	ErrSectionDoesNotExist = errors.New("section does not exist")
	// ErrSymbolNotFound is returned when a symbol lookup has no match.
	ErrSymbolNotFound = errors.New("symbol not found")

	// ErrMissingSection is returned when the symbol section or its paired string
	// section is not in the section header list.
	ErrMissingSection = errors.New("missing section")
	// ErrOutOfBounds is returned when a computed read falls outside the buffer or
	// outside the section it belongs to.
	ErrOutOfBounds = errors.New("read out of bounds")
	// ErrInvalidClass is returned for an ELF class other than 32-bit or 64-bit.
	ErrInvalidClass = errors.New("invalid ELF class")
	// ErrMalformedSize is returned when a section size does not agree with its
	// entry size. A size that is not a multiple of the entry size is only
	// reported as a warning.
	ErrMalformedSize = errors.New("malformed section size")
)

// DecodeError describes where a symbol table decode failed.
type DecodeError struct {
	// Section is the name of the offending section.
	Section string
	// Offset is the buffer offset that could not be read or the section
	// offset when no specific read was involved.
	Offset uint64
	// Err is one of the sentinel errors above.
	Err error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("section %s at offset 0x%x: %v", e.Section, e.Offset, e.Err)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

func decodeErr(section string, offset uint64, err error) *DecodeError {
	return &DecodeError{Section: section, Offset: offset, Err: err}
}
