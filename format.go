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
	"bytes"
	"errors"
	"io"
)

// ExecutableFormat is the executable format family of a binary.
type ExecutableFormat int

const (
	// FormatUnknown is returned when no signature matches.
	FormatUnknown ExecutableFormat = iota
	// FormatELF is the Executable and Linkable Format.
	FormatELF
	// FormatPE is the Portable Executable format.
	FormatPE
	// FormatMachO is the Mach-O format.
	FormatMachO
)

func (f ExecutableFormat) String() string {
	switch f {
	case FormatELF:
		return "ELF"
	case FormatPE:
		return "PE"
	case FormatMachO:
		return "Mach-O"
	default:
		return "unknown"
	}
}

var (
	elfMagic       = []byte{0x7f, 0x45, 0x4c, 0x46}
	dosMagic       = []byte{0x4d, 0x5a}
	peMagic        = []byte{0x50, 0x45}
	peMagicOffset  = 0x40
	machoMagic     = []byte{0xfe, 0xed, 0xfa, 0xce}
	identifyWindow = 0x42
)

// Identify returns the format family of the binary in buf. Only the first
// 0x42 bytes are inspected.
//
// Only the 32-bit big-endian Mach-O magic (0xfeedface) is recognized. The
// 64-bit, little-endian and fat variants are reported as FormatUnknown.
func Identify(buf []byte) ExecutableFormat {
	if fileMagicMatch(buf, elfMagic) {
		return FormatELF
	}
	if len(buf) >= identifyWindow &&
		fileMagicMatch(buf, dosMagic) &&
		fileMagicMatch(buf[peMagicOffset:], peMagic) {
		return FormatPE
	}
	if fileMagicMatch(buf, machoMagic) {
		return FormatMachO
	}
	return FormatUnknown
}

// IdentifyReader reads the identification window from r and returns the
// format family. Inputs shorter than the window are identified on the
// bytes available.
func IdentifyReader(r io.ReaderAt) (ExecutableFormat, error) {
	buf := make([]byte, identifyWindow)
	n, err := r.ReadAt(buf, 0)
	if err != nil && !errors.Is(err, io.EOF) {
		return FormatUnknown, err
	}
	return Identify(buf[:n]), nil
}

func fileMagicMatch(buf, magic []byte) bool {
	return bytes.HasPrefix(buf, magic)
}
