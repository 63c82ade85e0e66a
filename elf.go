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
	"debug/elf"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/ulikunitz/xz"
)

const (
	symtabSection    = ".symtab"
	dynsymSection    = ".dynsym"
	miniDebugSection = ".gnu_debugdata"
)

// miniDebugSizeLimit caps the decompressed size of ".gnu_debugdata".
var miniDebugSizeLimit int64 = 256 << 20

// ELFFile is an ELF binary held in memory. The header and section headers
// are parsed with debug/elf, symbol tables are decoded with Decode.
type ELFFile struct {
	// Header holds the class and byte order.
	Header Header
	// Machine is the target architecture.
	Machine elf.Machine
	// Sections in section header table order.
	Sections []SectionHeader

	file      *elf.File
	data      []byte
	getsymtab func() (*SymbolTable, error)
	getdynsym func() (*SymbolTable, error)
}

var _ fileHandler = (*ELFFile)(nil)

// NewELFFile parses the ELF header and section headers of data.
func NewELFFile(data []byte) (*ELFFile, error) {
	f, err := elf.NewFile(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("error when parsing the ELF file: %w", err)
	}

	var class ElfClass
	switch f.Class {
	case elf.ELFCLASS32:
		class = Class32
	case elf.ELFCLASS64:
		class = Class64
	default:
		return nil, fmt.Errorf("%w: %s", ErrInvalidClass, f.Class)
	}

	sections := make([]SectionHeader, 0, len(f.Sections))
	for _, s := range f.Sections {
		sections = append(sections, SectionHeader{
			Name:      s.Name,
			Offset:    s.Offset,
			Size:      s.Size,
			EntrySize: s.Entsize,
		})
	}

	ret := &ELFFile{
		Header:   Header{Class: class, ByteOrder: f.ByteOrder},
		Machine:  f.Machine,
		Sections: sections,
		file:     f,
		data:     data,
	}
	ret.getsymtab = sync.OnceValues(func() (*SymbolTable, error) { return ret.SymbolTable(symtabSection) })
	ret.getdynsym = sync.OnceValues(func() (*SymbolTable, error) { return ret.SymbolTable(dynsymSection) })
	return ret, nil
}

// SymbolTable decodes the named symbol section, usually ".symtab" or ".dynsym".
func (e *ELFFile) SymbolTable(name string, opts ...DecodeOption) (*SymbolTable, error) {
	return Decode(name, e.data, e.Header, e.Sections, opts...)
}

// MiniDebugSymbolTable decodes the ".symtab" of the xz compressed ELF image
// stored in the ".gnu_debugdata" section.
func (e *ELFFile) MiniDebugSymbolTable(opts ...DecodeOption) (*SymbolTable, error) {
	_, data, err := e.getSectionData(miniDebugSection)
	if err != nil {
		return nil, err
	}
	r, err := xz.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("error when opening %s: %w", miniDebugSection, err)
	}
	var uncompressed bytes.Buffer
	n, err := io.Copy(&uncompressed, io.LimitReader(r, miniDebugSizeLimit+1))
	if err != nil {
		return nil, fmt.Errorf("error when decompressing %s: %w", miniDebugSection, err)
	}
	if n > miniDebugSizeLimit {
		return nil, fmt.Errorf("%s expands past %d bytes: %w", miniDebugSection, miniDebugSizeLimit, ErrOutOfBounds)
	}
	inner, err := NewELFFile(uncompressed.Bytes())
	if err != nil {
		return nil, fmt.Errorf("error when parsing %s: %w", miniDebugSection, err)
	}
	return inner.SymbolTable(symtabSection, opts...)
}

func (e *ELFFile) symbolTable(name string, opts []DecodeOption) (*SymbolTable, error) {
	switch {
	case len(opts) > 0:
		return e.SymbolTable(name, opts...)
	case name == symtabSection:
		return e.getsymtab()
	case name == dynsymSection:
		return e.getdynsym()
	}
	return e.SymbolTable(name)
}

// getSymbol looks the name up in .symtab and falls back to .dynsym for
// stripped binaries.
func (e *ELFFile) getSymbol(name string) (Symbol, error) {
	for _, tab := range []func() (*SymbolTable, error){e.getsymtab, e.getdynsym} {
		t, err := tab()
		if errors.Is(err, ErrMissingSection) {
			continue
		}
		if err != nil {
			return Symbol{}, err
		}
		if sym, ok := t.LookupByName(name); ok {
			return sym, nil
		}
	}
	return Symbol{}, ErrSymbolNotFound
}

func (e *ELFFile) Close() error {
	return e.file.Close()
}

func (e *ELFFile) getCodeSection() (uint64, []byte, error) {
	return e.getSectionData(".text")
}

func (e *ELFFile) getSectionDataFromAddress(address uint64) (uint64, []byte, error) {
	for _, section := range e.file.Sections {
		if section.Offset == 0 || section.Type == elf.SHT_NOBITS {
			// Only exist in memory
			continue
		}

		if section.Addr <= address && address < (section.Addr+section.Size) {
			data, err := section.Data()
			return section.Addr, data, err
		}
	}
	return 0, nil, ErrSectionDoesNotExist
}

func (e *ELFFile) getSectionData(name string) (uint64, []byte, error) {
	section := e.file.Section(name)
	if section == nil {
		return 0, nil, ErrSectionDoesNotExist
	}
	data, err := section.Data()
	return section.Addr, data, err
}

func (e *ELFFile) getFileInfo() *FileInfo {
	var wordSize int
	switch e.Header.Class {
	case Class32:
		wordSize = intSize32
	case Class64:
		wordSize = intSize64
	}

	var arch string
	switch e.Machine {
	case elf.EM_386:
		arch = Arch386
	case elf.EM_MIPS:
		arch = ArchMIPS
	case elf.EM_X86_64:
		arch = ArchAMD64
	case elf.EM_ARM:
		arch = ArchARM
	case elf.EM_AARCH64:
		arch = ArchARM64
	default:
		arch = e.Machine.String()
	}

	var os string
	switch e.file.OSABI {
	case elf.ELFOSABI_NONE, elf.ELFOSABI_LINUX:
		os = "linux"
	case elf.ELFOSABI_FREEBSD:
		os = "freebsd"
	case elf.ELFOSABI_NETBSD:
		os = "netbsd"
	case elf.ELFOSABI_OPENBSD:
		os = "openbsd"
	default:
		os = e.file.OSABI.String()
	}

	return &FileInfo{
		ByteOrder: e.file.ByteOrder,
		OS:        os,
		WordSize:  wordSize,
		Arch:      arch,
	}
}

func (e *ELFFile) getBuildID() (string, error) {
	// The GNU build ID identifies the binary for symbol servers, prefer it
	// over the Go build ID.
	_, data, err := e.getSectionData(".note.gnu.build-id")
	if err == nil {
		desc, err := parseNoteFromElf(data, e.file.ByteOrder, gnuNoteName, gnuBuildIDTag)
		if err != nil {
			return "", fmt.Errorf("error when parsing GNU build ID note: %w", err)
		}
		return hex.EncodeToString(desc), nil
	}
	if !errors.Is(err, ErrSectionDoesNotExist) {
		return "", fmt.Errorf("error when getting GNU build ID note: %w", err)
	}

	_, data, err = e.getSectionData(".note.go.buildid")
	// If neither note section exists, the binary has no build ID.
	if errors.Is(err, ErrSectionDoesNotExist) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("error when getting note section: %w", err)
	}
	desc, err := parseNoteFromElf(data, e.file.ByteOrder, goNoteNameELF, goBuildIDTag)
	if err != nil {
		return "", err
	}
	return string(desc), nil
}
