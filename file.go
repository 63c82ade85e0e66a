// Copyright 2019 The GoRE.tk Authors. All rights reserved.
// Use of this source code is governed by the license that
// can be found in the LICENSE file.

package exesym

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"os"
)

// Open reads the file at filePath and returns a handler to it.
func Open(filePath string) (*File, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return nil, err
	}
	return Load(data)
}

// Load identifies the format of data and parses its headers. data must not
// be modified while the returned File is in use.
func Load(data []byte) (*File, error) {
	if len(data) < len(elfMagic) {
		return nil, ErrNotEnoughBytesRead
	}
	f := &File{Format: Identify(data)}
	r := bytes.NewReader(data)
	switch f.Format {
	case FormatELF:
		elf, err := NewELFFile(data)
		if err != nil {
			return nil, err
		}
		f.fh = elf
	case FormatPE:
		pe, err := openPE(r)
		if err != nil {
			return nil, err
		}
		f.fh = pe
	case FormatMachO:
		macho, err := openMachO(r)
		if err != nil {
			return nil, err
		}
		f.fh = macho
	default:
		return nil, ErrUnsupportedFile
	}
	f.FileInfo = f.fh.getFileInfo()

	// If the ID has been removed or tampered with, this will fail. If we can't
	// get a build ID, we skip it.
	buildID, err := f.fh.getBuildID()
	if err == nil {
		f.BuildID = buildID
	}

	return f, nil
}

// File is an executable loaded into memory.
type File struct {
	// Format is the executable format family.
	Format ExecutableFormat
	// FileInfo holds information about the file.
	FileInfo *FileInfo
	// BuildID is the GNU or Go build ID, if the binary has one.
	BuildID string
	fh      fileHandler
}

// Close releases the file handler.
func (f *File) Close() error {
	return f.fh.Close()
}

// ELF returns the parsed ELF file, or false if the file is not an ELF.
func (f *File) ELF() (*ELFFile, bool) {
	e, ok := f.fh.(*ELFFile)
	return e, ok
}

// SymbolTable decodes the named ELF symbol section. Tables decoded without
// options are cached. ErrUnsupportedFile is returned for PE and Mach-O files.
func (f *File) SymbolTable(name string, opts ...DecodeOption) (*SymbolTable, error) {
	return f.fh.symbolTable(name, opts)
}

// MiniDebugSymbolTable decodes the symbols stored in ".gnu_debugdata".
// ErrUnsupportedFile is returned for PE and Mach-O files.
func (f *File) MiniDebugSymbolTable(opts ...DecodeOption) (*SymbolTable, error) {
	e, ok := f.ELF()
	if !ok {
		return nil, ErrUnsupportedFile
	}
	return e.MiniDebugSymbolTable(opts...)
}

// Symbol returns the symbol with the given name from ".symtab", or from
// ".dynsym" if the static table does not have it.
func (f *File) Symbol(name string) (Symbol, error) {
	return f.fh.getSymbol(name)
}

// Bytes returns a slice of raw bytes with the length in the file from the address.
func (f *File) Bytes(address uint64, length uint64) ([]byte, error) {
	base, section, err := f.fh.getSectionDataFromAddress(address)
	if err != nil {
		return nil, err
	}

	off := address - base
	if off > uint64(len(section)) || length > uint64(len(section))-off {
		return nil, fmt.Errorf("0x%x bytes at 0x%x: %w", length, address, ErrOutOfBounds)
	}

	return section[off : off+length], nil
}

// Section returns the virtual address and the file contents of the named section.
func (f *File) Section(name string) (uint64, []byte, error) {
	return f.fh.getSectionData(name)
}

// CodeSection returns the virtual address and the contents of the main code
// section: ".text" for ELF and PE, "__text" for Mach-O.
func (f *File) CodeSection() (uint64, []byte, error) {
	return f.fh.getCodeSection()
}

type fileHandler interface {
	io.Closer
	symbolTable(string, []DecodeOption) (*SymbolTable, error)
	getSymbol(string) (Symbol, error)
	getCodeSection() (uint64, []byte, error)
	getSectionDataFromAddress(uint64) (uint64, []byte, error)
	getSectionData(string) (uint64, []byte, error)
	getFileInfo() *FileInfo
	getBuildID() (string, error)
}

// FileInfo holds information about the file.
type FileInfo struct {
	// Arch is the architecture the binary is compiled for.
	Arch string
	// OS is the operating system the binary is compiled for.
	OS string
	// ByteOrder is the byte order.
	ByteOrder binary.ByteOrder
	// WordSize is the natural integer size used by the file.
	WordSize int
}

const (
	ArchAMD64 = "amd64"
	ArchARM   = "arm"
	ArchARM64 = "arm64"
	Arch386   = "i386"
	ArchMIPS  = "mips"
)

const (
	intSize32 = 4
	intSize64 = 8
)
