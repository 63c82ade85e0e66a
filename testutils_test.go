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
	"debug/pe"
	"encoding/binary"
	"testing"

	"github.com/blacktop/go-macho/types"
	"github.com/stretchr/testify/require"
)

type testSym struct {
	name  string
	value uint64
	size  uint64
	info  uint8
	other uint8
	shndx uint16
}

// stringTable returns an ELF string table and the offset of each name.
// Offset 0 is the empty string.
func stringTable(names ...string) ([]byte, map[string]uint32) {
	buf := []byte{0}
	offsets := map[string]uint32{"": 0}
	for _, n := range names {
		if _, ok := offsets[n]; ok {
			continue
		}
		offsets[n] = uint32(len(buf))
		buf = append(buf, n...)
		buf = append(buf, 0)
	}
	return buf, offsets
}

// symbolSection encodes the symbols with the debug/elf entry structs. A null
// symbol is not added, callers include it when they need one.
func symbolSection(t *testing.T, class ElfClass, order binary.ByteOrder, syms []testSym) (symData, strData []byte) {
	names := make([]string, 0, len(syms))
	for _, s := range syms {
		names = append(names, s.name)
	}
	strData, offsets := stringTable(names...)

	buf := &bytes.Buffer{}
	for _, s := range syms {
		var entry any
		switch class {
		case Class32:
			entry = elf.Sym32{
				Name:  offsets[s.name],
				Value: uint32(s.value),
				Size:  uint32(s.size),
				Info:  s.info,
				Other: s.other,
				Shndx: s.shndx,
			}
		case Class64:
			entry = elf.Sym64{
				Name:  offsets[s.name],
				Info:  s.info,
				Other: s.other,
				Shndx: s.shndx,
				Value: s.value,
				Size:  s.size,
			}
		}
		require.NoError(t, binary.Write(buf, order, entry))
	}
	return buf.Bytes(), strData
}

// symbolBuffer lays out a few bytes of padding, the symbol section and the
// string section and returns the matching section headers.
func symbolBuffer(t *testing.T, class ElfClass, order binary.ByteOrder, tableType string, syms []testSym) ([]byte, []SectionHeader) {
	symData, strData := symbolSection(t, class, order, syms)
	entSize := uint64(elf.Sym64Size)
	if class == Class32 {
		entSize = elf.Sym32Size
	}

	buf := make([]byte, 0x40)
	symOff := uint64(len(buf))
	buf = append(buf, symData...)
	strOff := uint64(len(buf))
	buf = append(buf, strData...)

	strName := ".strtab"
	if tableType == ".dynsym" {
		strName = ".dynstr"
	}
	sections := []SectionHeader{
		{Name: ""},
		{Name: tableType, Offset: symOff, Size: uint64(len(symData)), EntrySize: entSize},
		{Name: strName, Offset: strOff, Size: uint64(len(strData))},
	}
	return buf, sections
}

type testSection struct {
	name    string
	typ     elf.SectionType
	flags   elf.SectionFlag
	addr    uint64
	data    []byte
	entsize uint64
	link    uint32
}

// buildELF assembles a little-endian ELF image with a section header table
// and no program headers. A null section and ".shstrtab" are added.
func buildELF(t *testing.T, class ElfClass, machine elf.Machine, sections []testSection) []byte {
	names := make([]string, 0, len(sections)+1)
	for _, s := range sections {
		names = append(names, s.name)
	}
	names = append(names, ".shstrtab")
	shstrtab, nameOffsets := stringTable(names...)
	sections = append(sections, testSection{name: ".shstrtab", typ: elf.SHT_STRTAB, data: shstrtab})

	ehsize, shentsize := 64, 64
	if class == Class32 {
		ehsize, shentsize = 52, 40
	}

	align := func(n int) int { return (n + 7) &^ 7 }

	body := make([]byte, ehsize)
	offsets := make([]int, len(sections))
	for i, s := range sections {
		for len(body) != align(len(body)) {
			body = append(body, 0)
		}
		offsets[i] = len(body)
		body = append(body, s.data...)
	}
	for len(body) != align(len(body)) {
		body = append(body, 0)
	}
	shoff := len(body)
	shnum := len(sections) + 1
	shstrndx := len(sections)

	var ident [elf.EI_NIDENT]byte
	copy(ident[:], elfMagic)
	ident[elf.EI_CLASS] = byte(class)
	ident[elf.EI_DATA] = byte(elf.ELFDATA2LSB)
	ident[elf.EI_VERSION] = byte(elf.EV_CURRENT)

	hdr := &bytes.Buffer{}
	switch class {
	case Class32:
		require.NoError(t, binary.Write(hdr, binary.LittleEndian, elf.Header32{
			Ident:     ident,
			Type:      uint16(elf.ET_EXEC),
			Machine:   uint16(machine),
			Version:   uint32(elf.EV_CURRENT),
			Shoff:     uint32(shoff),
			Ehsize:    uint16(ehsize),
			Phentsize: 32,
			Shentsize: uint16(shentsize),
			Shnum:     uint16(shnum),
			Shstrndx:  uint16(shstrndx),
		}))
	default:
		require.NoError(t, binary.Write(hdr, binary.LittleEndian, elf.Header64{
			Ident:     ident,
			Type:      uint16(elf.ET_EXEC),
			Machine:   uint16(machine),
			Version:   uint32(elf.EV_CURRENT),
			Shoff:     uint64(shoff),
			Ehsize:    uint16(ehsize),
			Phentsize: 56,
			Shentsize: uint16(shentsize),
			Shnum:     uint16(shnum),
			Shstrndx:  uint16(shstrndx),
		}))
	}
	copy(body, hdr.Bytes())

	shdrs := &bytes.Buffer{}
	writeShdr := func(name uint32, s testSection, off int) {
		switch class {
		case Class32:
			require.NoError(t, binary.Write(shdrs, binary.LittleEndian, elf.Section32{
				Name:      name,
				Type:      uint32(s.typ),
				Flags:     uint32(s.flags),
				Addr:      uint32(s.addr),
				Off:       uint32(off),
				Size:      uint32(len(s.data)),
				Link:      s.link,
				Addralign: 1,
				Entsize:   uint32(s.entsize),
			}))
		default:
			require.NoError(t, binary.Write(shdrs, binary.LittleEndian, elf.Section64{
				Name:      name,
				Type:      uint32(s.typ),
				Flags:     uint64(s.flags),
				Addr:      s.addr,
				Off:       uint64(off),
				Size:      uint64(len(s.data)),
				Link:      s.link,
				Addralign: 1,
				Entsize:   s.entsize,
			}))
		}
	}
	writeShdr(0, testSection{typ: elf.SHT_NULL}, 0)
	for i, s := range sections {
		writeShdr(nameOffsets[s.name], s, offsets[i])
	}
	return append(body, shdrs.Bytes()...)
}

// symtabSections returns a ".symtab"/".strtab" pair (or ".dynsym"/".dynstr")
// ready for buildELF. The string table must be section link+1 in the result
// of buildELF, so callers append these two sections in order.
func symtabSections(t *testing.T, class ElfClass, tableType string, link uint32, syms []testSym) []testSection {
	symData, strData := symbolSection(t, class, binary.LittleEndian, syms)
	entSize := uint64(elf.Sym64Size)
	typ := elf.SHT_SYMTAB
	strName := ".strtab"
	if class == Class32 {
		entSize = elf.Sym32Size
	}
	if tableType == ".dynsym" {
		typ = elf.SHT_DYNSYM
		strName = ".dynstr"
	}
	return []testSection{
		{name: tableType, typ: typ, data: symData, entsize: entSize, link: link},
		{name: strName, typ: elf.SHT_STRTAB, data: strData},
	}
}

// rawBuildID wraps id in the marker the Go linker writes at the start of the
// text section of PE and Mach-O binaries.
func rawBuildID(id string) []byte {
	buf := append([]byte(nil), goNoteRawStart...)
	buf = append(buf, id...)
	return append(buf, goNoteRawEnd...)
}

const (
	testPEImageBase   = 0x140000000
	testPETextRVA     = 0x1000
	testPETextOffset  = 0x200
	testMachOSegAddr  = 0x1000
	testMachOTextAddr = 0x1100
	testMachOTextOff  = 0x100
)

// buildPE assembles a PE image with a single ".text" section holding text.
// I386 images get a PE32 optional header, every other machine PE32+.
func buildPE(t *testing.T, machine uint16, imageBase uint64, text []byte) []byte {
	var opt any
	switch machine {
	case pe.IMAGE_FILE_MACHINE_I386:
		opt = pe.OptionalHeader32{
			Magic:               0x10b,
			ImageBase:           uint32(imageBase),
			SectionAlignment:    0x1000,
			FileAlignment:       0x200,
			NumberOfRvaAndSizes: 16,
		}
	default:
		opt = pe.OptionalHeader64{
			Magic:               0x20b,
			ImageBase:           imageBase,
			SectionAlignment:    0x1000,
			FileAlignment:       0x200,
			NumberOfRvaAndSizes: 16,
		}
	}

	buf := &bytes.Buffer{}
	dos := make([]byte, 0x40)
	copy(dos, dosMagic)
	binary.LittleEndian.PutUint32(dos[0x3c:], 0x40)
	buf.Write(dos)
	buf.Write([]byte{'P', 'E', 0, 0})
	require.NoError(t, binary.Write(buf, binary.LittleEndian, pe.FileHeader{
		Machine:              machine,
		NumberOfSections:     1,
		SizeOfOptionalHeader: uint16(binary.Size(opt)),
		Characteristics:      pe.IMAGE_FILE_EXECUTABLE_IMAGE,
	}))
	require.NoError(t, binary.Write(buf, binary.LittleEndian, opt))

	var name [8]uint8
	copy(name[:], ".text")
	require.NoError(t, binary.Write(buf, binary.LittleEndian, pe.SectionHeader32{
		Name:             name,
		VirtualSize:      uint32(len(text)),
		VirtualAddress:   testPETextRVA,
		SizeOfRawData:    uint32(len(text)),
		PointerToRawData: testPETextOffset,
		Characteristics:  pe.IMAGE_SCN_CNT_CODE | pe.IMAGE_SCN_MEM_EXECUTE | pe.IMAGE_SCN_MEM_READ,
	}))
	require.LessOrEqual(t, buf.Len(), testPETextOffset)

	buf.Write(make([]byte, testPETextOffset-buf.Len()))
	buf.Write(text)
	return buf.Bytes()
}

// buildMachO assembles a big-endian 32-bit i386 Mach-O image with one
// "__TEXT" segment holding a "__text" section.
func buildMachO(t *testing.T, text []byte) []byte {
	const (
		headerSize  = 28
		segmentSize = 56
		sectionSize = 68
	)
	order := binary.BigEndian
	buf := &bytes.Buffer{}

	// The 32-bit header has no reserved word, so it is written field by field.
	for _, v := range []uint32{
		uint32(types.Magic32),
		uint32(types.CPUI386),
		3, // CPU_SUBTYPE_I386_ALL
		uint32(types.MH_EXECUTE),
		1,
		segmentSize + sectionSize,
		0,
	} {
		require.NoError(t, binary.Write(buf, order, v))
	}
	require.Equal(t, headerSize, buf.Len())

	var segName, sectName [16]byte
	copy(segName[:], "__TEXT")
	copy(sectName[:], "__text")
	fileSize := uint32(testMachOTextOff + len(text))
	require.NoError(t, binary.Write(buf, order, types.Segment32{
		LoadCmd: types.LC_SEGMENT,
		Len:     segmentSize + sectionSize,
		Name:    segName,
		Addr:    testMachOSegAddr,
		Memsz:   0x1000,
		Offset:  0,
		Filesz:  fileSize,
		Maxprot: 5,
		Prot:    5,
		Nsect:   1,
	}))
	require.NoError(t, binary.Write(buf, order, types.Section32{
		Name:   sectName,
		Seg:    segName,
		Addr:   testMachOTextAddr,
		Size:   uint32(len(text)),
		Offset: testMachOTextOff,
	}))
	require.LessOrEqual(t, buf.Len(), testMachOTextOff)

	buf.Write(make([]byte, testMachOTextOff-buf.Len()))
	buf.Write(text)
	return buf.Bytes()
}
