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
	"strings"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/ianlancetaylor/demangle"
)

// SymbolTable is a decoded ELF symbol table. It is read-only once returned
// by Decode and can be shared between goroutines.
type SymbolTable struct {
	typ       string
	symbols   []Symbol
	byAddress map[uint64]int
	byName    map[string]int
	warnings  []error
}

// Type returns the name of the symbol section the table was decoded from,
// for example ".symtab" or ".dynsym".
func (t *SymbolTable) Type() string {
	return t.typ
}

// Len returns the number of entries, including the null symbol at index 0.
func (t *SymbolTable) Len() int {
	return len(t.symbols)
}

// Symbol returns the entry at index i.
func (t *SymbolTable) Symbol(i int) (Symbol, bool) {
	if i < 0 || i >= len(t.symbols) {
		return Symbol{}, false
	}
	return t.symbols[i], true
}

// Symbols returns a copy of all entries in on-disk order.
func (t *SymbolTable) Symbols() []Symbol {
	return append([]Symbol(nil), t.symbols...)
}

// LookupByAddress returns the symbol whose value is addr. If several symbols
// share the address, the last one in the table is returned.
func (t *SymbolTable) LookupByAddress(addr uint64) (Symbol, bool) {
	i, ok := t.byAddress[addr]
	if !ok {
		return Symbol{}, false
	}
	return t.symbols[i], true
}

// LookupByName returns the symbol with the exact name. If several symbols
// share the name, the last one in the table is returned.
func (t *SymbolTable) LookupByName(name string) (Symbol, bool) {
	i, ok := t.byName[name]
	if !ok {
		return Symbol{}, false
	}
	return t.symbols[i], true
}

// Warnings returns the non-fatal inconsistencies found while decoding.
func (t *SymbolTable) Warnings() []error {
	return append([]error(nil), t.warnings...)
}

// Render returns one line per symbol, in table order.
func (t *SymbolTable) Render() string {
	var sb strings.Builder
	for _, s := range t.symbols {
		sb.WriteString(s.String())
		sb.WriteByte('\n')
	}
	return sb.String()
}

func (t *SymbolTable) String() string {
	return t.Render()
}

// DecodeOption configures Decode.
type DecodeOption func(*decodeOptions)

type decodeOptions struct {
	logger          log.Logger
	demangle        bool
	demangleOptions []demangle.Option
}

// WithLogger sets the logger that receives warnings found while decoding.
func WithLogger(l log.Logger) DecodeOption {
	return func(o *decodeOptions) {
		o.logger = l
	}
}

// WithDemangle fills in Symbol.DemangledName for every decoded symbol.
func WithDemangle(opts ...demangle.Option) DecodeOption {
	return func(o *decodeOptions) {
		o.demangle = true
		o.demangleOptions = opts
	}
}

func newDecodeOptions(opts []DecodeOption) *decodeOptions {
	o := &decodeOptions{logger: log.NewNopLogger()}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Decode decodes the symbol section named tableType, for example ".symtab"
// or ".dynsym", from buf. The names are resolved with the string section
// whose name is tableType with the first "sym" replaced by "str".
//
// Names are bounded by the string section, not by buf: a name offset at or
// past the end of the string section, or a name whose terminating NUL lies
// outside it, fails with ErrOutOfBounds even when the bytes are in buf.
//
// Either a complete table or an error is returned. Errors are *DecodeError
// values wrapping ErrMissingSection, ErrOutOfBounds, ErrInvalidClass or
// ErrMalformedSize.
func Decode(tableType string, buf []byte, hdr Header, sections []SectionHeader, opts ...DecodeOption) (*SymbolTable, error) {
	o := newDecodeOptions(opts)

	layout, err := layoutFor(hdr.Class)
	if err != nil {
		return nil, decodeErr(tableType, 0, err)
	}

	if !strings.Contains(tableType, "sym") {
		return nil, decodeErr(tableType, 0, ErrMissingSection)
	}
	strtabName := strings.Replace(tableType, "sym", "str", 1)

	var symtab, strtab *SectionHeader
	for i := range sections {
		if sections[i].Name == tableType {
			symtab = &sections[i]
		}
		if sections[i].Name == strtabName {
			strtab = &sections[i]
		}
	}
	if symtab == nil {
		return nil, decodeErr(tableType, 0, ErrMissingSection)
	}
	if strtab == nil {
		return nil, decodeErr(strtabName, 0, ErrMissingSection)
	}

	if symtab.EntrySize == 0 || symtab.EntrySize < layout.entrySize {
		return nil, decodeErr(tableType, symtab.Offset, ErrMalformedSize)
	}

	symData, err := sectionBytes(buf, symtab)
	if err != nil {
		return nil, err
	}
	strData, err := sectionBytes(buf, strtab)
	if err != nil {
		return nil, err
	}

	var warnings []error
	if rem := symtab.Size % symtab.EntrySize; rem != 0 {
		w := decodeErr(tableType, symtab.Offset, ErrMalformedSize)
		warnings = append(warnings, w)
		level.Warn(o.logger).Log(
			"msg", "symbol section size is not a multiple of the entry size",
			"section", tableType,
			"size", symtab.Size,
			"entry_size", symtab.EntrySize,
			"ignored_bytes", rem,
		)
	}

	count := symtab.Size / symtab.EntrySize
	order := hdr.byteOrder()
	symbols := make([]Symbol, 0, count)
	for i := uint64(0); i < count; i++ {
		start := i * symtab.EntrySize
		r := entryReader{
			entry: symData[start : start+symtab.EntrySize],
			base:  symtab.Offset + start,
			order: order,
		}
		sym, err := layout.decode(r)
		if err != nil {
			return nil, decodeErr(tableType, r.base, err)
		}
		name, err := cString(strData, sym.NameOffset)
		if err != nil {
			return nil, decodeErr(strtabName, strtab.Offset+uint64(sym.NameOffset), err)
		}
		sym.Name = name
		if o.demangle {
			sym.DemangledName = demangle.Filter(name, o.demangleOptions...)
		}
		symbols = append(symbols, sym)
	}

	return newSymbolTable(tableType, symbols, warnings), nil
}

// newSymbolTable builds the indices over the finished symbol slice. The
// slice must not be appended to afterwards.
func newSymbolTable(typ string, symbols []Symbol, warnings []error) *SymbolTable {
	t := &SymbolTable{
		typ:       typ,
		symbols:   symbols,
		byAddress: make(map[uint64]int, len(symbols)),
		byName:    make(map[string]int, len(symbols)),
		warnings:  warnings,
	}
	for i, s := range symbols {
		t.byAddress[s.Value] = i
		t.byName[s.Name] = i
	}
	return t
}

// sectionBytes returns the file contents of the section. The section must
// lie entirely inside buf.
func sectionBytes(buf []byte, s *SectionHeader) ([]byte, error) {
	end := s.Offset + s.Size
	if end < s.Offset || end > uint64(len(buf)) {
		return nil, decodeErr(s.Name, s.Offset, ErrOutOfBounds)
	}
	return buf[s.Offset:end], nil
}

// cString returns the NUL-terminated string starting at off. The terminator
// must be inside data.
func cString(data []byte, off uint32) (string, error) {
	if uint64(off) >= uint64(len(data)) {
		return "", ErrOutOfBounds
	}
	end := bytes.IndexByte(data[off:], 0)
	if end < 0 {
		return "", ErrOutOfBounds
	}
	return string(data[off : int(off)+end]), nil
}
