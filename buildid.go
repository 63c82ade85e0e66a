// Copyright 2019 The GoRE.tk Authors. All rights reserved.
// Use of this source code is governed by the license that
// can be found in the LICENSE file.

package exesym

import (
	"bytes"
	"encoding/binary"
	"fmt"
)

const (
	gnuBuildIDTag = uint32(3)
	goBuildIDTag  = uint32(4)
)

var (
	gnuNoteName    = []byte("GNU\x00")
	goNoteNameELF  = []byte("Go\x00\x00")
	goNoteRawStart = []byte("\xff Go build ID: \"")
	goNoteRawEnd   = []byte("\"\n \xff")
)

// parseNoteFromElf returns the descriptor of the first note in data. The
// note must carry the expected name and tag.
func parseNoteFromElf(data []byte, byteOrder binary.ByteOrder, name []byte, wantTag uint32) ([]byte, error) {
	r := bytes.NewReader(data)
	var nameLen uint32
	var descLen uint32
	var tag uint32
	err := binary.Read(r, byteOrder, &nameLen)
	if err != nil {
		return nil, fmt.Errorf("error when reading the note name length: %w", err)
	}
	err = binary.Read(r, byteOrder, &descLen)
	if err != nil {
		return nil, fmt.Errorf("error when reading the note descriptor length: %w", err)
	}
	err = binary.Read(r, byteOrder, &tag)
	if err != nil {
		return nil, fmt.Errorf("error when reading the note tag: %w", err)
	}

	if tag != wantTag {
		return nil, fmt.Errorf("note tag does not match expected value. 0x%x parsed", tag)
	}

	// The name is padded to 4 bytes.
	descStart := uint64(12) + (uint64(nameLen)+3)&^3
	descEnd := descStart + uint64(descLen)
	if descEnd > uint64(len(data)) {
		return nil, ErrOutOfBounds
	}

	noteName := data[12 : 12+uint64(nameLen)]
	if !bytes.Equal(noteName, name) {
		return nil, fmt.Errorf("note name not as expected")
	}
	return data[descStart:descEnd], nil
}

func parseBuildIDFromRaw(data []byte) (string, error) {
	idx := bytes.Index(data, goNoteRawStart)
	if idx < 0 {
		// No Build ID
		return "", nil
	}
	end := bytes.Index(data[idx:], goNoteRawEnd)
	if end < 0 {
		return "", fmt.Errorf("malformed Build ID")
	}
	return string(data[idx+len(goNoteRawStart) : idx+end]), nil
}
