// SPDX-License-Identifier: MIT
//
// Copyright (c) 2024 Adrian "asie" Siekierka

package elf

import (
	"encoding/binary"
	"io"
)

func (e *Elf) readString(r io.ReadSeeker, idx int, offset uint64) (error, string) {
	if _, err := r.Seek(int64(e.Sections[idx].offset+offset), io.SeekStart); err != nil {
		return err, ""
	}
	return readString(r)
}

func (e *Elf) GetByteOrder() binary.ByteOrder {
	if e.Endian == ELFDATA2MSB {
		return binary.BigEndian
	} else {
		return binary.LittleEndian
	}
}

func ReadELF(r io.ReadSeeker) (error, *Elf) {
	e := &Elf{}

	// Read main header
	if err := e.readElfHeader(r); err != nil {
		return err, nil
	}

	// Program headers describe load segments, which the patch pipeline
	// never consults (directives live in section/symbol names, not
	// segments), so they are read by the header struct but never walked.

	// Read section headers
	r.Seek(int64(e.secHdrOffset), io.SeekStart)
	for i := 0; i < int(e.secHdrCount); i++ {
		err, hdr := e.readSectionHeader(r)
		if err != nil {
			return err, nil
		}
		e.Sections = append(e.Sections, hdr)
		if hdr.Type == SHT_SYMTAB {
			e.symtabIdx = i
		} else if hdr.Type == SHT_SYMTAB_SHNDX {
			e.symtabShndxIdx = i
		}
	}

	for i := 0; i < int(e.secHdrCount); i++ {
		hdr := e.Sections[i]
		if hdr.Link < SHN_LORESERVE {
			hdr.LinkSection = e.Sections[hdr.Link]
		}
	}

	// Read shstrtab
	if e.secHdrStrIdx != SHN_UNDEF {
		for i := 0; i < int(e.secHdrCount); i++ {
			hdr := e.Sections[i]
			err, s := e.readString(r, int(e.secHdrStrIdx), uint64(hdr.nameOffset))
			if err != nil {
				return err, nil
			}
			hdr.Name = s
		}
	}

	// Read symbols
	if e.symtabIdx > 0 {
		symtab := e.Sections[e.symtabIdx]
		symbolCount := symtab.Size / symtab.EntrySize
		r.Seek(int64(symtab.offset), io.SeekStart)
		for i := 0; i < int(symbolCount); i++ {
			err, sym := e.readSymbol(r, symtab)
			if err != nil {
				return err, nil
			}
			e.Symbols = append(e.Symbols, sym)
		}
	}

	// SHT_REL/SHT_RELA sections carry relocation entries the external
	// linker resolves; this reader has no consumer for them, so they are
	// dropped below alongside the other bookkeeping sections instead of
	// being parsed.

	// Drop already parsed sections. Do this last!
	sections := make([]*SectionHeader, 0)
	for _, sh := range e.Sections {
		if sh.Type == SHT_REL || sh.Type == SHT_RELA {
			continue
		}

		if sh.Type == SHT_SYMTAB {
			continue
		}

		if sh.Type == SHT_STRTAB || sh.Type == SHT_SYMTAB_SHNDX {
			continue
		}

		sections = append(sections, sh)
	}
	e.Sections = sections

	return nil, e
}
