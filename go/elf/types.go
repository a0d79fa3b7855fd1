// SPDX-License-Identifier: MIT
//
// Copyright (c) 2024 Adrian "asie" Siekierka

// Package elf reads ELF32/64 object and executable files down to the
// subset this tool's patch pipeline actually consumes: header, section
// header table, section contents, symbol table and the section-name string
// table. Program headers and relocation entries are deliberately not
// modeled - the directive parser and post-link resolver never need them
// (the external linker owns relocation; this reader only ever looks at its
// input objects and its finished output), so there is no reader for either.
//
// In this tool it is the window onto every compiled patch object: the
// directive parser walks Elf.Sections/Symbols looking for the ncp_* naming
// protocol, and the post-link resolver re-opens the linked output the same
// way to read back final addresses.
package elf

type Elf struct {
	ElfHeader
	Sections       []*SectionHeader
	Symbols        []*Symbol
	symtabIdx      int
	symtabShndxIdx int
}

type ElfHeader struct {
	// Identification
	Class         FileClass
	Endian        FileEndian
	HeaderVersion uint8
	ABI           FileABI
	ABIVersion    uint8

	// Header
	Type             FileType
	Machine          MachineType
	Version          uint32
	Entry            uint64
	progHdrOffset    uint64
	secHdrOffset     uint64
	Flags            uint32
	headerSize       uint16
	progHdrEntrySize uint16
	progHdrCount     uint16
	secHdrEntrySize  uint16
	secHdrCount      uint16
	secHdrStrIdx     uint16
}

type SectionHeader struct {
	Name        string
	nameOffset  uint32
	Type        SectionHeaderType
	Flags       SectionHeaderFlag
	Address     uint64
	offset      uint64
	Size        uint32
	Link        uint32
	LinkSection *SectionHeader
	Info        uint32
	AddrAlign   uint32
	EntrySize   uint32
	Data        []byte
}

type Symbol struct {
	Name         string
	nameOffset   uint32
	Type         SymbolType
	Binding      SymbolBinding
	Other        uint8
	Section      *SectionHeader
	SectionIndex uint16
	Value        uint64
	Size         uint64
}
