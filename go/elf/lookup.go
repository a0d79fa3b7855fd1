package elf

// SectionIndex returns sec's position in Elf.Sections, or -1 if sec does
// not belong to this file. Patch directives declared as sections need this
// to record which section they were declared on, and the source-THUMB
// discovery pass needs it again (through FuncSymbolInSection) to match a
// STT_FUNC symbol back to that section.
func (e *Elf) SectionIndex(sec *SectionHeader) int {
	for i, s := range e.Sections {
		if s == sec {
			return i
		}
	}
	return -1
}

// FuncSymbolInSection returns the first STT_FUNC symbol whose Section is at
// sectionIdx, or nil if none is defined there. A patch source normally
// defines exactly one function per ncp_ section, so the first match is
// sufficient.
func (e *Elf) FuncSymbolInSection(sectionIdx int) *Symbol {
	for _, sym := range e.Symbols {
		if sym.Type != STT_FUNC || sym.Section == nil {
			continue
		}
		if e.SectionIndex(sym.Section) == sectionIdx {
			return sym
		}
	}
	return nil
}
