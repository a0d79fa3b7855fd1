package elf

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSectionIndexFindsMatchingSection(t *testing.T) {
	a := &SectionHeader{Name: "a"}
	b := &SectionHeader{Name: "b"}
	e := &Elf{Sections: []*SectionHeader{a, b}}

	assert.Equal(t, 0, e.SectionIndex(a))
	assert.Equal(t, 1, e.SectionIndex(b))
}

func TestSectionIndexReturnsMinusOneForUnknownSection(t *testing.T) {
	e := &Elf{Sections: []*SectionHeader{{Name: "a"}}}
	assert.Equal(t, -1, e.SectionIndex(&SectionHeader{Name: "other"}))
}

func TestFuncSymbolInSectionFindsFirstMatch(t *testing.T) {
	sec := &SectionHeader{Name: ".text.patch"}
	other := &SectionHeader{Name: ".text.other"}
	e := &Elf{Sections: []*SectionHeader{sec, other}}
	e.Symbols = []*Symbol{
		{Name: "notAFunc", Type: STT_OBJECT, Section: sec},
		{Name: "myPatchFn", Type: STT_FUNC, Section: sec, Value: 0x02020001},
		{Name: "otherFn", Type: STT_FUNC, Section: other, Value: 0x02030000},
	}

	sym := e.FuncSymbolInSection(0)
	assert.NotNil(t, sym)
	assert.Equal(t, "myPatchFn", sym.Name)
}

func TestFuncSymbolInSectionReturnsNilWhenAbsent(t *testing.T) {
	sec := &SectionHeader{Name: ".text.empty"}
	e := &Elf{Sections: []*SectionHeader{sec}}
	assert.Nil(t, e.FuncSymbolInSection(0))
}
