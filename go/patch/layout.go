package patch

import (
	"fmt"
	"sort"
	"strings"

	"github.com/Isaac0-dev/NCPatcher/go/build"
)

// RegionMode is how a destination's new-code region is placed.
type RegionMode int

const (
	RegionAppend RegionMode = iota
	RegionReplace
	RegionCreate
)

// DestRegion is one destination's reserved new-code span, the spec's
// "Region" data-model entry.
type DestRegion struct {
	Dest    int
	Mode    RegionMode
	Address uint32 // 0xFFFFFFFF sentinel: use the overlay's current ram_address
	Length  uint32
}

const newcodeRegionSentinel = 0xFFFFFFFF

// OverlayLayoutInfo is the subset of an overlay's current OVT entry the
// layout planner needs to compute its newcode base address.
type OverlayLayoutInfo struct {
	RAMAddress uint32
	RAMSize    uint32
	BSSSize    uint32
}

// memName is the MEMORY/SECTIONS block name for a destination: "arm" for
// the main binary, "ov<N>" for an overlay.
func memName(dest int) string {
	if dest == -1 {
		return "arm"
	}
	return fmt.Sprintf("ov%d", dest)
}

// NewcodeBaseAddress computes the RAM address new code for a destination
// will be linked at, per the four placement rules in the layout planner.
func NewcodeBaseAddress(region DestRegion, overlay OverlayLayoutInfo, arenaLo uint32) uint32 {
	if region.Dest == -1 {
		return arenaLo
	}
	switch region.Mode {
	case RegionAppend:
		return overlay.RAMAddress + overlay.RAMSize + overlay.BSSSize
	case RegionReplace:
		if region.Address == newcodeRegionSentinel {
			return overlay.RAMAddress
		}
		return region.Address
	case RegionCreate:
		return region.Address
	}
	return region.Address
}

// AutogenReservation sums, per destination, the bytes the patch applier
// will need for synthesized bridges: 20 for a Hook, 8 for an ARM->THUMB
// Jump. Every other kind needs no autogen space.
func AutogenReservation(patches []*PatchRecord) map[int]uint32 {
	sizes := map[int]uint32{}
	for _, p := range patches {
		switch {
		case p.Kind == KindHook:
			sizes[p.DestDest] += 20
		case p.Kind == KindJump && !p.DestThumb && p.SrcThumb:
			sizes[p.DestDest] += 8
		}
	}
	return sizes
}

// LinkerScriptInput is everything CreateLinkerScript needs to emit the
// SECTIONS/MEMORY blocks for one target.
type LinkerScriptInput struct {
	SymbolsFile string
	Objects     []string // every input object, in link order
	OutputELF   string

	Regions       []DestRegion
	NewcodeBase   map[int]uint32
	AutogenSize   map[int]uint32
	NcpSetDests   map[int]bool
	OverPatches   []*PatchRecord
	ExternSymbols []string

	// SectionPatches are the jump/call/hook patches declared as a section
	// rather than a label (SectionIdx >= 0). Each needs its own
	// "<dotless> = .; KEEP(*(<dotted>))" assignment inside its destination's
	// .text block, or its compiled body has no output-section rule pointing
	// at it and falls into the trailing /DISCARD/.
	SectionPatches []*PatchRecord
	// RtRepls are runtime-replaceable content blocks; each needs a
	// "<name>_start = .; *(<section>); <name>_end = .;" triple inside its
	// destination's .text block so other code can reference the bracketed
	// range.
	RtRepls []RtReplRange

	// JobsByDest maps a destination to the subset of object file paths
	// whose SourceFileJob belongs to it, used to scope collected sections
	// for overlays (the main ARM destination collects from every object).
	JobsByDest map[int][]string
}

// CreateLinkerScript emits the GNU ld script text described in the layout
// planner's component design: INCLUDE, INPUT, OUTPUT, MEMORY, SECTIONS,
// ncp_set collection, /DISCARD/, EXTERN.
func CreateLinkerScript(in LinkerScriptInput) string {
	var b strings.Builder

	fmt.Fprintf(&b, "INCLUDE \"%s\"\n\n", in.SymbolsFile)

	b.WriteString("INPUT(\n")
	for _, obj := range in.Objects {
		fmt.Fprintf(&b, "\t%s\n", obj)
	}
	b.WriteString(")\n\n")

	fmt.Fprintf(&b, "OUTPUT(\"%s\")\n\n", in.OutputELF)

	b.WriteString("MEMORY {\n")
	b.WriteString("\tbin : ORIGIN = 0, LENGTH = 0x100000\n")
	for _, r := range in.Regions {
		base := in.NewcodeBase[r.Dest]
		length := r.Length
		fmt.Fprintf(&b, "\t%s : ORIGIN = 0x%08X, LENGTH = 0x%X\n", memName(r.Dest), base, length)
	}
	for _, p := range in.OverPatches {
		fmt.Fprintf(&b, "\tover_%08X%s : ORIGIN = 0x%08X, LENGTH = 0x%X\n", p.DestAddr, overlaySuffix(p.DestDest), p.DestAddr, p.SectionSize)
	}
	needsNcpSet := len(in.NcpSetDests) > 0
	if needsNcpSet {
		b.WriteString("\tncp_set : ORIGIN = 0, LENGTH = 0x100000\n")
	}
	b.WriteString("}\n\n")

	b.WriteString("SECTIONS {\n")

	ordered := orderDestinationsOverlaysFirst(in.Regions)
	for _, dest := range ordered {
		mem := memName(dest)
		// The main ARM destination collects from every linked object
		// unconditionally - jobsByDest only ever scopes overlay regions,
		// since an overlay's SECTIONS block must not pull in code destined
		// for other overlays or the main binary.
		var objFilter []string
		if dest != -1 {
			objFilter = in.JobsByDest[dest]
		}
		collectedText := collectedSections(dest, objFilter, []string{"*(.text)", "*(.rodata)", "*(.init_array)", "*(.data)"})

		fmt.Fprintf(&b, "\t.%s.text : ALIGN(4) {\n", mem)
		b.WriteString(sectionPatchAssignments(dest, in.SectionPatches))
		b.WriteString(rtReplAssignments(dest, in.RtRepls))
		b.WriteString(collectedText)
		if sz, ok := in.AutogenSize[dest]; ok && sz > 0 {
			fmt.Fprintf(&b, "\t\tncp_autogendata%s = .;\n\t\t. += 0x%X;\n", destSuffix(dest), sz)
		}
		b.WriteString("\t\t. = ALIGN(4);\n")
		fmt.Fprintf(&b, "\t} > %s AT > bin\n\n", mem)

		fmt.Fprintf(&b, "\t.%s.bss : ALIGN(4) {\n", mem)
		b.WriteString(collectedSections(dest, objFilter, []string{"*(.bss)"}))
		b.WriteString("\t\t. = ALIGN(4);\n")
		fmt.Fprintf(&b, "\t} > %s AT > bin\n\n", mem)
	}

	for _, p := range in.OverPatches {
		fmt.Fprintf(&b, "\t%s : { %s(%s) } > over_%08X%s\n", p.Symbol, objFilterToken(in.JobsByDest[p.DestDest]), sectionLiteral(p.Symbol), p.DestAddr, overlaySuffix(p.DestDest))
	}

	for dest := range in.NcpSetDests {
		fmt.Fprintf(&b, "\t.ncp_set%s : { %s(.ncp_set%s) } > ncp_set\n", destSuffix(dest), objFilterToken(in.JobsByDest[dest]), destSuffix(dest))
	}

	b.WriteString("\n\t/DISCARD/ : { *(.*) }\n")
	b.WriteString("}\n\n")

	if len(in.ExternSymbols) > 0 {
		b.WriteString("EXTERN(\n")
		for _, s := range in.ExternSymbols {
			fmt.Fprintf(&b, "\t%s\n", s)
		}
		b.WriteString(")\n")
	}

	return b.String()
}

// sectionPatchAssignments emits "<dotless> = .; KEEP(*(<dotted>))" for every
// section-declared jump/call/hook patch belonging to dest, converting the
// section into a label patch the post-link resolver can match by its
// dotless symbol name (§4.8).
func sectionPatchAssignments(dest int, patches []*PatchRecord) string {
	var b strings.Builder
	for _, p := range patches {
		if p.SrcDest != dest {
			continue
		}
		fmt.Fprintf(&b, "\t\t%s = .;\n\t\tKEEP(*(%s))\n", strings.TrimPrefix(p.Symbol, "."), p.Symbol)
	}
	return b.String()
}

// rtReplAssignments emits "<name>_start = .; *(<section>); <name>_end = .;"
// for every rtrepl range belonging to dest, bracketing its content with the
// symbol pair other code is meant to reference.
func rtReplAssignments(dest int, ranges []RtReplRange) string {
	var b strings.Builder
	for _, r := range ranges {
		if r.Dest != dest {
			continue
		}
		fmt.Fprintf(&b, "\t\t%s_start = .;\n\t\t*(.ncp_rtrepl_%s)\n\t\t%s_end = .;\n", r.Name, r.Name, r.Name)
	}
	return b.String()
}

func overlaySuffix(dest int) string {
	if dest == -1 {
		return ""
	}
	return fmt.Sprintf("_ov%d", dest)
}

func destSuffix(dest int) string {
	return overlaySuffix(dest)
}

func sectionLiteral(symbol string) string {
	return symbol
}

func objFilterToken(objs []string) string {
	if len(objs) == 0 {
		return "*"
	}
	return strings.Join(objs, " ")
}

func collectedSections(dest int, objs []string, patterns []string) string {
	var b strings.Builder
	prefix := "*"
	if len(objs) > 0 {
		prefix = strings.Join(objs, " ")
	}
	for _, pat := range patterns {
		fmt.Fprintf(&b, "\t\t%s(%s)\n", prefix, strings.TrimPrefix(pat, "*"))
	}
	return b.String()
}

func orderDestinationsOverlaysFirst(regions []DestRegion) []int {
	dests := make([]int, 0, len(regions))
	for _, r := range regions {
		dests = append(dests, r.Dest)
	}
	sort.Slice(dests, func(i, j int) bool {
		a, b := dests[i], dests[j]
		if (a == -1) != (b == -1) {
			return b == -1 // overlays (not -1) sort before the main arm
		}
		return a < b
	})
	return dests
}

// JobsByDestination groups object file paths by the destination their
// SourceFileJob region covers, used to scope overlay linker sections to
// only the objects that belong to them.
func JobsByDestination(jobs []build.SourceFileJob, destOf func(build.SourceFileJob) int) map[int][]string {
	out := map[int][]string{}
	for _, j := range jobs {
		d := destOf(j)
		out[d] = append(out[d], j.ObjectPath)
	}
	return out
}
