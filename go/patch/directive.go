package patch

import (
	"strconv"
	"strings"

	"github.com/Isaac0-dev/NCPatcher/go/build"
	"github.com/Isaac0-dev/NCPatcher/go/elf"
	"github.com/Isaac0-dev/NCPatcher/go/ncp"
)

// PatchKind is the 5-variant tagged kind the 14 raw directive names
// (jump/call/hook/over/setjump/.../tsetjump/...) collapse into, with the
// rest expressed as the boolean modifiers on PatchRecord.
type PatchKind int

const (
	KindJump PatchKind = iota
	KindCall
	KindHook
	KindOver
	KindRtRepl
)

func (k PatchKind) String() string {
	switch k {
	case KindJump:
		return "jump"
	case KindCall:
		return "call"
	case KindHook:
		return "hook"
	case KindOver:
		return "over"
	case KindRtRepl:
		return "rtrepl"
	default:
		return "unknown"
	}
}

// PatchRecord is one normalized directive, constructed during directive
// parsing. ResolveSourceRegions settles SrcDest before layout, and the
// post-link resolver fills in SrcAddr.
type PatchRecord struct {
	Symbol      string // dotless form once resolved
	SectionIdx  int    // -1 for label-declared patches
	SectionSize uint32

	Kind     PatchKind
	IsNcpSet bool
	SrcThumb bool
	// DestThumb marks that the existing code already at DestAddr runs in
	// THUMB state, set from the directive's 't' prefix (destAddr|1).
	DestThumb bool

	DestAddr uint32
	DestDest int // -1 main arm, else overlay id

	SrcAddr uint32
	SrcDest int

	// OverData is the replacement bytes for a KindOver patch, captured from
	// the linked ELF section's contents at post-link resolution.
	OverData []byte

	JobIndex int // index of the declaring object in the jobs slice given to MakeTarget
}

// Size is the byte span this patch occupies at DestAddr, used for the
// overlap invariant: sectionSize for Over, 4 for everything else.
func (p *PatchRecord) Size() uint32 {
	if p.Kind == KindOver {
		return p.SectionSize
	}
	return 4
}

// RtReplRange is a runtime-replaceable content block: the linker is asked
// to bracket it with a <name>_start/<name>_end symbol pair. It patches
// nothing on its own.
type RtReplRange struct {
	Name string
	Dest int
	// JobIndex is the object file this range was declared in, used by
	// ResolveRtReplRegions to settle Dest to the region that object
	// actually compiles into (the tentative value here is always -1).
	JobIndex int
}

// ParseResult is everything the directive parser discovered across one
// object file: normalized patches, rtrepl ranges, ncp_set section
// destinations, and the set of symbols that must be retained via EXTERN
// because they were declared as labels.
type ParseResult struct {
	Patches        []*PatchRecord
	RtRepls        []RtReplRange
	NcpSetDests    map[int]bool
	ExternSymbols  []string
}

func newParseResult() *ParseResult {
	return &ParseResult{NcpSetDests: map[int]bool{}}
}

// ParseObject scans e for section- and label-declared ncp_* directives,
// mirroring gatherInfoFromObjects. jobIndex is recorded on every produced
// patch so later stages can trace a patch back to the source file it came
// from for diagnostics.
func ParseObject(e *elf.Elf, jobIndex int) *ParseResult {
	result := newParseResult()

	for _, sec := range e.Sections {
		if !strings.HasPrefix(sec.Name, ".ncp_") {
			continue
		}
		raw := strings.TrimPrefix(sec.Name, ".ncp_")

		if strings.HasPrefix(raw, "set") && !isKindToken(raw) {
			dest, ok := parseOverlaySuffix(raw)
			if !ok {
				ncp.Warn("malformed .ncp_set section name %q, skipping", sec.Name)
				continue
			}
			result.NcpSetDests[dest] = true
			continue
		}

		if strings.HasPrefix(raw, "rtrepl_") {
			name := strings.TrimPrefix(raw, "rtrepl_")
			result.RtRepls = append(result.RtRepls, RtReplRange{Name: name, Dest: -1, JobIndex: jobIndex})
			continue
		}

		rec, err := parseDirectiveBody(raw, jobIndex)
		if err != nil {
			ncp.Warn("%v", err)
			continue
		}
		if rec.Kind == KindOver {
			rec.SectionSize = sec.Size
		}
		rec.SectionIdx = e.SectionIndex(sec)
		rec.Symbol = sec.Name // still dotted; post-link strips it on match
		result.Patches = append(result.Patches, rec)
	}

	for _, sym := range e.Symbols {
		if !strings.HasPrefix(sym.Name, "ncp_") || sym.Name == "ncp_dest" {
			continue
		}
		raw := strings.TrimPrefix(sym.Name, "ncp_")

		if strings.HasPrefix(raw, "over") {
			ncp.Warn("ncp_over declared as a label (%q) is not supported, skipping", sym.Name)
			continue
		}

		rec, err := parseDirectiveBody(raw, jobIndex)
		if err != nil {
			ncp.Warn("%v", err)
			continue
		}
		rec.SectionIdx = -1
		rec.Symbol = sym.Name
		// A label's own compiled address settles SrcThumb independent of
		// whether the directive used a 't' prefix: the function the label
		// names might compile to THUMB regardless of how the jump/call/hook
		// was spelled. discoverSourceThumb only walks section-declared
		// patches (it needs a section index to find the defining symbol),
		// so labels are corrected here instead, straight from the symbol
		// that's already in hand.
		rec.SrcThumb = sym.Value&1 != 0
		result.Patches = append(result.Patches, rec)
		result.ExternSymbols = append(result.ExternSymbols, sym.Name)
	}

	discoverSourceThumb(e, result.Patches)

	return result
}

func isKindToken(raw string) bool {
	for _, k := range []string{"setjump", "setcall", "sethook"} {
		if strings.HasPrefix(raw, k) {
			return true
		}
	}
	return false
}

// parseDirectiveBody parses "<kind>_<hexaddr>[_ov<N>]" (raw, with any
// .ncp_/ncp_ prefix already stripped) into a PatchRecord.
func parseDirectiveBody(raw string, jobIndex int) (*PatchRecord, error) {
	kindToken, rest, ok := splitKindToken(raw)
	if !ok {
		return nil, ncp.DirectiveErrorf("unrecognized patch directive %q", raw)
	}

	destThumb := false
	isSet := false
	token := kindToken
	if strings.HasPrefix(token, "tset") {
		isSet = true
		destThumb = true
		token = strings.TrimPrefix(token, "tset")
	} else if strings.HasPrefix(token, "set") {
		isSet = true
		token = strings.TrimPrefix(token, "set")
	} else if strings.HasPrefix(token, "t") {
		destThumb = true
		token = strings.TrimPrefix(token, "t")
	}

	var kind PatchKind
	switch token {
	case "jump":
		kind = KindJump
	case "call":
		kind = KindCall
	case "hook":
		kind = KindHook
	case "over":
		kind = KindOver
	case "rtrepl":
		kind = KindRtRepl
	default:
		return nil, ncp.DirectiveErrorf("unknown patch kind %q in directive %q", token, raw)
	}

	if !strings.HasPrefix(rest, "_") {
		return nil, ncp.DirectiveErrorf("malformed patch directive %q: missing address", raw)
	}
	rest = rest[1:]

	addrToken := rest
	dest := -1
	if idx := strings.Index(rest, "_ov"); idx >= 0 {
		addrToken = rest[:idx]
		ovToken := rest[idx+3:]
		n, err := strconv.Atoi(ovToken)
		if err != nil {
			return nil, ncp.DirectiveErrorf("invalid overlay number %q in directive %q", ovToken, raw)
		}
		dest = n
	}

	addr, err := strconv.ParseUint(addrToken, 16, 32)
	if err != nil {
		return nil, ncp.DirectiveErrorf("invalid hex address %q in directive %q", addrToken, raw)
	}

	destAddr := uint32(addr)
	srcThumb := false
	if destThumb {
		destAddr |= 1
		srcThumb = true // tentative; refined by discoverSourceThumb or, for labels, by ParseObject
	}

	return &PatchRecord{
		Kind:      kind,
		IsNcpSet:  isSet,
		SrcThumb:  srcThumb,
		DestThumb: destThumb,
		DestAddr:  destAddr,
		DestDest:  dest,
		SrcDest:   dest,
		JobIndex:  jobIndex,
	}, nil
}

// splitKindToken finds the longest directive-name prefix of raw that is a
// known kind token, splitting it from the remainder ("_<hexaddr>...").
func splitKindToken(raw string) (token string, rest string, ok bool) {
	knownPrefixes := []string{
		"tsetjump", "tsetcall", "tsethook",
		"setjump", "setcall", "sethook",
		"tjump", "tcall", "thook",
		"jump", "call", "hook", "over", "rtrepl",
	}
	for _, p := range knownPrefixes {
		if strings.HasPrefix(raw, p) {
			return p, raw[len(p):], true
		}
	}
	return "", raw, false
}

func parseOverlaySuffix(raw string) (int, bool) {
	if idx := strings.Index(raw, "_ov"); idx >= 0 {
		n, err := strconv.Atoi(raw[idx+3:])
		if err != nil {
			return 0, false
		}
		return n, true
	}
	return -1, true
}

// ResolveSourceRegions fixes up every patch's SrcAddr-side destination to
// the region its compiling source file actually belongs to, overwriting
// the tentative value parseDirectiveBody copied from the directive's own
// _ovN suffix. Directives only ever name *where they write* (DestDest);
// where the replacement code they pull SrcAddr from *lives* is determined
// by which region's source directory compiled it. Over patches are exempt:
// an over section's source and destination are the same bytes, so DestDest
// already is correct for both.
func ResolveSourceRegions(patches []*PatchRecord, jobs []build.SourceFileJob) {
	for _, p := range patches {
		if p.Kind == KindOver {
			continue
		}
		if p.JobIndex < 0 || p.JobIndex >= len(jobs) {
			continue
		}
		p.SrcDest = jobs[p.JobIndex].Region
	}
}

// ResolveRtReplRegions settles each RtReplRange's Dest to the region its
// declaring object file actually compiles into, the same correction
// ResolveSourceRegions applies to patch records: a rtrepl section only says
// what it's named, not where it lives, so its destination comes from the
// enclosing job's region.
func ResolveRtReplRegions(ranges []RtReplRange, jobs []build.SourceFileJob) {
	for i := range ranges {
		if ranges[i].JobIndex < 0 || ranges[i].JobIndex >= len(jobs) {
			continue
		}
		ranges[i].Dest = jobs[ranges[i].JobIndex].Region
	}
}

// discoverSourceThumb implements the "Source-THUMB discovery" pass: for
// every section-declared patch, find the STT_FUNC symbol defined in that
// section and copy the low bit of its value into SrcThumb. Label-declared
// patches (SectionIdx < 0) are skipped here because they have no section to
// search a defining symbol within - ParseObject sets their SrcThumb directly
// from the label symbol itself at discovery time instead.
func discoverSourceThumb(e *elf.Elf, patches []*PatchRecord) {
	for _, p := range patches {
		if p.SectionIdx < 0 {
			continue
		}
		if sym := e.FuncSymbolInSection(p.SectionIdx); sym != nil {
			p.SrcThumb = sym.Value&1 != 0
		}
	}
}
