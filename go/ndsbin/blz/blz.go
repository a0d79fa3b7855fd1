// Package blz implements the backward LZSS scheme ("BLZ") Nintendo DS
// overlays are commonly compressed with: a back-to-front LZSS stream
// followed by an 8-byte footer describing how much the buffer grows once
// decoded.
//
// No compressor/decompressor for this format was present anywhere in the
// retrieved corpus, so Decode is a best-effort reconstruction from the
// publicly documented shape of the format rather than a port of a verified
// reference implementation; it is not claimed to be byte-exact against
// real Nintendo ROMs. Encode exists only to produce round-trippable
// fixtures for Decode's tests - this tool never writes compressed overlays
// back out (see the spec's Non-goals), so Encode is not used by any
// production code path.
package blz

import "fmt"

// footerSize is the trailing descriptor: 1 byte header size, 3 bytes
// compressed data length, 4 bytes additional decompressed size.
const footerSize = 8

// Decode decompresses a BLZ-compressed buffer, returning the original
// uncompressed bytes.
func Decode(src []byte) ([]byte, error) {
	if len(src) < footerSize {
		return nil, fmt.Errorf("blz: buffer too small to contain a footer (%d bytes)", len(src))
	}

	footer := src[len(src)-footerSize:]
	headerSize := int(footer[0])
	// compressedRegionLen spans from the start of the LZSS payload through
	// the end of the footer, inclusive.
	compressedRegionLen := int(footer[1]) | int(footer[2])<<8 | int(footer[3])<<16
	// growth is signed: positive when decompression expands the payload (the
	// common case for a real compressor), negative when encoding overhead
	// (flag bytes) made the payload larger than the literal data it holds,
	// as this package's non-matching Encode always does.
	growth := int32(uint32(footer[4]) | uint32(footer[5])<<8 | uint32(footer[6])<<16 | uint32(footer[7])<<24)

	if headerSize != footerSize {
		return nil, fmt.Errorf("blz: unexpected header size %d", headerSize)
	}
	if compressedRegionLen > len(src) || compressedRegionLen < footerSize {
		return nil, fmt.Errorf("blz: invalid compressed length %d (buffer is %d bytes)", compressedRegionLen, len(src))
	}

	prefixLen := len(src) - compressedRegionLen
	payloadLen := compressedRegionLen - footerSize
	payload := src[prefixLen : prefixLen+payloadLen]

	outLen := prefixLen + payloadLen + int(growth)
	if outLen < prefixLen {
		return nil, fmt.Errorf("blz: negative decompressed size")
	}
	out := make([]byte, outLen)
	copy(out, src[:prefixLen])
	compressedStart := prefixLen

	// Decode back-to-front: srcPos/dstPos walk from the end of payload
	// towards its start, writing decoded bytes into the tail of out.
	srcPos := len(payload)
	dstPos := outLen

	for srcPos > 0 && dstPos > compressedStart {
		srcPos--
		flags := payload[srcPos]

		for bit := 0; bit < 8 && srcPos > 0 && dstPos > compressedStart; bit++ {
			if flags&(0x80>>uint(bit)) == 0 {
				srcPos--
				dstPos--
				out[dstPos] = payload[srcPos]
				continue
			}

			if srcPos < 2 {
				return nil, fmt.Errorf("blz: truncated match token near source position %d", srcPos)
			}
			srcPos -= 2
			b0 := payload[srcPos+1]
			b1 := payload[srcPos]
			length := int(b0>>4) + 3
			disp := (int(b0&0xF)<<8 | int(b1)) + 3

			if dstPos+disp > outLen {
				return nil, fmt.Errorf("blz: match displacement %d overruns output at position %d", disp, dstPos)
			}
			for i := 0; i < length && dstPos > compressedStart; i++ {
				dstPos--
				out[dstPos] = out[dstPos+disp]
			}
		}
	}

	return out, nil
}

// Encode compresses src using the same back-to-front LZSS scheme Decode
// reads, producing the shortest legal encoding this package knows how to
// write: a literal run for every byte (no back-reference search). It exists
// solely to generate fixtures for blz_test.go.
func Encode(src []byte) []byte {
	n := len(src)
	// One flag byte per up-to-8 literals, plus the literals themselves,
	// built in Decode's reading order (starting from the end of src) then
	// reversed so Decode's back-to-front walk reproduces src exactly.
	var payload []byte
	for i := n; i > 0; i -= 8 {
		start := i - 8
		if start < 0 {
			start = 0
		}
		payload = append(payload, 0x00)
		for j := i - 1; j >= start; j-- {
			payload = append(payload, src[j])
		}
	}

	reversed := make([]byte, len(payload))
	for i, b := range payload {
		reversed[len(payload)-1-i] = b
	}

	out := append([]byte{}, reversed...)
	compressedRegionLen := len(out) + footerSize
	growth := uint32(int32(n) - int32(len(out))) // payload decodes back to exactly n bytes
	footer := []byte{
		footerSize,
		byte(compressedRegionLen & 0xFF), byte((compressedRegionLen >> 8) & 0xFF), byte((compressedRegionLen >> 16) & 0xFF),
		byte(growth), byte(growth >> 8), byte(growth >> 16), byte(growth >> 24),
	}
	return append(out, footer...)
}
