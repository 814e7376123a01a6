package extract

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"strings"
	"unicode/utf16"

	"github.com/lu4p/cat"
	"github.com/richardlehane/mscfb"
	"golang.org/x/text/encoding/charmap"
)

const (
	wordIdent         = 0xA5EC
	fibFlagsOffset    = 0x0A
	fibFlagEncrypted  = 0x0100
	fibFlagWhichTable = 0x0200
	fibCswOffset      = 0x20
	fibLwCcpText      = 3
	fibFcLcbClx       = 33
	clxPrc            = 0x01
	clxPcdt           = 0x02
	pcdSize           = 8
	fcCompressed      = 0x40000000
)

var (
	oleMagic = []byte{0xD0, 0xCF, 0x11, 0xE0, 0xA1, 0xB1, 0x1A, 0xE1}
	zipMagic = []byte("PK\x03\x04")
	rtfMagic = []byte(`{\rtf`)
)

var rtfSkippedGroups = map[string]bool{
	"fonttbl":           true,
	"colortbl":          true,
	"stylesheet":        true,
	"info":              true,
	"listtable":         true,
	"listoverridetable": true,
	"rsidtbl":           true,
}

// extractDOC reads legacy Word binary documents. Files that are really RTF or
// OOXML behind a .doc name are routed to the matching reader.
// Malformed compound files can trip index checks; those are reported as errors.
func extractDOC(content []byte) (text string, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("parse DOC: %v", r)
		}
	}()
	switch {
	case bytes.HasPrefix(content, rtfMagic):
		text, err := cat.FromBytes(stripRTFGroups(content))
		if err != nil {
			return "", fmt.Errorf("parse RTF: %w", err)
		}
		return text, nil
	case bytes.HasPrefix(content, zipMagic):
		return extractDOCX(content)
	case !bytes.HasPrefix(content, oleMagic):
		return "", errors.New("not a Word document")
	}

	r, err := mscfb.New(bytes.NewReader(content))
	if err != nil {
		return "", fmt.Errorf("open compound file: %w", err)
	}
	streams := make(map[string][]byte, 3)
	for entry, err := r.Next(); err != io.EOF; entry, err = r.Next() {
		if err != nil {
			return "", fmt.Errorf("read compound file: %w", err)
		}
		switch entry.Name {
		case "WordDocument", "0Table", "1Table":
			data, err := io.ReadAll(entry)
			if err != nil {
				return "", fmt.Errorf("read %s stream: %w", entry.Name, err)
			}
			streams[entry.Name] = data
		}
	}
	wordDoc, ok := streams["WordDocument"]
	if !ok {
		return "", errors.New("WordDocument stream not found")
	}
	return wordDocumentText(wordDoc, streams["0Table"], streams["1Table"])
}

// wordDocumentText walks the piece table referenced by the FIB and returns the main story.
func wordDocumentText(wordDoc, table0, table1 []byte) (string, error) {
	if len(wordDoc) < fibCswOffset+2 || binary.LittleEndian.Uint16(wordDoc) != wordIdent {
		return "", errors.New("invalid FIB")
	}
	flags := binary.LittleEndian.Uint16(wordDoc[fibFlagsOffset:])
	if flags&fibFlagEncrypted != 0 {
		return "", errors.New("document is encrypted")
	}
	table := table0
	if flags&fibFlagWhichTable != 0 {
		table = table1
	}
	if table == nil {
		return "", errors.New("table stream not found")
	}

	pos := fibCswOffset
	csw, err := u16(wordDoc, pos)
	if err != nil {
		return "", err
	}
	pos += 2 + int(csw)*2
	cslw, err := u16(wordDoc, pos)
	if err != nil {
		return "", err
	}
	lwStart := pos + 2
	if int(cslw) <= fibLwCcpText {
		return "", errors.New("FIB has no ccpText")
	}
	ccpText, err := u32(wordDoc, lwStart+fibLwCcpText*4)
	if err != nil {
		return "", err
	}
	pos = lwStart + int(cslw)*4
	cbRgFcLcb, err := u16(wordDoc, pos)
	if err != nil {
		return "", err
	}
	if int(cbRgFcLcb) <= fibFcLcbClx {
		return "", errors.New("FIB has no Clx")
	}
	clxEntry := pos + 2 + fibFcLcbClx*8
	fcClx, err := u32(wordDoc, clxEntry)
	if err != nil {
		return "", err
	}
	lcbClx, err := u32(wordDoc, clxEntry+4)
	if err != nil {
		return "", err
	}
	if uint64(fcClx)+uint64(lcbClx) > uint64(len(table)) {
		return "", errors.New("Clx out of range")
	}
	plcPcd, err := findPlcPcd(table[fcClx : fcClx+lcbClx])
	if err != nil {
		return "", err
	}

	n := (len(plcPcd) - 4) / (4 + pcdSize)
	if n <= 0 {
		return "", nil
	}
	var b strings.Builder
	remaining := int(ccpText)
	for i := 0; i < n && remaining > 0; i++ {
		cpStart := binary.LittleEndian.Uint32(plcPcd[i*4:])
		cpEnd := binary.LittleEndian.Uint32(plcPcd[(i+1)*4:])
		if cpEnd <= cpStart {
			continue
		}
		chars := int(cpEnd - cpStart)
		if chars > remaining {
			chars = remaining
		}
		remaining -= chars
		pcd := plcPcd[(n+1)*4+i*pcdSize:]
		fc := binary.LittleEndian.Uint32(pcd[2:])
		piece, err := readPiece(wordDoc, fc, chars)
		if err != nil {
			return "", fmt.Errorf("piece %d: %w", i, err)
		}
		b.WriteString(piece)
	}
	return cleanWordText(b.String()), nil
}

// findPlcPcd skips Prc entries in the Clx and returns the PlcPcd payload.
func findPlcPcd(clx []byte) ([]byte, error) {
	for i := 0; i < len(clx); {
		switch clx[i] {
		case clxPrc:
			cb, err := u16(clx, i+1)
			if err != nil {
				return nil, err
			}
			size := int(int16(cb))
			if size < 0 {
				return nil, fmt.Errorf("negative Prc size %d", size)
			}
			i += 3 + size
		case clxPcdt:
			lcb, err := u32(clx, i+1)
			if err != nil {
				return nil, err
			}
			start := i + 5
			if start+int(lcb) > len(clx) {
				return nil, errors.New("PlcPcd out of range")
			}
			return clx[start : start+int(lcb)], nil
		default:
			return nil, fmt.Errorf("unexpected Clx entry 0x%02x", clx[i])
		}
	}
	return nil, errors.New("Pcdt not found")
}

// stripRTFGroups drops header groups such as the font and color tables, whose
// names would otherwise end up in the extracted text.
func stripRTFGroups(content []byte) []byte {
	out := make([]byte, 0, len(content))
	for i := 0; i < len(content); {
		switch {
		case content[i] == '\\' && i+1 < len(content):
			out = append(out, content[i], content[i+1])
			i += 2
		case content[i] == '{' && rtfSkippedGroups[rtfControlWord(content[i+1:])]:
			i = skipRTFGroup(content, i)
		default:
			out = append(out, content[i])
			i++
		}
	}
	return out
}

// rtfControlWord returns the control word at the start of b, or "".
func rtfControlWord(b []byte) string {
	if len(b) < 2 || b[0] != '\\' {
		return ""
	}
	end := 1
	for end < len(b) && (b[end] >= 'a' && b[end] <= 'z' || b[end] >= 'A' && b[end] <= 'Z') {
		end++
	}
	return string(b[1:end])
}

// skipRTFGroup returns the index just past the group opened at start.
func skipRTFGroup(content []byte, start int) int {
	depth := 0
	for i := start; i < len(content); i++ {
		switch content[i] {
		case '\\':
			i++
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return i + 1
			}
		}
	}
	return len(content)
}

func readPiece(wordDoc []byte, fc uint32, chars int) (string, error) {
	if fc&fcCompressed != 0 {
		offset := int((fc &^ fcCompressed) / 2)
		if offset+chars > len(wordDoc) {
			return "", errors.New("compressed piece out of range")
		}
		decoded, err := charmap.Windows1252.NewDecoder().Bytes(wordDoc[offset : offset+chars])
		if err != nil {
			return "", err
		}
		return string(decoded), nil
	}
	offset := int(fc)
	if offset+chars*2 > len(wordDoc) {
		return "", errors.New("piece out of range")
	}
	units := make([]uint16, chars)
	for i := range units {
		units[i] = binary.LittleEndian.Uint16(wordDoc[offset+i*2:])
	}
	return string(utf16.Decode(units)), nil
}

// cleanWordText maps Word control characters to plain text. Field codes are
// dropped and field results kept.
func cleanWordText(s string) string {
	var b strings.Builder
	depth := 0
	inCode := make([]bool, 0, 4)
	for _, r := range s {
		switch r {
		case 0x13:
			depth++
			inCode = append(inCode, true)
			continue
		case 0x14:
			if depth > 0 {
				inCode[depth-1] = false
			}
			continue
		case 0x15:
			if depth > 0 {
				depth--
				inCode = inCode[:depth]
			}
			continue
		}
		if depth > 0 && inCode[depth-1] {
			continue
		}
		switch r {
		case '\r', 0x0B, 0x0C:
			b.WriteByte('\n')
		case 0x07:
			b.WriteByte('\t')
		case 0x01, 0x08:
		default:
			b.WriteRune(r)
		}
	}
	return b.String()
}

func u16(b []byte, off int) (uint16, error) {
	if off < 0 || off+2 > len(b) {
		return 0, errors.New("FIB truncated")
	}
	return binary.LittleEndian.Uint16(b[off:]), nil
}

func u32(b []byte, off int) (uint32, error) {
	if off < 0 || off+4 > len(b) {
		return 0, errors.New("FIB truncated")
	}
	return binary.LittleEndian.Uint32(b[off:]), nil
}
