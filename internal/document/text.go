package document

import (
	"strconv"
	"strings"
	"unicode"
	"unicode/utf16"
)

// kernGap is the TJ displacement (thousandths of text space) treated as a
// word break.
const kernGap = -250

// scanContentStream pulls the shown strings out of a page content stream.
// It understands Tj, TJ, ' and " for text and Td, TD, T* and ET as
// separators. Font encodings are not resolved; bytes map to Latin-1 unless the
// string carries a UTF-16BE byte order mark.
func scanContentStream(data []byte) string {
	var (
		sb       strings.Builder
		operands []string
		depth    int
	)
	sep := func(r byte) {
		if sb.Len() > 0 {
			sb.WriteByte(r)
		}
	}

	for i := 0; i < len(data); {
		c := data[i]
		switch {
		case c == '(':
			s, n := readLiteral(data[i:])
			operands = append(operands, s)
			i += n
		case c == '<' && i+1 < len(data) && data[i+1] == '<':
			i += 2
		case c == '<':
			s, n := readHex(data[i:])
			operands = append(operands, s)
			i += n
		case c == '>' && i+1 < len(data) && data[i+1] == '>':
			i += 2
		case c == '[':
			depth++
			i++
		case c == ']':
			if depth > 0 {
				depth--
			}
			i++
		case c == '%':
			for i < len(data) && data[i] != '\n' && data[i] != '\r' {
				i++
			}
		case c == '/':
			i++
			for i < len(data) && !isDelimiter(data[i]) && !isWhite(data[i]) {
				i++
			}
		case isWhite(c) || isDelimiter(c):
			i++
		default:
			start := i
			for i < len(data) && !isDelimiter(data[i]) && !isWhite(data[i]) {
				i++
				if c == '\'' || c == '"' {
					break
				}
			}
			tok := string(data[start:i])

			if f, err := strconv.ParseFloat(tok, 64); err == nil {
				if depth > 0 && f <= kernGap {
					operands = append(operands, " ")
				}
				continue
			}

			switch tok {
			case "Tj", "TJ":
				sb.WriteString(strings.Join(operands, ""))
			case "'", "\"":
				sep('\n')
				sb.WriteString(strings.Join(operands, ""))
			case "Td", "TD", "ET":
				sep(' ')
			case "T*":
				sep('\n')
			}
			operands = operands[:0]
		}
	}
	return normalizeText(sb.String())
}

func isWhite(c byte) bool {
	switch c {
	case ' ', '\t', '\n', '\r', '\f', 0:
		return true
	}
	return false
}

func isDelimiter(c byte) bool {
	switch c {
	case '(', ')', '<', '>', '[', ']', '{', '}', '/', '%':
		return true
	}
	return false
}

// readLiteral decodes a (...) string starting at data[0] and returns it with
// the number of bytes consumed.
func readLiteral(data []byte) (string, int) {
	var out []byte
	nest := 0
	i := 1
	for ; i < len(data); i++ {
		c := data[i]
		switch c {
		case '(':
			nest++
			out = append(out, c)
		case ')':
			if nest == 0 {
				return decodeBytes(out), i + 1
			}
			nest--
			out = append(out, c)
		case '\\':
			if i+1 >= len(data) {
				continue
			}
			i++
			switch e := data[i]; e {
			case 'n':
				out = append(out, '\n')
			case 'r':
				out = append(out, '\r')
			case 't':
				out = append(out, '\t')
			case 'b':
				out = append(out, '\b')
			case 'f':
				out = append(out, '\f')
			case '\r':
				if i+1 < len(data) && data[i+1] == '\n' {
					i++
				}
			case '\n':
			default:
				if e >= '0' && e <= '7' {
					v := int(e - '0')
					for k := 0; k < 2 && i+1 < len(data) && data[i+1] >= '0' && data[i+1] <= '7'; k++ {
						i++
						v = v*8 + int(data[i]-'0')
					}
					out = append(out, byte(v))
				} else {
					out = append(out, e)
				}
			}
		default:
			out = append(out, c)
		}
	}
	return decodeBytes(out), i
}

// readHex decodes a <...> string starting at data[0].
func readHex(data []byte) (string, int) {
	var (
		out  []byte
		hi   = -1
		i    = 1
		done bool
	)
	for ; i < len(data) && !done; i++ {
		c := data[i]
		if c == '>' {
			done = true
			break
		}
		v := hexValue(c)
		if v < 0 {
			continue
		}
		if hi < 0 {
			hi = v
		} else {
			out = append(out, byte(hi<<4|v))
			hi = -1
		}
	}
	if hi >= 0 {
		out = append(out, byte(hi<<4))
	}
	if done {
		i++
	}
	return decodeBytes(out), i
}

func hexValue(c byte) int {
	switch {
	case c >= '0' && c <= '9':
		return int(c - '0')
	case c >= 'a' && c <= 'f':
		return int(c-'a') + 10
	case c >= 'A' && c <= 'F':
		return int(c-'A') + 10
	}
	return -1
}

func decodeBytes(b []byte) string {
	if len(b) >= 2 && b[0] == 0xFE && b[1] == 0xFF {
		u := make([]uint16, 0, (len(b)-2)/2)
		for i := 2; i+1 < len(b); i += 2 {
			u = append(u, uint16(b[i])<<8|uint16(b[i+1]))
		}
		return string(utf16.Decode(u))
	}
	r := make([]rune, len(b))
	for i, c := range b {
		r[i] = rune(c)
	}
	return string(r)
}

// normalizeText collapses whitespace runs to single spaces and drops
// non-printable runes.
func normalizeText(text string) string {
	var sb strings.Builder
	space := false
	for _, r := range text {
		switch {
		case unicode.IsSpace(r):
			if !space && sb.Len() > 0 {
				sb.WriteByte(' ')
				space = true
			}
		case unicode.IsPrint(r):
			sb.WriteRune(r)
			space = false
		}
	}
	return strings.TrimSpace(sb.String())
}
