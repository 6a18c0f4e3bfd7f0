package text

// EscapeString escapes a string for JSON encoding according to RFC8259
// section 7 and appends it to dst wrapped in double quotes. Only the
// characters that MUST be escaped are processed: quotation mark, reverse
// solidus and the control characters U+0000 through U+001F. Bytes above
// 0x7f are passed through untouched so valid UTF-8 survives unmodified.
func EscapeString(dst []byte, s string) []byte {
	dst = append(dst, '"')
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c == '"':
			// quotation mark
			dst = append(dst, '\\', '"')
		case c == '\\':
			// reverse solidus
			dst = append(dst, '\\', '\\')
		case c >= 0x20:
			// default, rest below are control chars
			dst = append(dst, c)
		case c == '\b':
			dst = append(dst, '\\', 'b')
		case c == '\t':
			dst = append(dst, '\\', 't')
		case c == '\n':
			dst = append(dst, '\\', 'n')
		case c == '\f':
			dst = append(dst, '\\', 'f')
		case c == '\r':
			dst = append(dst, '\\', 'r')
		default:
			dst = append(dst, '\\', 'u', '0', '0',
				hexChars[c>>4], hexChars[c&0xf])
		}
	}
	dst = append(dst, '"')
	return dst
}

// EscapeJSONStringAndWrap returns the RFC8259 escaped form of s wrapped in
// double quotes, preallocated in a single pass.
func EscapeJSONStringAndWrap(s string) (escaped []byte) {
	length := len(s) + 2
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c == '"', c == '\\', c == '\b', c == '\t', c == '\n',
			c == '\f', c == '\r':
			length++
		case c < 0x20:
			length += 5
		}
	}
	escaped = make([]byte, 0, length)
	return EscapeString(escaped, s)
}

const hexChars = "0123456789abcdef"
