package psi

// NextDescriptor reads one descriptor (tag, length, data) starting at pos
// within buf, stopping at end (exclusive). It returns ok=false once pos has
// reached end or a truncated descriptor is found.
func NextDescriptor(buf []byte, pos, end int) (tag byte, data []byte, next int, ok bool) {
	if pos+2 > end {
		return 0, nil, pos, false
	}
	tag = buf[pos]
	dlen := int(buf[pos+1])
	if pos+2+dlen > end {
		return 0, nil, pos, false
	}
	data = buf[pos+2 : pos+2+dlen]
	return tag, data, pos + 2 + dlen, true
}

const (
	DescriptorTagLanguage = 0x0A // ISO_639_language_descriptor
)

// ISO639Language extracts the 3-letter language code from an
// ISO_639_language_descriptor's raw data (after tag/length).
func ISO639Language(data []byte) (string, bool) {
	if len(data) < 3 {
		return "", false
	}
	return string(data[0:3]), true
}
