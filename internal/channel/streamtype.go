package channel

// StreamType classifies a PID's role within the channel's current PSI view
// (spec §3 stream_type[8192], §4.F.1).
type StreamType int

const (
	StreamUnknown StreamType = iota
	StreamPAT
	StreamCAT
	StreamPMT
	StreamSDT
	StreamEIT
	StreamPES
	StreamCA
	StreamTDT
)

// PID sentinels for pid_map (spec §3).
const (
	pidPassthrough = uint16(0)
	pidFiltered    = uint16(8192)
)

// esKind is the coarse role bucket a map rule selector can name.
type esKind int

const (
	esUnknown esKind = iota
	esVideo
	esAudio
	esSub
)

func (k esKind) selector() string {
	switch k {
	case esVideo:
		return "video"
	case esAudio:
		return "audio"
	case esSub:
		return "sub"
	default:
		return ""
	}
}

// esKindOfStreamType classifies an MPEG-TS stream_type byte (PMT ES loop) by
// role. Types not recognized here (including 0x06, private PES) return
// esUnknown and are refined by descriptor inspection in the PMT handler.
func esKindOfStreamType(st byte) esKind {
	switch st {
	case 0x01, 0x02, 0x10, 0x1B, 0x20, 0x24:
		return esVideo
	case 0x03, 0x04, 0x0F, 0x11, 0x81:
		return esAudio
	default:
		return esUnknown
	}
}

// esKindOfPrivateDescriptor refines a type-0x06 private PES entry by
// inspecting its descriptor loop for a DVB subtitling/teletext tag (treated
// as "sub") or an AC-3/E-AC-3 registration (treated as "audio").
func esKindOfPrivateDescriptor(tag byte) esKind {
	switch tag {
	case 0x59, 0x56:
		return esSub
	case 0x6A, 0x7A:
		return esAudio
	default:
		return esUnknown
	}
}
