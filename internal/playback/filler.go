package playback

import "canistream/internal/domain"

const fillerSize = 21

// fillerPacket is a content-free transport-stream packet: sync byte, null
// PID 0x1FFF, payload only, continuity counter 0, stuffed with 0xFF.
var fillerPacket = func() [fillerSize]byte {
	var p [fillerSize]byte
	p[0] = domain.TSSyncByte
	p[1] = 0x1F
	p[2] = 0xFF
	p[3] = 0x10
	for i := 4; i < fillerSize; i++ {
		p[i] = 0xFF
	}
	return p
}()

// FillerPacket returns a fresh copy of the packet substituted for segments
// that could not be fetched or failed validation. Loaders hand out their own
// copies of cached fillers.
func FillerPacket() []byte {
	p := fillerPacket
	return p[:]
}

// validSegment reports whether data can be handed to a playback engine.
func validSegment(data []byte) bool {
	return len(data) > 0 && data[0] == domain.TSSyncByte
}
