package webrtc

const (
	naluTypeSTAPA = 24
	naluTypeFUA   = 28
)

// H264Depacketizer turns RTP H264 payloads into NAL units. FU-A
// reassembly state is per instance and is discarded on any sequence gap.
type H264Depacketizer struct {
	fua     []byte
	inFUA   bool
	lastSeq uint16
	haveSeq bool
}

// NewH264Depacketizer creates a depacketizer with an empty reassembly buffer.
func NewH264Depacketizer() *H264Depacketizer {
	return &H264Depacketizer{}
}

// Depacketize returns the complete NAL units carried by one RTP payload.
func (d *H264Depacketizer) Depacketize(seq uint16, payload []byte) [][]byte {
	gap := d.haveSeq && seq != d.lastSeq+1
	d.lastSeq, d.haveSeq = seq, true
	if gap {
		d.resetFUA()
	}

	if len(payload) == 0 {
		return nil
	}

	switch t := payload[0] & 0x1f; {
	case t >= 1 && t <= 23:
		return [][]byte{payload}
	case t == naluTypeSTAPA:
		return splitSTAPA(payload[1:])
	case t == naluTypeFUA:
		return d.appendFUA(payload)
	default:
		return nil
	}
}

func (d *H264Depacketizer) resetFUA() {
	d.fua = nil
	d.inFUA = false
}

func splitSTAPA(buf []byte) [][]byte {
	var nalus [][]byte
	for len(buf) >= 2 {
		size := int(buf[0])<<8 | int(buf[1])
		buf = buf[2:]
		if size == 0 || size > len(buf) {
			break
		}
		nalus = append(nalus, buf[:size])
		buf = buf[size:]
	}
	return nalus
}

func (d *H264Depacketizer) appendFUA(payload []byte) [][]byte {
	if len(payload) < 2 {
		d.resetFUA()
		return nil
	}

	header := payload[1]
	start := header&0x80 != 0
	end := header&0x40 != 0

	switch {
	case start:
		d.fua = append([]byte{payload[0]&0xe0 | header&0x1f}, payload[2:]...)
		d.inFUA = true
	case d.inFUA:
		d.fua = append(d.fua, payload[2:]...)
	default:
		// continuation without a start fragment
		return nil
	}

	if !end {
		return nil
	}
	nalu := d.fua
	d.resetFUA()
	return [][]byte{nalu}
}
