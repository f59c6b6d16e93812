package webrtc

import (
	"bytes"
	"testing"
)

var (
	fuaStart = []byte{0x7C, 0x85, 0x01, 0x02}
	fuaMid   = []byte{0x7C, 0x05, 0x03, 0x04}
	fuaEnd   = []byte{0x7C, 0x45, 0x05, 0x06}
)

func TestDepacketize_SingleNAL(t *testing.T) {
	payload := []byte{0x65, 0x01, 0x02, 0x03}
	nalus := NewH264Depacketizer().Depacketize(100, payload)

	if len(nalus) != 1 || !bytes.Equal(nalus[0], payload) {
		t.Fatalf("expected payload back as one NALU, got %v", nalus)
	}
}

func TestDepacketize_STAPA(t *testing.T) {
	sps := []byte{0x67, 0xAA, 0xBB}
	pps := []byte{0x68, 0xCC}
	payload := []byte{0x18, 0x00, 0x03}
	payload = append(payload, sps...)
	payload = append(payload, 0x00, 0x02)
	payload = append(payload, pps...)

	nalus := NewH264Depacketizer().Depacketize(100, payload)
	if len(nalus) != 2 {
		t.Fatalf("expected 2 NALUs, got %d", len(nalus))
	}
	if !bytes.Equal(nalus[0], sps) || !bytes.Equal(nalus[1], pps) {
		t.Errorf("unexpected NALUs %v", nalus)
	}
}

func TestDepacketize_STAPAStopsOnBadSize(t *testing.T) {
	d := NewH264Depacketizer()
	if nalus := d.Depacketize(1, []byte{0x18, 0x00, 0x00}); len(nalus) != 0 {
		t.Errorf("zero size: expected no NALUs, got %d", len(nalus))
	}
	if nalus := d.Depacketize(2, []byte{0x18, 0x00, 0x09, 0x67}); len(nalus) != 0 {
		t.Errorf("truncated: expected no NALUs, got %d", len(nalus))
	}
}

func TestDepacketize_FUA(t *testing.T) {
	d := NewH264Depacketizer()

	if got := d.Depacketize(100, fuaStart); got != nil {
		t.Fatalf("start fragment produced %d NALUs", len(got))
	}
	if got := d.Depacketize(101, fuaMid); got != nil {
		t.Fatalf("middle fragment produced %d NALUs", len(got))
	}
	nalus := d.Depacketize(102, fuaEnd)
	if len(nalus) != 1 {
		t.Fatalf("expected 1 NALU on end fragment, got %d", len(nalus))
	}

	want := []byte{0x65, 0x01, 0x02, 0x03, 0x04, 0x05, 0x06}
	if !bytes.Equal(nalus[0], want) {
		t.Errorf("expected %v, got %v", want, nalus[0])
	}
}

func TestDepacketize_FUADropsOnSequenceGap(t *testing.T) {
	d := NewH264Depacketizer()

	d.Depacketize(100, fuaStart)
	if got := d.Depacketize(102, fuaMid); got != nil {
		t.Fatalf("expected nil after gap, got %d NALUs", len(got))
	}
	if got := d.Depacketize(103, fuaEnd); got != nil {
		t.Fatalf("expected dropped chain, got %d NALUs", len(got))
	}

	// a fresh start after the gap reassembles again
	d.Depacketize(104, fuaStart)
	if got := d.Depacketize(105, fuaEnd); len(got) != 1 {
		t.Fatalf("expected recovery after gap, got %d NALUs", len(got))
	}
}

func TestDepacketize_SequenceWraps(t *testing.T) {
	d := NewH264Depacketizer()

	d.Depacketize(65535, fuaStart)
	if got := d.Depacketize(0, fuaEnd); len(got) != 1 {
		t.Fatalf("expected NALU across sequence wrap, got %d", len(got))
	}
}

func TestDepacketize_OrphanEndAndIsolation(t *testing.T) {
	d1 := NewH264Depacketizer()
	d2 := NewH264Depacketizer()

	d1.Depacketize(100, fuaStart)
	if got := d2.Depacketize(101, fuaEnd); got != nil {
		t.Fatalf("orphan end produced %d NALUs", len(got))
	}
	if got := d1.Depacketize(101, fuaEnd); len(got) != 1 {
		t.Fatalf("expected d1 to finish its NALU, got %d", len(got))
	}
}

func TestDepacketize_Empty(t *testing.T) {
	d := NewH264Depacketizer()
	if got := d.Depacketize(0, nil); got != nil {
		t.Errorf("expected nil, got %v", got)
	}
}
