package slave

import "testing"

func TestHeaterDecodesMeasurements(t *testing.T) {
	h := NewHeater(nil)
	payload := []byte{0x00, 0x25, 0x12, 0x00, 0x3b, 0x01, 0x00, 0x00, 0x20}
	if err := h.OnReply(payload); err != nil {
		t.Fatal(err)
	}
	if h.OnTime != 0x0012 {
		t.Fatalf("OnTime = %#x, want 0x12", h.OnTime)
	}
	if h.Cycles != 0x013b {
		t.Fatalf("Cycles = %#x, want 0x13b", h.Cycles)
	}
	if h.Temperature != 0x20 {
		t.Fatalf("Temperature = %#x, want 0x20", h.Temperature)
	}
}

func TestHeaterNextRequestAsksForMeasurements(t *testing.T) {
	h := NewHeater(nil)
	buf := make([]byte, 8)
	n, ok := h.NextRequest(buf)
	if !ok || n != 2 {
		t.Fatalf("NextRequest = (%d, %v), want (2, true)", n, ok)
	}
	if buf[1] != measurementsOpcode {
		t.Fatalf("opcode = %#x, want 0x25", buf[1])
	}
}

func TestPanelDeclinesRequestsAndTracksProbes(t *testing.T) {
	p := NewPanel(nil)
	if _, ok := p.NextRequest(make([]byte, 8)); ok {
		t.Fatal("expected panel to decline NextRequest")
	}
	p.OnProbe()
	p.OnProbe()
	if p.Connected != 2 {
		t.Fatalf("Connected = %d, want 2", p.Connected)
	}
}
