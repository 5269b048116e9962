package bus

import (
	"bytes"
	"errors"
	"fmt"
	"testing"

	"github.com/cjeanneret/v2mini/internal/config"
)

func hex(b []byte) string { return fmt.Sprintf("% X", b) }

func TestEncodePacket_Ping(t *testing.T) {
	got := encodePacket(1, instPing, nil)
	if want := "FF FF FD 00 01 03 00 01 19 4E"; hex(got) != want {
		t.Errorf("ping = %s, want %s", hex(got), want)
	}
}

func TestWritePacket_GoalPosition(t *testing.T) {
	// Write 512 to address 116, four bytes, servo 1.
	got := writePacket(1, 116, 0x00, 0x02, 0x00, 0x00)
	if want := "FF FF FD 00 01 09 00 03 74 00 00 02 00 00 CA 89"; hex(got) != want {
		t.Errorf("write = %s, want %s", hex(got), want)
	}
}

func TestStuff(t *testing.T) {
	cases := []struct {
		in, want []byte
	}{
		{[]byte{0x01, 0x02}, []byte{0x01, 0x02}},
		{[]byte{0xFF, 0xFF, 0xFD}, []byte{0xFF, 0xFF, 0xFD, 0xFD}},
		{[]byte{0xFF, 0xFD, 0xFF}, []byte{0xFF, 0xFD, 0xFF}},
		{[]byte{0x00, 0xFF, 0xFF, 0xFD, 0x10}, []byte{0x00, 0xFF, 0xFF, 0xFD, 0xFD, 0x10}},
	}
	for _, tc := range cases {
		if got := stuff(tc.in); !bytes.Equal(got, tc.want) {
			t.Errorf("stuff(% X) = % X, want % X", tc.in, got, tc.want)
		}
	}
}

func TestEncodePacket_LengthCountsStuffing(t *testing.T) {
	pkt := encodePacket(2, instWrite, []byte{0xFF, 0xFF, 0xFD})
	n := int(pkt[5]) | int(pkt[6])<<8
	if n != 7 {
		t.Errorf("length field = %d, want 7", n)
	}
	if len(pkt) != 7+n {
		t.Errorf("packet size %d does not match length field %d", len(pkt), n)
	}
}

type recordingPort struct {
	writes [][]byte
	resets int
	closed bool
	err    error
}

func (p *recordingPort) Write(b []byte) (int, error) {
	if p.err != nil {
		return 0, p.err
	}
	p.writes = append(p.writes, append([]byte(nil), b...))
	return len(b), nil
}

func (p *recordingPort) Close() error {
	p.closed = true
	return nil
}

func (p *recordingPort) reset() error {
	p.resets++
	return nil
}

func TestXL320_SetGoal(t *testing.T) {
	port := &recordingPort{}
	s := newXL320(port, port.reset, 6)

	if err := s.SetGoal(665, 100); err != nil {
		t.Fatalf("SetGoal: %v", err)
	}
	if err := s.SetGoal(600, 100); err != nil {
		t.Fatalf("SetGoal: %v", err)
	}
	want := []string{
		hex(writePacket(6, xlMovingSpeed, 100, 0)),
		hex(writePacket(6, xlGoalPosition, 0x99, 0x02)),
		hex(writePacket(6, xlGoalPosition, 0x58, 0x02)),
	}
	if len(port.writes) != len(want) {
		t.Fatalf("got %d writes, want %d", len(port.writes), len(want))
	}
	for i, w := range want {
		if hex(port.writes[i]) != w {
			t.Errorf("write %d = %s, want %s", i, hex(port.writes[i]), w)
		}
	}
	if port.resets != 3 {
		t.Errorf("input buffer reset %d times, want 3", port.resets)
	}
}

func TestXL320_LEDAndClose(t *testing.T) {
	port := &recordingPort{}
	s := newXL320(port, nil, 6)
	_ = s.SetLED(LEDPurple)
	_ = s.SetLED(LEDPurple)
	if len(port.writes) != 1 || hex(port.writes[0]) != hex(writePacket(6, xlLED, LEDPurple)) {
		t.Errorf("LED writes = %v", port.writes)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if !port.closed {
		t.Error("port not closed")
	}
	if last := port.writes[len(port.writes)-1]; hex(last) != hex(writePacket(6, xlTorqueEnable, 0)) {
		t.Errorf("last write = %s, want torque off", hex(last))
	}
	if err := s.SetGoal(511, 100); !errors.Is(err, ErrNotOpen) {
		t.Errorf("SetGoal after Close = %v, want ErrNotOpen", err)
	}
}

func TestXL320_WriteError(t *testing.T) {
	port := &recordingPort{err: errors.New("device unplugged")}
	s := newXL320(port, nil, 6)
	if err := s.SetGoal(511, 100); err == nil {
		t.Error("expected write error")
	}
}

func TestOpen_Mock(t *testing.T) {
	s, err := Open(config.PanConfig{Bus: config.BusMock})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	m, ok := s.(*Mock)
	if !ok {
		t.Fatalf("Open(mock) returned %T", s)
	}
	if m.Goal() != -1 {
		t.Errorf("Goal() before first write = %d", m.Goal())
	}
	_ = m.SetGoal(665, 100)
	_ = m.SetLED(LEDPurple)
	if m.Goal() != 665 || m.Speed() != 100 || m.LEDCode() != LEDPurple {
		t.Errorf("mock state goal=%d speed=%d led=%d", m.Goal(), m.Speed(), m.LEDCode())
	}
	_ = m.Close()
	if err := m.SetGoal(1, 1); !errors.Is(err, ErrNotOpen) {
		t.Errorf("SetGoal after Close = %v", err)
	}
}

func TestOpen_Unsupported(t *testing.T) {
	if _, err := Open(config.PanConfig{Bus: "can"}); err == nil {
		t.Error("expected error for unsupported bus")
	}
}
