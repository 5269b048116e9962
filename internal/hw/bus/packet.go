package bus

// Dynamixel protocol 2.0 instruction packet:
//
//	FF FF FD 00 | ID | LEN_L LEN_H | INST | PARAMS... | CRC_L CRC_H
//
// LEN counts INST, the stuffed parameters and the CRC. Any FF FF FD run
// inside the parameters is followed by an extra FD.

const (
	instPing  byte = 0x01
	instWrite byte = 0x03
)

var header = []byte{0xFF, 0xFF, 0xFD, 0x00}

func crc16(data []byte) uint16 {
	var crc uint16
	for _, b := range data {
		crc ^= uint16(b) << 8
		for i := 0; i < 8; i++ {
			if crc&0x8000 != 0 {
				crc = crc<<1 ^ 0x8005
			} else {
				crc <<= 1
			}
		}
	}
	return crc
}

func stuff(params []byte) []byte {
	out := make([]byte, 0, len(params)+2)
	for i, b := range params {
		out = append(out, b)
		if b == 0xFD && i >= 2 && params[i-1] == 0xFF && params[i-2] == 0xFF {
			out = append(out, 0xFD)
		}
	}
	return out
}

func encodePacket(id, inst byte, params []byte) []byte {
	p := stuff(params)
	n := len(p) + 3
	pkt := make([]byte, 0, len(header)+4+n)
	pkt = append(pkt, header...)
	pkt = append(pkt, id, byte(n), byte(n>>8), inst)
	pkt = append(pkt, p...)
	crc := crc16(pkt)
	return append(pkt, byte(crc), byte(crc>>8))
}

func writePacket(id byte, addr uint16, data ...byte) []byte {
	params := append([]byte{byte(addr), byte(addr >> 8)}, data...)
	return encodePacket(id, instWrite, params)
}

func le16(v int) []byte {
	return []byte{byte(v), byte(v >> 8)}
}
