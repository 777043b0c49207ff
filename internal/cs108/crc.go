package cs108

// checksum computes the CRC-16 (reflected poly 0x8408, init 0xFFFF) carried in
// header bytes 6-7 over the frame body.
func checksum(body []byte) uint16 {
	crc := uint16(0xFFFF)
	for _, b := range body {
		crc ^= uint16(b)
		for range 8 {
			if crc&0x0001 != 0 {
				crc = (crc >> 1) ^ 0x8408
			} else {
				crc >>= 1
			}
		}
	}
	return crc
}
