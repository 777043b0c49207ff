package sim

import (
	"bytes"
	"encoding/binary"

	"github.com/mzyy94/cs108ctl/internal/cs108"
)

// mask mirrors the tag select registers. Only an EPC-bank mask starting
// after the PC word is honoured; anything else disables filtering.
type mask struct {
	enabled bool
	bank    uint32
	pointer uint32
	bits    uint32
	data    [cs108.MaxMaskBytes]byte
}

func (m *mask) write(reg uint16, val uint32) {
	switch {
	case reg == cs108.RegTagMaskSelect:
		// Single descriptor.
	case reg == cs108.RegTagMaskConfig:
		m.enabled = val&1 != 0
	case reg == cs108.RegTagMaskBank:
		m.bank = val
	case reg == cs108.RegTagMaskPointer:
		m.pointer = val
	case reg == cs108.RegTagMaskLength:
		m.bits = val
	case reg >= cs108.RegTagMask0 && reg < cs108.RegTagMask0+cs108.MaxMaskBytes/4:
		i := int(reg-cs108.RegTagMask0) * 4
		binary.BigEndian.PutUint32(m.data[i:i+4], val)
	}
}

// matches reports whether a tag with the given EPC would be singulated.
func (m *mask) matches(epc string) bool {
	if !m.enabled || m.bank != cs108.BankEPC || m.pointer != 0x20 || m.bits == 0 {
		return true
	}
	b, err := cs108.ParseEPC(epc)
	if err != nil {
		return false
	}
	n := int(m.bits / 8)
	if n > len(m.data) || len(b) < n {
		return false
	}
	return bytes.Equal(b[:n], m.data[:n])
}
