package reader

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/mzyy94/cs108ctl/internal/cs108"
)

// A configuration sequence is a list of phases. Each phase is sent as one
// batch; the next phase starts when every acknowledgement the batch expects
// has arrived. The protocol has no request ids, so the expected set is a
// multiset of event codes and acks are matched to commands in send order per
// code (see Reader.acks).
type phase struct {
	name string
	cmds []cs108.Command
}

type sequence struct {
	gen     uint64
	target  Mode
	opts    ModeOptions
	phases  []phase
	idx     int
	pending map[cs108.Code]int
	started time.Time
	timer   *time.Timer
}

// pendingKinds lists the acknowledgements still outstanding, for errors.
func (s *sequence) pendingKinds() string {
	var names []string
	for code, n := range s.pending {
		for range n {
			names = append(names, cs108.Lookup(code).Kind.String())
		}
	}
	if len(names) == 0 {
		return "nothing"
	}
	sort.Strings(names)
	return strings.Join(names, ", ")
}

// buildPhases returns the power-down and power-up phases for switching from
// prev to target. scanning adds the abort for the running scan; stale lists
// modes whose hardware state is uncertain (a superseded sequence's target)
// and is powered down as well.
func buildPhases(prev Mode, scanning bool, stale []Mode, target Mode, s Settings) ([]phase, error) {
	var down []cs108.Command
	if scanning {
		down = append(down, abortCommands(prev)...)
	}
	seen := make(map[cs108.Code]bool)
	for _, m := range append([]Mode{prev}, stale...) {
		for _, c := range powerOffCommands(m) {
			if !seen[c.Code] {
				seen[c.Code] = true
				down = append(down, c)
			}
		}
	}

	up, err := powerUpCommands(target, s)
	if err != nil {
		return nil, err
	}

	phases := []phase{{name: "power-down", cmds: down}}
	if len(up) > 0 {
		phases = append(phases, phase{name: "power-up", cmds: up})
	}
	return phases, nil
}

func powerOffCommands(m Mode) []cs108.Command {
	switch {
	case m.usesRFID():
		return []cs108.Command{cs108.RFIDPowerOff()}
	case m == ModeBarcode:
		return []cs108.Command{cs108.BarcodePowerOff()}
	}
	// IDLE: the hardware state is not tracked, switch both off.
	return []cs108.Command{cs108.RFIDPowerOff(), cs108.BarcodePowerOff()}
}

func powerUpCommands(m Mode, s Settings) ([]cs108.Command, error) {
	switch m {
	case ModeInventory:
		cmds := []cs108.Command{cs108.RFIDPowerOn(), cs108.RFIDSetPower(s.Power)}
		return append(cmds, cs108.RFIDClearMask()...), nil
	case ModeLocate:
		cmds := []cs108.Command{cs108.RFIDPowerOn(), cs108.RFIDSetPower(s.Power)}
		if s.TargetEPC == "" {
			return append(cmds, cs108.RFIDClearMask()...), nil
		}
		mask, err := cs108.RFIDSelectMask(s.TargetEPC)
		if err != nil {
			return nil, fmt.Errorf("locate filter: %w", err)
		}
		return append(cmds, mask...), nil
	case ModeBarcode:
		return []cs108.Command{cs108.BarcodePowerOn(), cs108.BarcodeCodeID(s.BarcodePrefix)}, nil
	}
	return nil, nil
}

// startCommands begin autonomous reporting in mode m.
func startCommands(m Mode) []cs108.Command {
	switch {
	case m.usesRFID():
		return []cs108.Command{cs108.RFIDStartInventory()}
	case m == ModeBarcode:
		return []cs108.Command{cs108.BarcodeStart()}
	}
	return nil
}

// abortCommands stop autonomous reporting in mode m.
func abortCommands(m Mode) []cs108.Command {
	switch {
	case m.usesRFID():
		return []cs108.Command{cs108.RFIDAbort()}
	case m == ModeBarcode:
		return []cs108.Command{cs108.BarcodeStop()}
	}
	return nil
}
