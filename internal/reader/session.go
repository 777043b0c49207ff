package reader

import (
	"time"

	"github.com/google/uuid"
)

// Source identifies what started a scan session.
type Source string

const (
	SourceAPI     Source = "api"
	SourceTrigger Source = "trigger"
)

// ScanSession describes the scan currently running. It is created by
// StartScanning (or a trigger press) and ends when scanning stops.
type ScanSession struct {
	ID      string    `json:"id"`
	Mode    Mode      `json:"mode"`
	Source  Source    `json:"source"`
	Started time.Time `json:"started"`
	Reads   int       `json:"reads"` // Published data events
}

func newSession(mode Mode, src Source) *ScanSession {
	return &ScanSession{ID: uuid.NewString(), Mode: mode, Source: src, Started: time.Now()}
}

// LocateStats is the RSSI bookkeeping for the current LOCATE session. No
// smoothing is applied.
type LocateStats struct {
	TargetEPC string `json:"targetEpc"`
	Latest    int    `json:"latest"`
	Strongest int    `json:"strongest"`
	Weakest   int    `json:"weakest"`
	Matched   int    `json:"matched"`  // Reports published
	Filtered  int    `json:"filtered"` // Reports for other EPCs, not published
}

// observe records one published reading.
func (s *LocateStats) observe(rssi int) {
	if s.Matched == 0 {
		s.Strongest, s.Weakest = rssi, rssi
	} else {
		s.Strongest = max(s.Strongest, rssi)
		s.Weakest = min(s.Weakest, rssi)
	}
	s.Latest = rssi
	s.Matched++
}
