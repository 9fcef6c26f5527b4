package progress

import "time"

// Direction tells whether bytes are flowing towards us or away from us.
type Direction int

const (
	Download Direction = iota
	Upload
)

func (d Direction) String() string {
	switch d {
	case Download:
		return "download"
	case Upload:
		return "upload"
	default:
		return "unknown"
	}
}

// Snapshot is the state of a transfer at one instant. It is a value type and
// is never modified after the tracker hands it out.
type Snapshot struct {
	Direction    Direction
	CurrentBytes int64
	TotalBytes   int64

	// Percentage is only meaningful when PercentKnown reports true.
	Percentage float64

	// Speed is the smoothed speed in bytes per second.
	Speed float64

	// ETA is only meaningful when ETAKnown is true. A transfer whose speed is
	// still zero reports "calculating" instead of a zero ETA.
	ETA      time.Duration
	ETAKnown bool

	Elapsed time.Duration
	Final   bool
	TakenAt time.Time
}

// PercentKnown is false when the total size was unknown at session creation.
func (s Snapshot) PercentKnown() bool {
	return s.TotalBytes > 0
}

// RemainingBytes returns zero for transfers of unknown size.
func (s Snapshot) RemainingBytes() int64 {
	if s.TotalBytes <= 0 {
		return 0
	}

	return s.TotalBytes - s.CurrentBytes
}
