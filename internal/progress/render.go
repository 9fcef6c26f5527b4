package progress

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
)

const (
	DefaultBarWidth = 20

	barFull  = "█"
	barEmpty = "░"
)

// Bar renders a fixed-width progress bar for a percentage in [0, 100].
func Bar(percentage float64, width int) string {
	if width <= 0 {
		width = DefaultBarWidth
	}

	filled := int(math.Floor(float64(width) * percentage / 100))
	filled = max(0, min(width, filled))

	return strings.Repeat(barFull, filled) + strings.Repeat(barEmpty, width-filled)
}

// FormatDuration renders d as HH:MM:SS, truncating sub-second precision.
func FormatDuration(d time.Duration) string {
	if d < 0 {
		d = 0
	}

	secs := int64(d / time.Second)

	return fmt.Sprintf("%02d:%02d:%02d", secs/3600, (secs%3600)/60, secs%60)
}

// FormatBytes is the byte formatting used in every status message.
func FormatBytes(n int64) string {
	if n < 0 {
		n = 0
	}

	return humanize.IBytes(uint64(n))
}

// Label carries the display-only context of a status message.
type Label struct {
	FileName string
	Mode     string
}

// Render builds the status text for a snapshot.
func Render(l Label, s Snapshot) string {
	var b strings.Builder

	switch s.Direction {
	case Upload:
		b.WriteString("📤 UPLOADING")
	default:
		b.WriteString("📥 DOWNLOADING")
	}

	if l.Mode != "" {
		fmt.Fprintf(&b, " (%s)", strings.ToUpper(l.Mode))
	}

	b.WriteString("\n\n")

	if l.FileName != "" {
		fmt.Fprintf(&b, "File: %s\n", l.FileName)
	}

	if s.PercentKnown() {
		fmt.Fprintf(&b, "Progress: %s %.1f%%\n", Bar(s.Percentage, DefaultBarWidth), s.Percentage)
		fmt.Fprintf(&b, "Size: %s / %s\n", FormatBytes(s.CurrentBytes), FormatBytes(s.TotalBytes))
	} else {
		fmt.Fprintf(&b, "Progress: %s\n", FormatBytes(s.CurrentBytes))
	}

	fmt.Fprintf(&b, "Speed: %s/s\n", FormatBytes(int64(s.Speed)))

	if s.ETAKnown {
		fmt.Fprintf(&b, "ETA: %s\n", FormatDuration(s.ETA))
	} else {
		b.WriteString("ETA: calculating...\n")
	}

	fmt.Fprintf(&b, "Elapsed: %s", FormatDuration(s.Elapsed))

	return b.String()
}
