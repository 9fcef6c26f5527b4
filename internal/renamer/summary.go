package renamer

import (
	"fmt"
	"strings"
	"time"

	"github.com/italolelis/transfer_monitor/internal/progress"
	"github.com/italolelis/transfer_monitor/internal/storage"
)

const mib = 1024 * 1024

// Summary describes a finished rename.
type Summary struct {
	JobID          string             `json:"job_id"`
	UserID         string             `json:"user_id"`
	OriginalName   string             `json:"original_name"`
	FileName       string             `json:"file_name"`
	FileID         int64              `json:"file_id"`
	Size           int64              `json:"size"`
	Total          time.Duration      `json:"total"`
	DownloadSpeed  float64            `json:"download_speed"`
	UploadSpeed    float64            `json:"upload_speed"`
	Mode           storage.UploadMode `json:"mode"`
	Thumbnail      bool               `json:"thumbnail"`
	Prefixed       bool               `json:"prefixed"`
	DownloadStatus string             `json:"download_status"`
	UploadStatus   string             `json:"upload_status"`
}

// Rating classifies the average of download and upload speed.
func (s Summary) Rating() string {
	avg := (s.DownloadSpeed + s.UploadSpeed) / 2 / mib

	switch {
	case avg > 20:
		return "⚡ ULTRA FAST"
	case avg > 10:
		return "🚀 FAST"
	default:
		return "📊 NORMAL"
	}
}

func speed(size int64, d time.Duration) float64 {
	if d <= 0 {
		return 0
	}

	return float64(size) / d.Seconds()
}

func mark(ok bool) string {
	if ok {
		return "✅"
	}

	return "❌"
}

// Text renders the completion message.
func (s Summary) Text() string {
	var b strings.Builder

	fmt.Fprintf(&b, "✅ %s TRANSFER COMPLETE!\n\n", s.Rating())
	fmt.Fprintf(&b, "File: %s\n", s.FileName)
	fmt.Fprintf(&b, "Size: %s\n", progress.FormatBytes(s.Size))
	fmt.Fprintf(&b, "Total Time: %s\n\n", progress.FormatDuration(s.Total))
	fmt.Fprintf(&b, "Download: %s/s\n", progress.FormatBytes(int64(s.DownloadSpeed)))
	fmt.Fprintf(&b, "Upload: %s/s\n", progress.FormatBytes(int64(s.UploadSpeed)))
	fmt.Fprintf(&b, "Mode: %s\n", strings.ToUpper(string(s.Mode)))
	fmt.Fprintf(&b, "Thumbnail: %s\n", mark(s.Thumbnail))
	fmt.Fprintf(&b, "Prefix: %s", mark(s.Prefixed))

	return b.String()
}
