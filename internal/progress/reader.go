package progress

import "io"

// Reader wraps an io.Reader and reports the cumulative byte count to a
// callback. With a zero interval every read is reported.
type Reader struct {
	Reader     io.Reader
	Total      int64
	OnProgress func(current int64, total int64)

	totalRead      int64
	sinceReport    int64
	reportInterval int64
}

func NewReader(r io.Reader, total int64, interval int64, cb func(current int64, total int64)) *Reader {
	return &Reader{
		Reader:         r,
		Total:          total,
		OnProgress:     cb,
		reportInterval: interval,
	}
}

func (pr *Reader) Read(p []byte) (int, error) {
	n, err := pr.Reader.Read(p)
	if n > 0 {
		pr.totalRead += int64(n)
		pr.sinceReport += int64(n)

		done := pr.Total > 0 && pr.totalRead >= pr.Total
		if pr.sinceReport >= pr.reportInterval || done {
			pr.report()
		}
	}

	if err == io.EOF && pr.sinceReport > 0 {
		pr.report()
	}

	return n, err
}

// BytesRead is the cumulative number of bytes read so far.
func (pr *Reader) BytesRead() int64 {
	return pr.totalRead
}

func (pr *Reader) report() {
	pr.sinceReport = 0

	if pr.OnProgress != nil {
		pr.OnProgress(pr.totalRead, pr.Total)
	}
}
