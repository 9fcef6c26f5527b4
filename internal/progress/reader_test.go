package progress

import (
	"bytes"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReader_ReportsCumulativeBytes(t *testing.T) {
	data := bytes.Repeat([]byte("x"), 10_000)

	var reports []int64

	pr := NewReader(bytes.NewReader(data), int64(len(data)), 4096, func(current, total int64) {
		assert.Equal(t, int64(len(data)), total)
		reports = append(reports, current)
	})

	n, err := io.CopyBuffer(io.Discard, pr, make([]byte, 1024))
	require.NoError(t, err)
	assert.Equal(t, int64(len(data)), n)

	require.NotEmpty(t, reports)
	assert.Equal(t, int64(len(data)), reports[len(reports)-1])

	for i := 1; i < len(reports); i++ {
		assert.Greater(t, reports[i], reports[i-1])
	}
}

func TestReader_UnknownTotalReportsOnEOF(t *testing.T) {
	var last int64

	pr := NewReader(bytes.NewReader([]byte("hello")), 0, 1<<20, func(current, _ int64) {
		last = current
	})

	_, err := io.ReadAll(pr)
	require.NoError(t, err)
	assert.Equal(t, int64(5), last)
	assert.Equal(t, int64(5), pr.BytesRead())
}
