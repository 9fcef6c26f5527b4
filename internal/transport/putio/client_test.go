package putio

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"

	putio "github.com/putdotio/go-putio"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type progressLog struct {
	mu      sync.Mutex
	samples [][2]int64
}

func (p *progressLog) report(current, total int64) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.samples = append(p.samples, [2]int64{current, total})
}

func newTestClient(serverURL string) *Client {
	goputioClient := putio.NewClient(nil)
	u, _ := url.Parse(serverURL)
	goputioClient.BaseURL = u

	return &Client{
		files:       goputioClient.Files,
		httpClient:  http.DefaultClient,
		reportEvery: 4,
	}
}

func newFileServer(t *testing.T, body string, status int) *httptest.Server {
	t.Helper()

	mux := http.NewServeMux()

	var server *httptest.Server

	mux.HandleFunc("/v2/files/100", func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprintf(w, `{"file":{"id":100,"name":"movie.mkv","size":%d,"parent_id":7,"file_type":"VIDEO","content_type":"video/x-matroska"}}`, len(body))
	})
	mux.HandleFunc("/v2/files/200", func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, `{"file":{"id":200,"name":"folder","size":0,"file_type":"FOLDER","content_type":"application/x-directory"}}`)
	})
	mux.HandleFunc("/v2/files/100/url", func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprintf(w, `{"url":"%s/content/100"}`, server.URL)
	})
	mux.HandleFunc("/content/100", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(status)
		fmt.Fprint(w, body)
	})

	server = httptest.NewServer(mux)
	t.Cleanup(server.Close)

	return server
}

func TestStat(t *testing.T) {
	server := newFileServer(t, "0123456789", http.StatusOK)
	c := newTestClient(server.URL)

	f, err := c.Stat(context.Background(), 100)
	require.NoError(t, err)
	assert.Equal(t, File{ID: 100, Name: "movie.mkv", Size: 10, ParentID: 7}, f)

	_, err = c.Stat(context.Background(), 200)
	assert.Error(t, err)
}

func TestDownloadReportsProgress(t *testing.T) {
	server := newFileServer(t, "0123456789", http.StatusOK)
	c := newTestClient(server.URL)

	f, err := c.Stat(context.Background(), 100)
	require.NoError(t, err)

	var (
		dst bytes.Buffer
		log progressLog
	)

	n, err := c.Download(context.Background(), f, &dst, log.report)
	require.NoError(t, err)

	assert.Equal(t, int64(10), n)
	assert.Equal(t, "0123456789", dst.String())
	require.NotEmpty(t, log.samples)
	assert.Equal(t, [2]int64{10, 10}, log.samples[len(log.samples)-1])

	for i := 1; i < len(log.samples); i++ {
		assert.GreaterOrEqual(t, log.samples[i][0], log.samples[i-1][0])
	}
}

func TestDownloadRemoteError(t *testing.T) {
	server := newFileServer(t, "gone", http.StatusNotFound)
	c := newTestClient(server.URL)

	_, err := c.Download(context.Background(), File{ID: 100, Size: 4}, io.Discard, nil)

	var re *RemoteError
	require.ErrorAs(t, err, &re)
	assert.Equal(t, http.StatusNotFound, re.StatusCode)
}

type fakeFiles struct {
	filesAPI

	uploaded string
	name     string
	parent   int64
	err      error
}

func (f *fakeFiles) Upload(_ context.Context, r io.Reader, filename string, parent int64) (putio.Upload, error) {
	if f.err != nil {
		return putio.Upload{}, f.err
	}

	b, err := io.ReadAll(r)
	if err != nil {
		return putio.Upload{}, err
	}

	f.uploaded, f.name, f.parent = string(b), filename, parent

	return putio.Upload{File: &putio.File{ID: 300, Name: filename, Size: int64(len(b)), ParentID: parent}}, nil
}

func TestUploadReportsProgress(t *testing.T) {
	files := &fakeFiles{}
	c := &Client{files: files, reportEvery: 3}

	var log progressLog

	f, err := c.Upload(context.Background(), strings.NewReader("abcdefgh"), 8, "[X] movie.mkv", 7, log.report)
	require.NoError(t, err)

	assert.Equal(t, File{ID: 300, Name: "[X] movie.mkv", Size: 8, ParentID: 7}, f)
	assert.Equal(t, "abcdefgh", files.uploaded)
	assert.Equal(t, int64(7), files.parent)
	assert.Equal(t, [2]int64{8, 8}, log.samples[len(log.samples)-1])
}

func TestUploadError(t *testing.T) {
	boom := errors.New("upload rejected")
	c := &Client{files: &fakeFiles{err: boom}, reportEvery: 3}

	_, err := c.Upload(context.Background(), strings.NewReader("abc"), 3, "x", 0, nil)
	assert.ErrorIs(t, err, boom)
}
