// Package putio moves file bytes to and from put.io, reporting progress as
// it goes.
package putio

import (
	"context"
	"fmt"
	"io"
	"net/http"

	"github.com/italolelis/transfer_monitor/internal/logctx"
	"github.com/italolelis/transfer_monitor/internal/progress"
	"github.com/putdotio/go-putio"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"golang.org/x/oauth2"
)

// defaultReportEvery is how many bytes are read between two progress reports.
const defaultReportEvery = 256 * 1024

// File is the subset of a put.io file the rename pipeline needs.
type File struct {
	ID       int64
	Name     string
	Size     int64
	ParentID int64
}

// filesAPI is the part of putio.FilesService the client uses.
type filesAPI interface {
	Get(ctx context.Context, id int64) (putio.File, error)
	URL(ctx context.Context, id int64, useTunnel bool) (string, error)
	Upload(ctx context.Context, r io.Reader, filename string, parent int64) (putio.Upload, error)
}

// RemoteError is a non-2xx answer to a file download.
type RemoteError struct {
	FileID     int64
	StatusCode int
}

func (e *RemoteError) Error() string {
	return fmt.Sprintf("download of file %d returned HTTP %d", e.FileID, e.StatusCode)
}

type Client struct {
	files       filesAPI
	account     *putio.AccountService
	httpClient  *http.Client
	reportEvery int64
}

func NewClient(token string) *Client {
	tokenSource := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token})
	oauthClient := oauth2.NewClient(context.Background(), tokenSource)
	oauthClient.Transport = otelhttp.NewTransport(oauthClient.Transport)

	putioClient := putio.NewClient(oauthClient)

	return &Client{
		files:       putioClient.Files,
		account:     putioClient.Account,
		httpClient:  &http.Client{Transport: otelhttp.NewTransport(http.DefaultTransport)},
		reportEvery: defaultReportEvery,
	}
}

// Authenticate checks the token by fetching the account info.
func (c *Client) Authenticate(ctx context.Context) error {
	logger := logctx.LoggerFromContext(ctx)

	if c.account == nil {
		return nil
	}

	user, err := c.account.Info(ctx)
	if err != nil {
		logger.ErrorContext(ctx, "failed to get account info", "err", err)

		return fmt.Errorf("failed to get account info: %w", err)
	}

	logger.InfoContext(ctx, "authenticated with Put.io", "user", user.Username)

	return nil
}

// Stat returns the file's metadata. Folders are rejected.
func (c *Client) Stat(ctx context.Context, fileID int64) (File, error) {
	f, err := c.files.Get(ctx, fileID)
	if err != nil {
		return File{}, fmt.Errorf("failed to get file: %w", err)
	}

	if f.IsDir() {
		return File{}, fmt.Errorf("file %d is a folder", fileID)
	}

	return File{ID: f.ID, Name: f.Name, Size: f.Size, ParentID: f.ParentID}, nil
}

// Download streams the file into dst and returns the number of bytes written.
func (c *Client) Download(ctx context.Context, file File, dst io.Writer, report func(current, total int64)) (int64, error) {
	logger := logctx.LoggerFromContext(ctx).With("file_id", file.ID)

	url, err := c.files.URL(ctx, file.ID, false)
	if err != nil {
		logger.ErrorContext(ctx, "failed to get file download url", "err", err)

		return 0, fmt.Errorf("failed to get file download url: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to create download request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, fmt.Errorf("failed to get file: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return 0, &RemoteError{FileID: file.ID, StatusCode: resp.StatusCode}
	}

	pr := progress.NewReader(resp.Body, file.Size, c.reportEvery, report)

	n, err := io.Copy(dst, pr)
	if err != nil {
		return n, fmt.Errorf("failed to copy file body: %w", err)
	}

	logger.DebugContext(ctx, "download finished", "bytes", n)

	return n, nil
}

// Upload sends src to put.io as name inside parentID.
func (c *Client) Upload(ctx context.Context, src io.Reader, size int64, name string, parentID int64, report func(current, total int64)) (File, error) {
	pr := progress.NewReader(src, size, c.reportEvery, report)

	upload, err := c.files.Upload(ctx, pr, name, parentID)
	if err != nil {
		return File{}, fmt.Errorf("failed to upload file: %w", err)
	}

	if upload.File == nil {
		return File{}, fmt.Errorf("upload of %s returned no file", name)
	}

	return File{ID: upload.File.ID, Name: upload.File.Name, Size: upload.File.Size, ParentID: upload.File.ParentID}, nil
}
