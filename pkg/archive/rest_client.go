package archive

import (
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/pkg/errors"
)

// RestClient implements Client against the archive's HTTP metadata service.
//
//	GET {base}/api/files?dataset=&name=&subdir=&recurse=   -> {"files": [...]}
//	GET {base}/api/files/{id}/content                      -> file bytes
type RestClient struct {
	client *resty.Client
}

type RestClientOptionFN func(*RestClient)

func NewRestClient(baseURL string, optFNs ...RestClientOptionFN) *RestClient {
	c := &RestClient{
		client: resty.New().
			SetBaseURL(baseURL).
			SetTimeout(5 * time.Minute).
			SetRetryCount(2).
			SetRetryWaitTime(2 * time.Second),
	}

	for _, optfn := range optFNs {
		optfn(c)
	}

	return c
}

func WithTimeout(timeout time.Duration) RestClientOptionFN {
	return func(c *RestClient) {
		c.client.SetTimeout(timeout)
	}
}

func WithRetries(count int, wait time.Duration) RestClientOptionFN {
	return func(c *RestClient) {
		c.client.SetRetryCount(count).SetRetryWaitTime(wait)
	}
}

func WithAuthToken(token string) RestClientOptionFN {
	return func(c *RestClient) {
		if token != "" {
			c.client.SetAuthToken(token)
		}
	}
}

type findFilesResponse struct {
	Files []FileDescriptor `json:"files"`
}

// ErrorResponse is the JSON body the archive returns with a failed request.
type ErrorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (c *RestClient) FindFiles(namePattern, subdirPattern, datasetName string, recurse bool) ([]FileDescriptor, error) {
	var (
		result  findFilesResponse
		errResp ErrorResponse
	)

	resp, err := c.client.R().
		SetQueryParams(map[string]string{
			"dataset": datasetName,
			"name":    namePattern,
			"subdir":  subdirPattern,
			"recurse": strconv.FormatBool(recurse),
		}).
		SetResult(&result).
		SetError(&errResp).
		Get("/api/files")

	if err != nil {
		return nil, errors.Wrapf(err, "archive query for dataset %s failed", datasetName)
	}

	if resp.StatusCode() == http.StatusNotFound {
		return nil, nil
	}

	if resp.IsError() {
		return nil, toError(resp, &errResp)
	}

	return result.Files, nil
}

func (c *RestClient) Download(fd FileDescriptor, w io.Writer) error {
	resp, err := c.client.R().
		SetDoNotParseResponse(true).
		Get(fmt.Sprintf("/api/files/%d/content", fd.FileID))

	if err != nil {
		return errors.Wrapf(err, "archive download of file %d (%s) failed", fd.FileID, fd.FileName)
	}

	body := resp.RawBody()
	defer func() { _ = body.Close() }()

	switch {
	case resp.StatusCode() == http.StatusNotFound:
		return errors.Wrapf(ErrNotFound, "file %d (%s)", fd.FileID, fd.FileName)
	case resp.StatusCode() >= 400:
		return errors.Errorf("archive download of file %d (%s) failed (HTTP Status: %d)", fd.FileID, fd.FileName, resp.StatusCode())
	}

	if _, err := io.Copy(w, body); err != nil {
		return errors.Wrapf(err, "reading archive content for file %d", fd.FileID)
	}

	return nil
}

func toError(resp *resty.Response, errResp *ErrorResponse) error {
	if errResp.Code == "" && errResp.Message == "" {
		return errors.Errorf("archive request failed (HTTP Status: %d)", resp.StatusCode())
	}

	return errors.Errorf("archive request failed (HTTP Status: %d)- %s: %s", resp.StatusCode(), errResp.Code, errResp.Message)
}
