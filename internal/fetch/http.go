package fetch

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"connector-sync/internal/models"
)

const maxErrorBodyBytes = 512

// DoJSON sends req and decodes a successful JSON body into out. Transport failures and
// non-2xx answers become *models.PageFetchError; undecodable bodies become
// *models.MalformedResponseError. offset only labels the error.
func DoJSON(client *http.Client, req *http.Request, offset int, out any) error {
	resp, err := client.Do(req)
	if err != nil {
		return &models.PageFetchError{Offset: offset, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodyBytes))
		return &models.PageFetchError{
			Offset:     offset,
			StatusCode: resp.StatusCode,
			Err:        errors.New(http.StatusText(resp.StatusCode) + bodySuffix(body)),
		}
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		if errors.Is(err, io.EOF) {
			err = errors.New("empty body")
		}
		return &models.MalformedResponseError{Offset: offset, Err: err}
	}
	return nil
}

func bodySuffix(body []byte) string {
	if len(body) == 0 {
		return ""
	}
	return ": " + string(body)
}
