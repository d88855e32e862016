package stt

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
)

// maxErrorBody bounds how much of a failed response is quoted in errors.
const maxErrorBody = 512

// HTTPError is a non-200 answer from a batch transcription endpoint.
type HTTPError struct {
	Engine string
	Status int
	Body   string
}

func (e *HTTPError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("%s: server returned HTTP %d", e.Engine, e.Status)
	}
	return fmt.Sprintf("%s: server returned HTTP %d: %s", e.Engine, e.Status, e.Body)
}

// Upload is one multipart/form-data transcription request in the layout the
// Whisper family of servers accepts: the clip as the "file" part followed by
// plain text fields. Fields with an empty value are left out.
type Upload struct {
	Engine string
	URL    string
	Header http.Header
	WAV    []byte
	Fields [][2]string
}

// PostForm sends u with client and returns the trimmed "text" member of the
// JSON answer.
func PostForm(ctx context.Context, client *http.Client, u Upload) (string, error) {
	body, contentType, err := u.encode()
	if err != nil {
		return "", fmt.Errorf("%s: %w", u.Engine, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u.URL, body)
	if err != nil {
		return "", fmt.Errorf("%s: create request: %w", u.Engine, err)
	}
	for k, vs := range u.Header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	req.Header.Set("Content-Type", contentType)

	resp, err := client.Do(req)
	if err != nil {
		return "", fmt.Errorf("%s: http request: %w", u.Engine, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("%s: read response body: %w", u.Engine, err)
	}
	if resp.StatusCode != http.StatusOK {
		msg := strings.TrimSpace(string(data))
		if len(msg) > maxErrorBody {
			msg = msg[:maxErrorBody] + "..."
		}
		return "", &HTTPError{Engine: u.Engine, Status: resp.StatusCode, Body: msg}
	}

	var result struct {
		Text string `json:"text"`
	}
	if err := json.Unmarshal(data, &result); err != nil {
		return "", fmt.Errorf("%s: parse JSON response: %w", u.Engine, err)
	}
	return strings.TrimSpace(result.Text), nil
}

func (u Upload) encode() (*bytes.Buffer, string, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)

	part, err := mw.CreateFormFile("file", "audio.wav")
	if err != nil {
		return nil, "", fmt.Errorf("create form file: %w", err)
	}
	if _, err := part.Write(u.WAV); err != nil {
		return nil, "", fmt.Errorf("write wav data: %w", err)
	}
	for _, f := range u.Fields {
		if f[1] == "" {
			continue
		}
		if err := mw.WriteField(f[0], f[1]); err != nil {
			return nil, "", fmt.Errorf("write %s field: %w", f[0], err)
		}
	}
	if err := mw.Close(); err != nil {
		return nil, "", fmt.Errorf("close multipart writer: %w", err)
	}
	return &buf, mw.FormDataContentType(), nil
}
