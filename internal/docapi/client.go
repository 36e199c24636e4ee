package docapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// Client calls the document backend endpoint.
type Client struct {
	endpoint   string
	httpClient *http.Client
}

func NewClient(endpoint string, timeout time.Duration) *Client {
	return NewClientWithHTTP(endpoint, &http.Client{Timeout: timeout})
}

func NewClientWithHTTP(endpoint string, httpClient *http.Client) *Client {
	return &Client{endpoint: endpoint, httpClient: httpClient}
}

// SaveDocument stores the document body and uploads files as files[0..N-1].
// The returned files are in upload order.
func (c *Client) SaveDocument(ctx context.Context, req SaveRequest) (SaveResult, error) {
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)

	fields := [][2]string{
		{"action", ActionSave},
		{"doc_type", strconv.Itoa(req.DocType)},
		{"report_type", strconv.Itoa(req.ReportType)},
		{"doc_grade", strconv.Itoa(req.DocGrade)},
		{"page_type", req.PageType},
		{"doc_content", req.DocContent},
	}
	if req.WRID != "" {
		fields = append(fields, [2]string{"wr_id", req.WRID})
	}
	for _, f := range fields {
		if err := mw.WriteField(f[0], f[1]); err != nil {
			return SaveResult{}, fmt.Errorf("write field %s: %w", f[0], err)
		}
	}
	for i, f := range req.Files {
		part, err := mw.CreatePart(filePartHeader(fmt.Sprintf("files[%d]", i), f))
		if err != nil {
			return SaveResult{}, fmt.Errorf("create file part %d: %w", i, err)
		}
		if _, err := part.Write(f.Data); err != nil {
			return SaveResult{}, fmt.Errorf("write file part %d: %w", i, err)
		}
	}
	if err := mw.Close(); err != nil {
		return SaveResult{}, fmt.Errorf("close multipart: %w", err)
	}

	env, err := c.post(ctx, ActionSave, mw.FormDataContentType(), &body)
	if err != nil {
		return SaveResult{}, err
	}
	var result SaveResult
	if err := decodeData(env.Data, &result); err != nil {
		return SaveResult{}, fmt.Errorf("%w: %s data: %v", ErrMalformedResponse, ActionSave, err)
	}
	return result, nil
}

func (c *Client) LoadDocument(ctx context.Context, wrID string) (Document, error) {
	env, err := c.postForm(ctx, ActionLoad, url.Values{"wr_id": {wrID}})
	if err != nil {
		return Document{}, err
	}
	var doc Document
	if err := decodeData(env.Data, &doc); err != nil {
		return Document{}, fmt.Errorf("%w: %s data: %v", ErrMalformedResponse, ActionLoad, err)
	}
	if doc.WRID == "" {
		doc.WRID = FlexString(wrID)
	}
	return doc, nil
}

// GetFiles lists the attachments stored for a document.
func (c *Client) GetFiles(ctx context.Context, wrID string) ([]StoredFile, error) {
	env, err := c.postForm(ctx, ActionFiles, url.Values{"wr_id": {wrID}})
	if err != nil {
		return nil, err
	}
	var files []StoredFile
	if err := decodeData(env.Files, &files); err != nil {
		return nil, fmt.Errorf("%w: %s files: %v", ErrMalformedResponse, ActionFiles, err)
	}
	return files, nil
}

func (c *Client) ListDocuments(ctx context.Context) ([]Document, error) {
	env, err := c.postForm(ctx, ActionList, url.Values{})
	if err != nil {
		return nil, err
	}
	var docs []Document
	if err := decodeData(env.Data, &docs); err != nil {
		return nil, fmt.Errorf("%w: %s data: %v", ErrMalformedResponse, ActionList, err)
	}
	return docs, nil
}

func (c *Client) postForm(ctx context.Context, action string, values url.Values) (envelope, error) {
	values.Set("action", action)
	return c.post(ctx, action, "application/x-www-form-urlencoded", strings.NewReader(values.Encode()))
}

func (c *Client) post(ctx context.Context, action, contentType string, body io.Reader) (envelope, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, body)
	if err != nil {
		return envelope{}, fmt.Errorf("build %s request: %w", action, err)
	}
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return envelope{}, fmt.Errorf("%w: %s: %v", ErrTransport, action, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return envelope{}, fmt.Errorf("%w: %s: read body: %v", ErrTransport, action, err)
	}

	var env envelope
	jsonErr := json.Unmarshal(raw, &env)
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		// Keep the backend's message when it sent one.
		if jsonErr == nil && env.Message != "" {
			return envelope{}, fmt.Errorf("%w: %s: status %d: %s", ErrTransport, action, resp.StatusCode, env.Message)
		}
		return envelope{}, fmt.Errorf("%w: %s: status %d", ErrTransport, action, resp.StatusCode)
	}
	if jsonErr != nil {
		return envelope{}, fmt.Errorf("%w: %s: %v", ErrMalformedResponse, action, jsonErr)
	}
	if !env.Success {
		return envelope{}, &APIError{Action: action, Message: env.Message}
	}
	return env, nil
}

// decodeData treats an absent or null field as empty.
func decodeData(raw json.RawMessage, target any) error {
	if len(raw) == 0 || string(raw) == "null" {
		return nil
	}
	return json.Unmarshal(raw, target)
}

func filePartHeader(field string, f FilePart) textproto.MIMEHeader {
	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="%s"; filename="%s"`, escapeQuotes(field), escapeQuotes(f.Name)))
	contentType := f.ContentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	h.Set("Content-Type", contentType)
	return h
}

var quoteEscaper = strings.NewReplacer("\\", "\\\\", `"`, "\\\"")

func escapeQuotes(s string) string {
	return quoteEscaper.Replace(s)
}
