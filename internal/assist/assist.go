// Package assist talks to the writing assistant service: free-form chat
// and generation of a draft section from the current document.
package assist

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	htmltomarkdown "github.com/JohannesKaufmann/html-to-markdown/v2"

	"documedix/api/internal/document"
)

var (
	ErrTransport         = errors.New("assist transport error")
	ErrMalformedResponse = errors.New("assist malformed response")
	ErrEmptyMessage      = errors.New("message is empty")
	ErrItemRequired      = errors.New("item code is required")
	ErrEmptyContent      = errors.New("document has no content")
)

// Replies shown in the transcript when chat fails.
const (
	ChatUnavailableReply = "채팅 서버 연결에 실패했습니다. API 서버가 실행 중인지 확인해주세요."
	ChatFailedReply      = "오류가 발생했습니다."
)

// DraftSectionTitle is the title of the section a generated draft lands in.
const DraftSectionTitle = "AI 생성 초안"

// ServiceError is a reply with success=false.
type ServiceError struct {
	Status  int
	Message string
}

func (e *ServiceError) Error() string {
	return fmt.Sprintf("assist error (status %d): %s", e.Status, e.Message)
}

// ChatFallback is the transcript text for a failed chat call.
func ChatFallback(err error) string {
	var svcErr *ServiceError
	if errors.As(err, &svcErr) {
		if svcErr.Message != "" {
			return svcErr.Message
		}
		return ChatFailedReply
	}
	return ChatUnavailableReply
}

type Client struct {
	baseURL    string
	httpClient *http.Client
	renderer   *Renderer
}

func NewClient(baseURL string, timeout time.Duration) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
		renderer:   NewRenderer(),
	}
}

type chatRequest struct {
	Message  string `json:"message"`
	Category string `json:"category,omitempty"`
}

type reply struct {
	Success bool    `json:"success"`
	Reply   *string `json:"reply"`
	Draft   *string `json:"draft"`
	Error   *string `json:"error"`
}

// Chat sends one user message and returns the assistant's reply as
// sanitized HTML.
func (c *Client) Chat(ctx context.Context, message, category string) (string, error) {
	if strings.TrimSpace(message) == "" {
		return "", ErrEmptyMessage
	}
	var out reply
	if err := c.post(ctx, "/api/chat", chatRequest{Message: message, Category: category}, &out); err != nil {
		return "", err
	}
	if out.Reply == nil {
		return "", fmt.Errorf("%w: chat reply missing", ErrMalformedResponse)
	}
	return c.renderer.Render(*out.Reply)
}

// DraftRequest carries what the draft generator needs. Grade and ItemCode
// are chosen by the user; Sections supply the text.
type DraftRequest struct {
	Category int
	Sections []document.Section
	Grade    int
	ItemCode string
}

type draftBody struct {
	Category    string `json:"category"`
	TextContent string `json:"textContent"`
	Grade       int    `json:"grade"`
	ItemCode    string `json:"itemCode"`
}

// Validate checks the request without touching the network.
func (r DraftRequest) Validate() error {
	if strings.TrimSpace(r.ItemCode) == "" {
		return ErrItemRequired
	}
	if strings.TrimSpace(ContentHTML(r.Sections)) == "" {
		return ErrEmptyContent
	}
	return nil
}

// GenerateDraft asks for a draft and returns it as sanitized HTML.
func (c *Client) GenerateDraft(ctx context.Context, req DraftRequest) (string, error) {
	if err := req.Validate(); err != nil {
		return "", err
	}
	text, err := htmltomarkdown.ConvertString(ContentHTML(req.Sections))
	if err != nil {
		return "", fmt.Errorf("convert content to markdown: %w", err)
	}
	body := draftBody{
		Category:    document.CategoryTitle(req.Category),
		TextContent: text,
		Grade:       req.Grade,
		ItemCode:    strings.TrimSpace(req.ItemCode),
	}
	var out reply
	if err := c.post(ctx, "/api/generate-draft", body, &out); err != nil {
		return "", err
	}
	if out.Draft == nil {
		return "", fmt.Errorf("%w: draft missing", ErrMalformedResponse)
	}
	return c.renderer.Render(*out.Draft)
}

// ContentHTML joins the non-blank content items of all sections, a blank
// line between each.
func ContentHTML(sections []document.Section) string {
	var parts []string
	for _, s := range sections {
		for _, it := range s.Items {
			if c, ok := it.(document.Content); ok && strings.TrimSpace(c.HTML) != "" && strings.TrimSpace(c.HTML) != document.EmptyContent {
				parts = append(parts, c.HTML)
			}
		}
	}
	return strings.Join(parts, "\n\n")
}

func (c *Client) post(ctx context.Context, path string, in any, out *reply) error {
	payload, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("marshal %s request: %w", path, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("build %s request: %w", path, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %s: %v", ErrTransport, path, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	if err != nil {
		return fmt.Errorf("%w: %s: read body: %v", ErrTransport, path, err)
	}
	jsonErr := json.Unmarshal(raw, out)
	switch {
	case jsonErr == nil && !out.Success:
		msg := ""
		if out.Error != nil {
			msg = *out.Error
		}
		return &ServiceError{Status: resp.StatusCode, Message: msg}
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		return fmt.Errorf("%w: %s: status %d", ErrTransport, path, resp.StatusCode)
	case jsonErr != nil:
		return fmt.Errorf("%w: %s: %v", ErrMalformedResponse, path, jsonErr)
	}
	return nil
}
