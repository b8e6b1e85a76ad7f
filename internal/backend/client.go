package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"strings"
	"time"

	"scribeit/internal/models"
)

const (
	defaultTimeout       = 30 * time.Second
	defaultUploadTimeout = 2 * time.Hour
	maxErrorBody         = 4 << 10
)

// Credential is the bearer token capability handed to every authenticated call.
type Credential struct {
	AccessToken string
}

// Valid reports whether the credential carries a token.
func (c Credential) Valid() bool {
	return strings.TrimSpace(c.AccessToken) != ""
}

// Client talks to the ScribeIt API.
type Client struct {
	baseURL string
	http    *http.Client
	upload  *http.Client
}

// NewClient builds a client for baseURL. Uploads get their own, longer timeout.
func NewClient(baseURL string, timeout, uploadTimeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	if uploadTimeout <= 0 {
		uploadTimeout = defaultUploadTimeout
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: timeout},
		upload:  &http.Client{Timeout: uploadTimeout},
	}
}

// BaseURL returns the API root the client is configured with.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// LoginResult is the token endpoint response.
type LoginResult struct {
	AccessToken string    `json:"access_token"`
	TokenType   string    `json:"token_type"`
	User        LoginUser `json:"user"`
}

type LoginUser struct {
	ID               string  `json:"id"`
	Email            string  `json:"email"`
	FirstName        string  `json:"first_name"`
	LastName         string  `json:"last_name"`
	SubscriptionTier string  `json:"subscription_tier"`
	MinutesRemaining float64 `json:"minutes_remaining"`
}

// DisplayName joins first and last name, falling back to the email.
func (u LoginUser) DisplayName() string {
	name := strings.TrimSpace(strings.TrimSpace(u.FirstName) + " " + strings.TrimSpace(u.LastName))
	if name == "" {
		return u.Email
	}
	return name
}

// Login exchanges email and password for an access token.
func (c *Client) Login(ctx context.Context, email, password string) (*LoginResult, error) {
	form := url.Values{}
	form.Set("username", email)
	form.Set("password", password)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/auth/token", strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("build login request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	var out LoginResult
	if err := c.do(c.http, req, "login", &out); err != nil {
		return nil, err
	}
	if out.AccessToken == "" {
		return nil, &ServerError{Op: "login", StatusCode: http.StatusBadGateway, Detail: "empty access token"}
	}
	return &out, nil
}

// ListSummaries returns the dashboard listing.
func (c *Client) ListSummaries(ctx context.Context, cred Credential) ([]models.SummaryListItem, error) {
	var out []models.SummaryListItem
	if err := c.getJSON(ctx, cred, "/api/dashboard/summaries", "list summaries", &out); err != nil {
		return nil, err
	}
	if out == nil {
		out = make([]models.SummaryListItem, 0)
	}
	return out, nil
}

// Usage returns the minute quota for the account.
func (c *Client) Usage(ctx context.Context, cred Credential) (*models.Usage, error) {
	var out models.Usage
	if err := c.getJSON(ctx, cred, "/api/dashboard/usage", "load usage", &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// GetResult fetches the full summary record.
func (c *Client) GetResult(ctx context.Context, cred Credential, id string) (*models.SummaryRecord, error) {
	var out models.SummaryRecord
	if err := c.getJSON(ctx, cred, "/api/process/result/"+url.PathEscape(id), "fetch summary", &out); err != nil {
		return nil, err
	}
	if out.ID == "" {
		out.ID = id
	}
	return &out, nil
}

// GetStatus fetches only the status fields of a summary.
func (c *Client) GetStatus(ctx context.Context, cred Credential, id string) (*models.SummaryRecord, error) {
	var out models.SummaryRecord
	if err := c.getJSON(ctx, cred, "/api/process/status/"+url.PathEscape(id), "fetch summary status", &out); err != nil {
		return nil, err
	}
	if out.ID == "" {
		out.ID = id
	}
	return &out, nil
}

// MediaUpload describes a file streamed to the processing endpoint.
type MediaUpload struct {
	FileName string
	MimeType string
	Title    string
	Body     io.Reader
}

type submitResponse struct {
	Message   string          `json:"message"`
	SummaryID json.RawMessage `json:"summary_id"`
}

func (r submitResponse) id() string {
	var s string
	if err := json.Unmarshal(r.SummaryID, &s); err == nil {
		return s
	}
	return strings.Trim(string(r.SummaryID), `"`)
}

// UploadMedia streams the file as multipart form data and returns the summary id.
func (c *Client) UploadMedia(ctx context.Context, cred Credential, m MediaUpload) (string, error) {
	if !cred.Valid() {
		return "", ErrNoCredential
	}
	pr, pw := io.Pipe()
	mw := multipart.NewWriter(pw)
	go func() {
		pw.CloseWithError(writeMediaForm(mw, m))
	}()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/process/upload", pr)
	if err != nil {
		pr.Close()
		return "", fmt.Errorf("build upload request: %w", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+cred.AccessToken)

	var out submitResponse
	if err := c.do(c.upload, req, "upload media", &out); err != nil {
		pr.CloseWithError(err)
		return "", err
	}
	id := out.id()
	if id == "" {
		return "", &ServerError{Op: "upload media", StatusCode: http.StatusBadGateway, Detail: "missing summary id"}
	}
	return id, nil
}

func writeMediaForm(mw *multipart.Writer, m MediaUpload) error {
	if err := mw.WriteField("title", m.Title); err != nil {
		return err
	}
	ct := m.MimeType
	if ct == "" {
		ct = "application/octet-stream"
	}
	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename="%s"`, escapeQuotes(m.FileName)))
	h.Set("Content-Type", ct)
	part, err := mw.CreatePart(h)
	if err != nil {
		return err
	}
	if _, err := io.Copy(part, m.Body); err != nil {
		return err
	}
	return mw.Close()
}

var quoteEscaper = strings.NewReplacer("\\", "\\\\", `"`, "\\\"")

func escapeQuotes(s string) string {
	return quoteEscaper.Replace(s)
}

// SubmitYouTube queues a YouTube video for processing and returns the summary id.
func (c *Client) SubmitYouTube(ctx context.Context, cred Credential, videoURL, title string) (string, error) {
	if !cred.Valid() {
		return "", ErrNoCredential
	}
	payload, err := json.Marshal(map[string]string{"url": videoURL, "title": title})
	if err != nil {
		return "", fmt.Errorf("encode youtube request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/youtube/process", bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("build youtube request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+cred.AccessToken)

	var out submitResponse
	if err := c.do(c.http, req, "submit youtube", &out); err != nil {
		return "", err
	}
	id := out.id()
	if id == "" {
		return "", &ServerError{Op: "submit youtube", StatusCode: http.StatusBadGateway, Detail: "missing summary id"}
	}
	return id, nil
}

func (c *Client) getJSON(ctx context.Context, cred Credential, path, op string, out any) error {
	if !cred.Valid() {
		return ErrNoCredential
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("build %s request: %w", op, err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Authorization", "Bearer "+cred.AccessToken)
	return c.do(c.http, req, op, out)
}

func (c *Client) do(hc *http.Client, req *http.Request, op string, out any) error {
	resp, err := hc.Do(req)
	if err != nil {
		return &TransportError{Op: op, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &ServerError{Op: op, StatusCode: resp.StatusCode, Detail: readDetail(resp.Body)}
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		if errors.Is(err, io.EOF) {
			return &ServerError{Op: op, StatusCode: resp.StatusCode, Detail: "empty response body"}
		}
		return &TransportError{Op: op, Err: fmt.Errorf("decode response: %w", err)}
	}
	return nil
}

// readDetail extracts FastAPI's {"detail": ...} or returns the trimmed body.
func readDetail(r io.Reader) string {
	raw, _ := io.ReadAll(io.LimitReader(r, maxErrorBody))
	var body struct {
		Detail json.RawMessage `json:"detail"`
	}
	if err := json.Unmarshal(raw, &body); err == nil && len(body.Detail) > 0 {
		var s string
		if err := json.Unmarshal(body.Detail, &s); err == nil {
			return s
		}
		return string(body.Detail)
	}
	return strings.TrimSpace(string(raw))
}
