// Package gmail implements the listing-request mailbox on top of the Gmail
// REST API. OAuth credentials and the refresh token are produced out of band
// (a one-time consent flow); this client only refreshes access tokens.
package gmail

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"mime"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/lithammer/dedent"

	"relister/internal/mail"
)

const (
	apiBaseURL = "https://gmail.googleapis.com/gmail/v1"
	tokenURL   = "https://oauth2.googleapis.com/token"

	// requestSubject marks a mail as a listing request.
	requestSubject = "出品依頼"
	// processedLabelName tags requests that were handled, successfully or
	// not. The query in ListRequests excludes it, which is what makes
	// MarkProcessed the dedup mechanism for the mailbox.
	processedLabelName = "出品済み"
)

var replyTemplate = dedent.Dedent(`
	出品が完了しました。

	商品名: %s
	オークションID: %s
	https://page.auctions.yahoo.co.jp/jp/auction/%s
`)

type oauthCredentials struct {
	ClientID     string `json:"client_id"`
	ClientSecret string `json:"client_secret"`
}

type credentialsFile struct {
	Installed *oauthCredentials `json:"installed"`
	Web       *oauthCredentials `json:"web"`
}

type storedToken struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token"`
	Expiry       time.Time `json:"expiry"`
}

type ClientOpts struct {
	CredentialsPath string
	TokenPath       string
	// BaseURL and TokenURL override the Google endpoints in tests.
	BaseURL  string
	TokenURL string
}

// Client talks to the Gmail API for one mailbox. Safe for concurrent use.
type Client struct {
	httpClient *resty.Client
	authClient *resty.Client
	tokenURL   string
	tokenPath  string
	creds      oauthCredentials
	now        func() time.Time

	mu               sync.Mutex
	token            storedToken
	processedLabelID string
}

var _ mail.Inbox = (*Client)(nil)

func NewClient(opts ClientOpts) (*Client, error) {
	c := &Client{
		tokenURL:  tokenURL,
		tokenPath: opts.TokenPath,
		now:       time.Now,
	}
	if opts.TokenURL != "" {
		c.tokenURL = opts.TokenURL
	}
	baseURL := apiBaseURL
	if opts.BaseURL != "" {
		baseURL = opts.BaseURL
	}
	c.httpClient = resty.New().
		SetBaseURL(baseURL).
		SetHeader("Accept", "application/json")
	c.authClient = resty.New()

	raw, err := os.ReadFile(opts.CredentialsPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read gmail credentials: %w", err)
	}
	var creds credentialsFile
	if err := json.Unmarshal(raw, &creds); err != nil {
		return nil, fmt.Errorf("failed to parse gmail credentials: %w", err)
	}
	switch {
	case creds.Installed != nil:
		c.creds = *creds.Installed
	case creds.Web != nil:
		c.creds = *creds.Web
	default:
		return nil, fmt.Errorf("gmail credentials %s have neither installed nor web key", opts.CredentialsPath)
	}

	raw, err = os.ReadFile(opts.TokenPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read gmail token: %w", err)
	}
	if err := json.Unmarshal(raw, &c.token); err != nil {
		return nil, fmt.Errorf("failed to parse gmail token: %w", err)
	}
	if c.token.RefreshToken == "" {
		return nil, fmt.Errorf("gmail token %s has no refresh token", opts.TokenPath)
	}
	return c, nil
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   int    `json:"expires_in"`
}

// accessToken returns a valid access token, refreshing when the cached one
// is expired or within a minute of expiring.
func (c *Client) accessToken(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.token.AccessToken != "" && c.now().Add(time.Minute).Before(c.token.Expiry) {
		return c.token.AccessToken, nil
	}

	result := &tokenResponse{}
	_, err := handleError(c.authClient.NewRequest().
		SetContext(ctx).
		SetFormData(map[string]string{
			"client_id":     c.creds.ClientID,
			"client_secret": c.creds.ClientSecret,
			"refresh_token": c.token.RefreshToken,
			"grant_type":    "refresh_token",
		}).
		SetResult(result).
		Post(c.tokenURL))
	if err != nil {
		return "", fmt.Errorf("failed to refresh gmail access token: %w", err)
	}

	c.token.AccessToken = result.AccessToken
	c.token.Expiry = c.now().Add(time.Duration(result.ExpiresIn) * time.Second)
	if raw, err := json.Marshal(c.token); err == nil {
		// Persisting the refreshed token is best-effort; the refresh
		// token itself never changes here.
		_ = os.WriteFile(c.tokenPath, raw, 0o600)
	}
	return c.token.AccessToken, nil
}

func (c *Client) req(ctx context.Context, result any) (*resty.Request, error) {
	token, err := c.accessToken(ctx)
	if err != nil {
		return nil, err
	}
	request := c.httpClient.
		NewRequest().
		SetContext(ctx).
		SetAuthToken(token)
	if result != nil {
		request.SetResult(result)
	}
	return request, nil
}

func handleError(res *resty.Response, err error) (*resty.Response, error) {
	if err != nil {
		return res, err
	}
	if res.IsError() {
		return res, fmt.Errorf("request failed: %s %s (status: %d)", res.Request.Method, res.Request.URL, res.StatusCode())
	}
	return res, nil
}

type messageRef struct {
	ID       string `json:"id"`
	ThreadID string `json:"threadId"`
}

type messageList struct {
	Messages []messageRef `json:"messages"`
}

type header struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

type partBody struct {
	AttachmentID string `json:"attachmentId"`
	Data         string `json:"data"`
}

type messagePart struct {
	MimeType string         `json:"mimeType"`
	Filename string         `json:"filename"`
	Headers  []header       `json:"headers"`
	Body     partBody       `json:"body"`
	Parts    []*messagePart `json:"parts"`
}

type apiMessage struct {
	ID       string       `json:"id"`
	ThreadID string       `json:"threadId"`
	Payload  *messagePart `json:"payload"`
}

// ListRequests returns unprocessed listing-request mails, oldest first.
func (c *Client) ListRequests(ctx context.Context) ([]mail.Message, error) {
	list := &messageList{}
	request, err := c.req(ctx, list)
	if err != nil {
		return nil, err
	}
	_, err = handleError(request.
		SetQueryParams(map[string]string{
			"q":          fmt.Sprintf(`subject:"%s" -label:%s`, requestSubject, processedLabelName),
			"maxResults": "50",
		}).
		Get("/users/me/messages"))
	if err != nil {
		return nil, fmt.Errorf("failed to list request mails: %w", err)
	}

	messages := make([]mail.Message, 0, len(list.Messages))
	// The API returns newest first; requests are handled in arrival order.
	for i := len(list.Messages) - 1; i >= 0; i-- {
		msg, err := c.getMessage(ctx, list.Messages[i].ID)
		if err != nil {
			return nil, err
		}
		messages = append(messages, mail.Message{
			ID:      msg.ID,
			Subject: headerValue(msg.Payload, "Subject"),
			Body:    messageBody(msg.Payload),
		})
	}
	return messages, nil
}

func (c *Client) getMessage(ctx context.Context, id string) (*apiMessage, error) {
	msg := &apiMessage{}
	request, err := c.req(ctx, msg)
	if err != nil {
		return nil, err
	}
	_, err = handleError(request.
		SetQueryParam("format", "full").
		Get("/users/me/messages/" + id))
	if err != nil {
		return nil, fmt.Errorf("failed to fetch mail %s: %w", id, err)
	}
	return msg, nil
}

// MarkProcessed adds the processed label, creating it on first use.
func (c *Client) MarkProcessed(ctx context.Context, messageID string) error {
	labelID, err := c.ensureProcessedLabel(ctx)
	if err != nil {
		return err
	}
	request, err := c.req(ctx, nil)
	if err != nil {
		return err
	}
	_, err = handleError(request.
		SetBody(map[string]any{"addLabelIds": []string{labelID}}).
		Post("/users/me/messages/" + messageID + "/modify"))
	if err != nil {
		return fmt.Errorf("failed to mark mail %s processed: %w", messageID, err)
	}
	return nil
}

type labelList struct {
	Labels []struct {
		ID   string `json:"id"`
		Name string `json:"name"`
	} `json:"labels"`
}

func (c *Client) ensureProcessedLabel(ctx context.Context) (string, error) {
	c.mu.Lock()
	cached := c.processedLabelID
	c.mu.Unlock()
	if cached != "" {
		return cached, nil
	}

	list := &labelList{}
	request, err := c.req(ctx, list)
	if err != nil {
		return "", err
	}
	if _, err := handleError(request.Get("/users/me/labels")); err != nil {
		return "", fmt.Errorf("failed to list labels: %w", err)
	}
	var labelID string
	for _, l := range list.Labels {
		if l.Name == processedLabelName {
			labelID = l.ID
			break
		}
	}

	if labelID == "" {
		created := &struct {
			ID string `json:"id"`
		}{}
		request, err := c.req(ctx, created)
		if err != nil {
			return "", err
		}
		_, err = handleError(request.
			SetBody(map[string]string{"name": processedLabelName}).
			Post("/users/me/labels"))
		if err != nil {
			return "", fmt.Errorf("failed to create label %s: %w", processedLabelName, err)
		}
		labelID = created.ID
	}

	c.mu.Lock()
	c.processedLabelID = labelID
	c.mu.Unlock()
	return labelID, nil
}

// DownloadAttachments saves the mail's attachments into dir, named by source
// mail and attachment index so reruns overwrite instead of accumulating.
func (c *Client) DownloadAttachments(ctx context.Context, messageID, dir string) ([]string, error) {
	msg, err := c.getMessage(ctx, messageID)
	if err != nil {
		return nil, err
	}

	var paths []string
	n := 0
	for _, part := range flattenParts(msg.Payload) {
		if part.Filename == "" || part.Body.AttachmentID == "" {
			continue
		}
		data, err := c.fetchAttachment(ctx, messageID, part.Body.AttachmentID)
		if err != nil {
			return nil, err
		}
		path := filepath.Join(dir, fmt.Sprintf("%s_%02d%s", messageID, n, filepath.Ext(part.Filename)))
		if err := os.WriteFile(path, data, 0o644); err != nil {
			return nil, fmt.Errorf("failed to save attachment: %w", err)
		}
		paths = append(paths, path)
		n++
	}
	return paths, nil
}

func (c *Client) fetchAttachment(ctx context.Context, messageID, attachmentID string) ([]byte, error) {
	body := &partBody{}
	request, err := c.req(ctx, body)
	if err != nil {
		return nil, err
	}
	_, err = handleError(request.
		Get("/users/me/messages/" + messageID + "/attachments/" + attachmentID))
	if err != nil {
		return nil, fmt.Errorf("failed to fetch attachment: %w", err)
	}
	return decodeBase64URL(body.Data)
}

// SendCompletionReply answers the request mail on its own thread.
func (c *Client) SendCompletionReply(ctx context.Context, messageID, itemName, listingID string) error {
	msg, err := c.getMessage(ctx, messageID)
	if err != nil {
		return err
	}
	to := headerValue(msg.Payload, "From")
	if to == "" {
		return fmt.Errorf("mail %s has no sender to reply to", messageID)
	}
	subject := headerValue(msg.Payload, "Subject")
	if !strings.HasPrefix(subject, "Re:") {
		subject = "Re: " + subject
	}
	rfcMessageID := headerValue(msg.Payload, "Message-ID")

	body := fmt.Sprintf(replyTemplate, itemName, listingID, listingID)
	raw := composeReply(to, subject, rfcMessageID, body)

	request, err := c.req(ctx, nil)
	if err != nil {
		return err
	}
	_, err = handleError(request.
		SetBody(map[string]string{
			"raw":      base64.RawURLEncoding.EncodeToString([]byte(raw)),
			"threadId": msg.ThreadID,
		}).
		Post("/users/me/messages/send"))
	if err != nil {
		return fmt.Errorf("failed to send completion reply: %w", err)
	}
	return nil
}

func composeReply(to, subject, inReplyTo, body string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "To: %s\r\n", to)
	fmt.Fprintf(&b, "Subject: %s\r\n", mime.QEncoding.Encode("UTF-8", subject))
	if inReplyTo != "" {
		fmt.Fprintf(&b, "In-Reply-To: %s\r\n", inReplyTo)
		fmt.Fprintf(&b, "References: %s\r\n", inReplyTo)
	}
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/plain; charset=\"UTF-8\"\r\n")
	b.WriteString("\r\n")
	b.WriteString(body)
	return b.String()
}

func headerValue(part *messagePart, name string) string {
	if part == nil {
		return ""
	}
	for _, h := range part.Headers {
		if strings.EqualFold(h.Name, name) {
			return h.Value
		}
	}
	return ""
}

// messageBody returns the decoded text/plain body, falling back to text/html
// when no plain part exists.
func messageBody(payload *messagePart) string {
	if payload == nil {
		return ""
	}
	parts := flattenParts(payload)
	for _, mimeType := range []string{"text/plain", "text/html"} {
		for _, part := range parts {
			if part.MimeType != mimeType || part.Body.Data == "" {
				continue
			}
			if data, err := decodeBase64URL(part.Body.Data); err == nil {
				return string(data)
			}
		}
	}
	return ""
}

func flattenParts(payload *messagePart) []*messagePart {
	if payload == nil {
		return nil
	}
	parts := []*messagePart{payload}
	for _, child := range payload.Parts {
		parts = append(parts, flattenParts(child)...)
	}
	return parts
}

// decodeBase64URL tolerates both padded and unpadded input; the API is not
// consistent across endpoints.
func decodeBase64URL(s string) ([]byte, error) {
	data, err := base64.RawURLEncoding.DecodeString(strings.TrimRight(s, "="))
	if err != nil {
		return nil, fmt.Errorf("failed to decode mail body: %w", err)
	}
	return data, nil
}
