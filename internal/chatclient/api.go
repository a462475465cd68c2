package chatclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/tripdesk/tripdesk-server/internal/proto"
)

// Account is an authenticated identity as the API reports it.
type Account struct {
	Token string `json:"token"`
	ID    string `json:"id"`
	Name  string `json:"name"`
	Role  string `json:"role"`
}

// APIError is a non-2xx response from the server.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error %d: %s", e.Status, e.Message)
}

// APIClient is a typed client for the REST endpoints.
type APIClient struct {
	baseURL string
	http    *http.Client
	token   string
}

// NewAPIClient builds a client for the server at baseURL.
func NewAPIClient(baseURL string) *APIClient {
	return &APIClient{
		baseURL: baseURL,
		http:    http.DefaultClient,
	}
}

// SetToken attaches a bearer token to all subsequent requests.
func (c *APIClient) SetToken(token string) {
	c.token = token
}

// Token returns the currently attached bearer token.
func (c *APIClient) Token() string {
	return c.token
}

type registerRequest struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Register creates a site-user account and attaches its token.
func (c *APIClient) Register(ctx context.Context, name, email, password string) (Account, error) {
	var acc Account
	err := c.do(ctx, "POST", "/api/register", registerRequest{Name: name, Email: email, Password: password}, &acc)
	if err == nil {
		c.token = acc.Token
	}
	return acc, err
}

// Login authenticates a site user and attaches its token.
func (c *APIClient) Login(ctx context.Context, email, password string) (Account, error) {
	var acc Account
	err := c.do(ctx, "POST", "/api/login", loginRequest{Email: email, Password: password}, &acc)
	if err == nil {
		c.token = acc.Token
	}
	return acc, err
}

// AdminLogin authenticates a staff account and attaches its token.
func (c *APIClient) AdminLogin(ctx context.Context, email, password string) (Account, error) {
	var acc Account
	err := c.do(ctx, "POST", "/api/admin/login", loginRequest{Email: email, Password: password}, &acc)
	if err == nil {
		c.token = acc.Token
	}
	return acc, err
}

// Conversation returns the conversation owned by userID, creating it
// on first contact.
func (c *APIClient) Conversation(ctx context.Context, userID string) (proto.ConversationPayload, error) {
	var conv proto.ConversationPayload
	err := c.do(ctx, "GET", "/api/conversations/"+userID, nil, &conv)
	return conv, err
}

// Conversations returns every conversation, newest activity first.
// Staff only.
func (c *APIClient) Conversations(ctx context.Context) ([]proto.ConversationPayload, error) {
	var convs []proto.ConversationPayload
	err := c.do(ctx, "GET", "/api/conversations", nil, &convs)
	return convs, err
}

// ConversationByID returns one conversation with its messages.
func (c *APIClient) ConversationByID(ctx context.Context, conversationID string) (proto.ConversationPayload, error) {
	var conv proto.ConversationPayload
	err := c.do(ctx, "GET", "/api/conversation/"+conversationID, nil, &conv)
	return conv, err
}

type sendMessageRequest struct {
	Text     string `json:"text"`
	ImageURL string `json:"imageUrl,omitempty"`
}

// SendMessage appends a message over REST. The realtime path is
// preferred; this is the fallback when the socket is down.
func (c *APIClient) SendMessage(ctx context.Context, conversationID, text, imageURL string) (proto.MessagePayload, error) {
	var msg proto.MessagePayload
	err := c.do(ctx, "POST", "/api/messages/"+conversationID, sendMessageRequest{Text: text, ImageURL: imageURL}, &msg)
	return msg, err
}

// Messages returns the conversation's messages in creation order.
func (c *APIClient) Messages(ctx context.Context, conversationID string) ([]proto.MessagePayload, error) {
	var msgs []proto.MessagePayload
	err := c.do(ctx, "GET", "/api/messages/"+conversationID, nil, &msgs)
	return msgs, err
}

func (c *APIClient) do(ctx context.Context, method, path string, body, out any) error {
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, &buf)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var apiErr struct {
			Error string `json:"error"`
		}
		_ = json.NewDecoder(resp.Body).Decode(&apiErr)
		if apiErr.Error == "" {
			apiErr.Error = http.StatusText(resp.StatusCode)
		}
		return &APIError{Status: resp.StatusCode, Message: apiErr.Error}
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
	}
	return nil
}
