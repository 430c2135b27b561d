package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/nrednav/cuid2"
	"github.com/perch-social/satchel/internal/model"
)

// Every endpoint answers the same envelope. Data is endpoint-specific and may
// be null.
type Response struct {
	Success bool            `json:"success"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

// RemoteError is an API-reported failure (success=false on a 2xx response),
// as opposed to a transport error.
type RemoteError struct {
	Endpoint string
	Message  string
}

func (e *RemoteError) Error() string {
	return fmt.Sprintf("%s: %s", e.Endpoint, e.Message)
}

type TokenSource interface {
	Token() (string, error)
}

type createdData struct {
	ID string `json:"id"`
}

// Client speaks the JSON-over-HTTPS social API: one endpoint per action type,
// bearer token on every call.
type Client struct {
	baseURL string
	creds   TokenSource
	client  *http.Client
}

func New(baseURL string, creds TokenSource) *Client {
	return &Client{
		baseURL: baseURL,
		creds:   creds,
		client:  &http.Client{Timeout: 30 * time.Second},
	}
}

func (c *Client) post(ctx context.Context, endpoint string, body interface{}) (*Response, error) {
	token, err := c.creds.Token()
	if err != nil {
		return nil, fmt.Errorf("getting credential: %w", err)
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshalling request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/"+endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("X-Request-ID", cuid2.Generate())

	res, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("calling %s: %w", endpoint, err)
	}
	defer res.Body.Close()

	if res.StatusCode < 200 || res.StatusCode > 299 {
		return nil, fmt.Errorf("calling %s: unexpected status %d", endpoint, res.StatusCode)
	}

	response := &Response{}
	if err := json.NewDecoder(res.Body).Decode(response); err != nil {
		return nil, fmt.Errorf("decoding %s response: %w", endpoint, err)
	}

	if !response.Success {
		return nil, &RemoteError{Endpoint: endpoint, Message: response.Message}
	}

	return response, nil
}

func (c *Client) create(ctx context.Context, endpoint string, body interface{}) (string, error) {
	response, err := c.post(ctx, endpoint, body)
	if err != nil {
		return "", err
	}

	created := createdData{}
	if err := json.Unmarshal(response.Data, &created); err != nil {
		return "", fmt.Errorf("decoding %s data: %w", endpoint, err)
	}
	if created.ID == "" {
		return "", fmt.Errorf("%s returned no id", endpoint)
	}

	return created.ID, nil
}

// SendMessage creates the message remotely and returns the server-assigned id.
func (c *Client) SendMessage(ctx context.Context, payload model.SendMessagePayload) (string, error) {
	return c.create(ctx, string(model.ActionSendMessage), payload)
}

func (c *Client) EditMessage(ctx context.Context, messageID string, text string) error {
	_, err := c.post(ctx, string(model.ActionEditMessage), map[string]string{
		"message_id": messageID,
		"text":       text,
	})
	return err
}

func (c *Client) DeleteMessage(ctx context.Context, messageID string) error {
	_, err := c.post(ctx, string(model.ActionDeleteMessage), map[string]string{
		"message_id": messageID,
	})
	return err
}

func (c *Client) CreatePost(ctx context.Context, payload model.CreatePostPayload) (string, error) {
	return c.create(ctx, string(model.ActionCreatePost), payload)
}

func (c *Client) EditPost(ctx context.Context, postID string, caption string) error {
	_, err := c.post(ctx, string(model.ActionEditPost), map[string]string{
		"post_id": postID,
		"caption": caption,
	})
	return err
}

func (c *Client) DeletePost(ctx context.Context, postID string) error {
	_, err := c.post(ctx, string(model.ActionDeletePost), map[string]string{
		"post_id": postID,
	})
	return err
}

func (c *Client) CreateStory(ctx context.Context, payload model.CreateStoryPayload) (string, error) {
	return c.create(ctx, string(model.ActionCreateStory), payload)
}

func (c *Client) DeleteStory(ctx context.Context, storyID string) error {
	_, err := c.post(ctx, string(model.ActionDeleteStory), map[string]string{
		"story_id": storyID,
	})
	return err
}

func (c *Client) LikePost(ctx context.Context, payload model.LikePostPayload) error {
	_, err := c.post(ctx, string(model.ActionLikePost), payload)
	return err
}

func (c *Client) CommentPost(ctx context.Context, payload model.CommentPostPayload) error {
	_, err := c.post(ctx, string(model.ActionCommentPost), payload)
	return err
}

func (c *Client) FollowUser(ctx context.Context, userID string) error {
	_, err := c.post(ctx, string(model.ActionFollowUser), map[string]string{
		"user_id": userID,
	})
	return err
}

func (c *Client) UnfollowUser(ctx context.Context, userID string) error {
	_, err := c.post(ctx, string(model.ActionUnfollowUser), map[string]string{
		"user_id": userID,
	})
	return err
}

// ToggleVanishMode flips vanish mode for a thread. Called online-only from
// the control surface, never queued.
func (c *Client) ToggleVanishMode(ctx context.Context, threadKey string, enabled bool) error {
	_, err := c.post(ctx, "toggle_vanish_mode", map[string]interface{}{
		"thread_key": threadKey,
		"enabled":    enabled,
	})
	return err
}

func (c *Client) ClearVanishMessages(ctx context.Context, threadKey string) error {
	_, err := c.post(ctx, "clear_vanish_messages", map[string]string{
		"thread_key": threadKey,
	})
	return err
}

// HealthURL is the reachability probe target.
func (c *Client) HealthURL() string {
	return c.baseURL + "/health"
}
