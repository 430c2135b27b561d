package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/perch-social/satchel/internal/model"
	"github.com/stretchr/testify/assert"
)

type testCreds string

func (c testCreds) Token() (string, error) {
	if c == "" {
		return "", model.ErrorNoCredential
	}
	return string(c), nil
}

func TestSendMessage(t *testing.T) {
	assert := assert.New(t)

	var gotPath, gotAuth, gotRequestID string
	var gotBody map[string]interface{}

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotAuth = r.Header.Get("Authorization")
		gotRequestID = r.Header.Get("X-Request-ID")
		json.NewDecoder(r.Body).Decode(&gotBody)
		json.NewEncoder(w).Encode(map[string]interface{}{
			"success": true,
			"message": "sent",
			"data":    map[string]string{"id": "srv-7"},
		})
	}))
	defer server.Close()

	client := New(server.URL, testCreds("token-123"))

	remoteID, err := client.SendMessage(context.Background(), model.SendMessagePayload{
		LocalID:    "m1",
		ReceiverID: "42",
		Text:       "hi",
	})
	assert.Nil(err)
	assert.Equal("srv-7", remoteID)
	assert.Equal("/send_message", gotPath)
	assert.Equal("Bearer token-123", gotAuth)
	assert.NotEmpty(gotRequestID)
	assert.Equal("42", gotBody["receiver_id"])
	assert.Equal("hi", gotBody["text"])
}

func TestRemoteFailure(t *testing.T) {
	assert := assert.New(t)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]interface{}{
			"success": false,
			"message": "user is blocked",
			"data":    nil,
		})
	}))
	defer server.Close()

	client := New(server.URL, testCreds("token"))

	err := client.FollowUser(context.Background(), "u1")
	if assert.NotNil(err) {
		remoteErr := &RemoteError{}
		assert.ErrorAs(err, &remoteErr)
		assert.Contains(remoteErr.Message, "blocked")
	}
}

func TestServerError(t *testing.T) {
	assert := assert.New(t)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	client := New(server.URL, testCreds("token"))

	err := client.LikePost(context.Background(), model.LikePostPayload{PostID: "p1", Liked: true})
	if assert.NotNil(err) {
		assert.Contains(err.Error(), "502")
	}
}

func TestMissingCredential(t *testing.T) {
	assert := assert.New(t)

	client := New("http://localhost:1", testCreds(""))

	err := client.UnfollowUser(context.Background(), "u1")
	assert.ErrorIs(err, model.ErrorNoCredential)
}

func TestCreateWithoutID(t *testing.T) {
	assert := assert.New(t)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]interface{}{
			"success": true,
			"message": "ok",
			"data":    map[string]string{},
		})
	}))
	defer server.Close()

	client := New(server.URL, testCreds("token"))

	_, err := client.CreatePost(context.Background(), model.CreatePostPayload{LocalID: "p1", Caption: "x"})
	if assert.NotNil(err) {
		assert.Contains(err.Error(), "no id")
	}
}
