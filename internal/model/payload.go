package model

import (
	"encoding/json"
	"fmt"
)

// Payload is the typed body of a queued action. Each action type carries its
// own struct; the queue stores them as JSON keyed by the row's ActionType
// column, so decoding never guesses at the shape.
type Payload interface {
	Type() ActionType
}

// Entity-creating payloads carry the LocalID of the mirror record they will
// resolve. Edit/delete payloads reference that same LocalID; the remote id is
// looked up at dispatch time, once the creating action has backfilled it.

type SendMessagePayload struct {
	LocalID    string `json:"local_id"`
	ReceiverID string `json:"receiver_id"`
	Text       string `json:"text"`
	MediaURL   string `json:"media_url,omitempty"`
	MediaType  string `json:"media_type,omitempty"`
	Vanish     bool   `json:"vanish,omitempty"`
}

type EditMessagePayload struct {
	LocalID string `json:"local_id"`
	Text    string `json:"text"`
}

type DeleteMessagePayload struct {
	LocalID string `json:"local_id"`
}

type CreatePostPayload struct {
	LocalID   string `json:"local_id"`
	Caption   string `json:"caption"`
	MediaURL  string `json:"media_url,omitempty"`
	MediaType string `json:"media_type,omitempty"`
}

type EditPostPayload struct {
	LocalID string `json:"local_id"`
	Caption string `json:"caption"`
}

type DeletePostPayload struct {
	LocalID string `json:"local_id"`
}

type CreateStoryPayload struct {
	LocalID   string `json:"local_id"`
	MediaURL  string `json:"media_url"`
	MediaType string `json:"media_type,omitempty"`
	ExpiresAt int64  `json:"expires_at"`
}

type DeleteStoryPayload struct {
	LocalID string `json:"local_id"`
}

type LikePostPayload struct {
	PostID string `json:"post_id"`
	Liked  bool   `json:"liked"`
}

type CommentPostPayload struct {
	PostID string `json:"post_id"`
	Text   string `json:"text"`
}

type FollowUserPayload struct {
	UserID string `json:"user_id"`
}

type UnfollowUserPayload struct {
	UserID string `json:"user_id"`
}

func (SendMessagePayload) Type() ActionType   { return ActionSendMessage }
func (EditMessagePayload) Type() ActionType   { return ActionEditMessage }
func (DeleteMessagePayload) Type() ActionType { return ActionDeleteMessage }
func (CreatePostPayload) Type() ActionType    { return ActionCreatePost }
func (EditPostPayload) Type() ActionType      { return ActionEditPost }
func (DeletePostPayload) Type() ActionType    { return ActionDeletePost }
func (CreateStoryPayload) Type() ActionType   { return ActionCreateStory }
func (DeleteStoryPayload) Type() ActionType   { return ActionDeleteStory }
func (LikePostPayload) Type() ActionType      { return ActionLikePost }
func (CommentPostPayload) Type() ActionType   { return ActionCommentPost }
func (FollowUserPayload) Type() ActionType    { return ActionFollowUser }
func (UnfollowUserPayload) Type() ActionType  { return ActionUnfollowUser }

func EncodePayload(payload Payload) ([]byte, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshalling %s payload: %w", payload.Type(), err)
	}
	return data, nil
}

func DecodePayload(actionType ActionType, data []byte) (Payload, error) {
	var payload Payload
	var err error

	switch actionType {
	case ActionSendMessage:
		p := SendMessagePayload{}
		err = json.Unmarshal(data, &p)
		payload = p
	case ActionEditMessage:
		p := EditMessagePayload{}
		err = json.Unmarshal(data, &p)
		payload = p
	case ActionDeleteMessage:
		p := DeleteMessagePayload{}
		err = json.Unmarshal(data, &p)
		payload = p
	case ActionCreatePost:
		p := CreatePostPayload{}
		err = json.Unmarshal(data, &p)
		payload = p
	case ActionEditPost:
		p := EditPostPayload{}
		err = json.Unmarshal(data, &p)
		payload = p
	case ActionDeletePost:
		p := DeletePostPayload{}
		err = json.Unmarshal(data, &p)
		payload = p
	case ActionCreateStory:
		p := CreateStoryPayload{}
		err = json.Unmarshal(data, &p)
		payload = p
	case ActionDeleteStory:
		p := DeleteStoryPayload{}
		err = json.Unmarshal(data, &p)
		payload = p
	case ActionLikePost:
		p := LikePostPayload{}
		err = json.Unmarshal(data, &p)
		payload = p
	case ActionCommentPost:
		p := CommentPostPayload{}
		err = json.Unmarshal(data, &p)
		payload = p
	case ActionFollowUser:
		p := FollowUserPayload{}
		err = json.Unmarshal(data, &p)
		payload = p
	case ActionUnfollowUser:
		p := UnfollowUserPayload{}
		err = json.Unmarshal(data, &p)
		payload = p
	default:
		return nil, fmt.Errorf("%w: %s", ErrorUnknownActionType, actionType)
	}

	if err != nil {
		return nil, fmt.Errorf("unmarshalling %s payload: %w", actionType, err)
	}
	return payload, nil
}
