package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDecodePayloadDispatch(t *testing.T) {
	assert := assert.New(t)

	data, err := EncodePayload(SendMessagePayload{LocalID: "m1", ReceiverID: "42", Text: "hi", Vanish: true})
	assert.Nil(err)

	payload, err := DecodePayload(ActionSendMessage, data)
	assert.Nil(err)
	assert.Equal(ActionSendMessage, payload.Type())

	message, ok := payload.(SendMessagePayload)
	assert.True(ok)
	assert.Equal("42", message.ReceiverID)
	assert.True(message.Vanish)

	// The same bytes decoded under a different type must not silently
	// produce the wrong shape with matching fields.
	other, err := DecodePayload(ActionFollowUser, data)
	assert.Nil(err)
	assert.Equal(FollowUserPayload{}, other)
}

func TestDecodeUnknownType(t *testing.T) {
	assert := assert.New(t)

	_, err := DecodePayload(ActionType("teleport"), []byte(`{}`))
	assert.ErrorIs(err, ErrorUnknownActionType)
}
