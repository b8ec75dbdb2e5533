package gmailclient

import (
	"encoding/base64"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeMessage(t *testing.T) {
	raw := encodeMessage("StreetMed <rounds@example.com>", "a@example.com", "Signup confirmed", "See you there")

	decoded, err := base64.URLEncoding.DecodeString(raw)
	require.NoError(t, err)

	msg := string(decoded)
	assert.Contains(t, msg, "From: StreetMed <rounds@example.com>\r\n")
	assert.Contains(t, msg, "To: a@example.com\r\n")
	assert.Contains(t, msg, "Subject: Signup confirmed\r\n")
	assert.Contains(t, msg, "\r\n\r\nSee you there")
}

func TestEncodeMessage_NoSender(t *testing.T) {
	decoded, err := base64.URLEncoding.DecodeString(encodeMessage("", "a@example.com", "s", "b"))
	require.NoError(t, err)
	assert.NotContains(t, string(decoded), "From:")
}
