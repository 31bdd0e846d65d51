package qr

import (
	"encoding/base64"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDataURL(t *testing.T) {
	url, err := DataURL("http://192.168.1.10:4000/pin?session=abc", 128)
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(url, "data:image/png;base64,"))

	raw, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(url, "data:image/png;base64,"))
	require.NoError(t, err)
	require.Equal(t, "\x89PNG", string(raw[:4]))
}

func TestDataURL_DefaultSize(t *testing.T) {
	url, err := DataURL("hello", 0)
	require.NoError(t, err)
	require.NotEmpty(t, url)
}
