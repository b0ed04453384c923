package domain

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFormatTimestamp(t *testing.T) {
	ts := time.Date(2024, time.March, 7, 9, 5, 0, 0, time.Local)
	assert.Equal(t, "09:05 07/03/2024", FormatTimestamp(ts))
}

func TestHistoryEntryOmitsBlobFieldsForText(t *testing.T) {
	data, err := json.Marshal(HistoryEntry{
		Username:  "alice",
		Message:   "hi",
		Kind:      "text",
		Timestamp: "09:05 07/03/2024",
	})
	require.NoError(t, err)

	var raw map[string]interface{}
	require.NoError(t, json.Unmarshal(data, &raw))
	assert.NotContains(t, raw, "image")
	assert.NotContains(t, raw, "file")
	assert.NotContains(t, raw, "filename")
	assert.Equal(t, "text", raw["type"])
}

func TestFileBroadcastWireNames(t *testing.T) {
	data, err := json.Marshal(FileBroadcast{
		Type:     EventFile,
		Username: "alice",
		Filename: "a.txt",
		FileURL:  "/media/chat_files/x_a.txt",
	})
	require.NoError(t, err)

	var raw map[string]interface{}
	require.NoError(t, json.Unmarshal(data, &raw))
	assert.Equal(t, "/media/chat_files/x_a.txt", raw["file_url"])
}
