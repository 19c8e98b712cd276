package telegram

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/HamedShams/sprint-pulse/internal/config"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sent struct {
	ChatID    int64  `json:"chat_id"`
	Text      string `json:"text"`
	ParseMode string `json:"parse_mode"`
}

func TestBroadcastFallsBackToPlainText(t *testing.T) {
	var mu sync.Mutex
	var got []sent
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/botT/sendMessage", r.URL.Path)
		var m sent
		require.NoError(t, json.NewDecoder(r.Body).Decode(&m))
		mu.Lock()
		got = append(got, m)
		mu.Unlock()
		if m.ParseMode == "MarkdownV2" && m.Text == "bad*" {
			http.Error(w, `{"ok":false,"description":"can't parse entities"}`, http.StatusBadRequest)
			return
		}
		w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	c := NewClient(config.Config{TelegramToken: "T", TelegramChatIDs: []int64{7}}, zerolog.Nop())
	c.apiBase = srv.URL
	require.True(t, c.Enabled())
	require.NoError(t, c.Broadcast(context.Background(), []string{"ok", "bad*"}))

	require.Len(t, got, 3)
	assert.Equal(t, sent{ChatID: 7, Text: "ok", ParseMode: "MarkdownV2"}, got[0])
	assert.Equal(t, sent{ChatID: 7, Text: "bad*", ParseMode: "MarkdownV2"}, got[1])
	assert.Equal(t, sent{ChatID: 7, Text: "bad*"}, got[2])
}

func TestBroadcastRequiresConfiguration(t *testing.T) {
	c := NewClient(config.Config{TelegramToken: "T"}, zerolog.Nop())
	assert.False(t, c.Enabled())
	assert.Error(t, c.Broadcast(context.Background(), []string{"x"}))
}
