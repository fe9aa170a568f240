package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFlatten(t *testing.T) {
	tests := []struct {
		name string
		in   map[string]any
		want map[string]any
	}{
		{"empty", map[string]any{}, map[string]any{}},
		{"empty nested map produces nothing", map[string]any{"a": map[string]any{}}, map[string]any{}},
		{
			"nested",
			map[string]any{
				"llm":       map[string]any{"provider": "openai", "api_key": "sk-test123"},
				"log_level": "info",
			},
			map[string]any{"llm.provider": "openai", "llm.api_key": "sk-test123", "log_level": "info"},
		},
		{
			"deeply nested",
			map[string]any{"a": map[string]any{"b": map[string]any{"c": "deep"}}},
			map[string]any{"a.b.c": "deep"},
		},
		{
			"mixed types",
			map[string]any{"num": 42.0, "bool": true, "nested": map[string]any{"val": "inside"}},
			map[string]any{"num": 42.0, "bool": true, "nested.val": "inside"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Flatten(tt.in))
		})
	}
}

func TestUnflatten(t *testing.T) {
	got := Unflatten(map[string]any{
		"auth.provider": "firebase",
		"auth.api_key":  "key",
		"a.b.c":         "deep",
		"log_level":     "info",
	})

	auth, ok := got["auth"].(map[string]any)
	require.True(t, ok, "auth should be a map, got %T", got["auth"])
	assert.Equal(t, "firebase", auth["provider"])
	assert.Equal(t, "key", auth["api_key"])
	assert.Equal(t, "info", got["log_level"])

	a := got["a"].(map[string]any)
	b := a["b"].(map[string]any)
	assert.Equal(t, "deep", b["c"])

	assert.Empty(t, Unflatten(map[string]any{}))
}

func TestRoundTrip_FlattenUnflatten(t *testing.T) {
	original := map[string]any{
		"data_dir":  "/home/test/.vernacular",
		"log_level": "debug",
		"llm": map[string]any{
			"provider": "anthropic",
			"api_key":  "sk-ant-123456",
		},
		"auth": map[string]any{
			"api_key": "AIzaSy-real",
		},
		"audit": map[string]any{
			"enabled": true,
		},
	}

	assert.Equal(t, original, Unflatten(Flatten(original)))
}

func TestMaskSecrets(t *testing.T) {
	got := MaskSecrets(map[string]any{
		"llm.provider":   "openai",
		"llm.api_key":    "sk-test123456",
		"auth.api_key":   "AIzaSyabcdef1234",
		"telegram.token": "123456:ABCdefGHIjkl",
		"log_level":      "info",
	})

	assert.Equal(t, "openai", got["llm.provider"])
	assert.Equal(t, "info", got["log_level"])
	assert.Equal(t, "***3456", got["llm.api_key"])
	assert.Equal(t, "***1234", got["auth.api_key"])
	assert.Equal(t, "***Ijkl", got["telegram.token"])
}

func TestMaskSecrets_ShortValues(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"", ""},
		{"ab", "***ab"},
		{"abcd", "***abcd"},
	}
	for _, tt := range tests {
		got := MaskSecrets(map[string]any{"llm.api_key": tt.in})
		assert.Equal(t, tt.want, got["llm.api_key"], "input %q", tt.in)
	}
}

func TestIsSecretKey(t *testing.T) {
	assert.True(t, IsSecretKey("llm.api_key"))
	assert.True(t, IsSecretKey("auth.api_key"))
	assert.True(t, IsSecretKey("telegram.token"))
	assert.False(t, IsSecretKey("auth.provider"))
}

func TestSecretKeysFollowStructTags(t *testing.T) {
	assert.Equal(t, map[string]bool{
		"llm.api_key":    true,
		"auth.api_key":   true,
		"telegram.token": true,
	}, secretKeys())

	cfg := defaults()
	cfg.Telegram.Token = "123456:ABCdefGHIjkl"
	flat, err := ListValues(cfg, true)
	require.NoError(t, err)
	assert.Equal(t, "***Ijkl", flat["telegram.token"])
	assert.Equal(t, "gpt-4o-mini", flat["llm.model"])
	assert.NotContains(t, flat, "warnings")
}
