package firebase

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/user/vernacular/pkg/auth"
)

func TestNewRequiresAPIKey(t *testing.T) {
	_, err := New(&auth.Config{})
	require.Error(t, err)

	_, err = New(nil)
	require.Error(t, err)
}

func TestSignIn(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/accounts:signInWithPassword", r.URL.Path)
		assert.Equal(t, "test-key", r.URL.Query().Get("key"))
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "ops@example.com", body["email"])
		assert.Equal(t, "hunter2", body["password"])
		assert.Equal(t, true, body["returnSecureToken"])

		json.NewEncoder(w).Encode(map[string]any{
			"localId":     "uid-123",
			"email":       "ops@example.com",
			"displayName": "Ops",
			"idToken":     "tok",
		})
	}))
	defer server.Close()

	client, err := New(&auth.Config{BaseURL: server.URL, APIKey: "test-key"})
	require.NoError(t, err)

	id, err := client.SignIn(context.Background(), "ops@example.com", "hunter2")
	require.NoError(t, err)
	assert.Equal(t, "uid-123", string(id.ID))
	assert.Equal(t, "ops@example.com", id.EmailOrEmpty())
	assert.Equal(t, "Ops", id.DisplayName)
	assert.True(t, client.SignedIn())

	require.NoError(t, client.SignOut(context.Background()))
	assert.False(t, client.SignedIn())
}

func TestSignInErrorCodes(t *testing.T) {
	tests := []struct {
		message string
		code    string
	}{
		{"EMAIL_NOT_FOUND", auth.CodeUserNotFound},
		{"INVALID_PASSWORD", auth.CodeWrongPassword},
		{"INVALID_LOGIN_CREDENTIALS", auth.CodeInvalidCredential},
		{"TOO_MANY_ATTEMPTS_TRY_LATER : Access to this account has been temporarily disabled", auth.CodeTooManyRequests},
		{"INVALID_EMAIL", auth.CodeInvalidEmail},
		{"OPERATION_NOT_ALLOWED", auth.CodeInternal},
	}

	for _, tt := range tests {
		t.Run(tt.message, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusBadRequest)
				json.NewEncoder(w).Encode(map[string]any{
					"error": map[string]any{"code": 400, "message": tt.message},
				})
			}))
			defer server.Close()

			client, err := New(&auth.Config{BaseURL: server.URL, APIKey: "k"})
			require.NoError(t, err)

			id, err := client.SignIn(context.Background(), "a@b.com", "pw")
			assert.Nil(t, id)
			assert.Equal(t, tt.code, auth.CodeOf(err))
			assert.False(t, client.SignedIn())
		})
	}
}

func TestSignInUnparseableError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "bad gateway", http.StatusBadGateway)
	}))
	defer server.Close()

	client, err := New(&auth.Config{BaseURL: server.URL, APIKey: "k"})
	require.NoError(t, err)

	_, err = client.SignIn(context.Background(), "a@b.com", "pw")
	assert.Equal(t, auth.CodeInternal, auth.CodeOf(err))
}

func TestSignInNetworkFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := server.URL
	server.Close()

	client, err := New(&auth.Config{BaseURL: url, APIKey: "k"})
	require.NoError(t, err)

	_, err = client.SignIn(context.Background(), "a@b.com", "pw")
	assert.Equal(t, auth.CodeNetworkFailed, auth.CodeOf(err))
}
