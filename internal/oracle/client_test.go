package oracle

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"acemem/internal/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testOracleConfig(endpoint string) config.OracleConfig {
	cfg := config.DefaultOracleConfig()
	cfg.Endpoint = endpoint
	cfg.Timeouts.RetryBackoffBase = time.Millisecond
	cfg.Timeouts.RetryBackoffMax = 5 * time.Millisecond
	cfg.Timeouts.MaxRetries = 2
	return cfg
}

func TestOllamaClient_Invoke_Success(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/chat", r.URL.Path)
		var req ollamaChatRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "hello oracle", req.Messages[0].Content)

		resp := ollamaChatResponse{
			Message: ollamaChatMessage{Role: "assistant", Content: "hello back"},
			Done:    true,
		}
		json.NewEncoder(w).Encode(resp)
	}))
	defer server.Close()

	client, err := NewOllamaClient(testOracleConfig(server.URL))
	require.NoError(t, err)

	out, err := client.Invoke(context.Background(), "hello oracle")
	require.NoError(t, err)
	assert.Equal(t, "hello back", out)
}

func TestOllamaClient_Invoke_RetriesOnFailureThenSucceeds(t *testing.T) {
	var attempts int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := atomic.AddInt32(&attempts, 1)
		if n < 2 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		json.NewEncoder(w).Encode(ollamaChatResponse{
			Message: ollamaChatMessage{Content: "recovered"},
		})
	}))
	defer server.Close()

	client, err := NewOllamaClient(testOracleConfig(server.URL))
	require.NoError(t, err)

	out, err := client.Invoke(context.Background(), "retry me")
	require.NoError(t, err)
	assert.Equal(t, "recovered", out)
	assert.GreaterOrEqual(t, atomic.LoadInt32(&attempts), int32(2))
}

func TestOllamaClient_Invoke_ExhaustsRetries(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	client, err := NewOllamaClient(testOracleConfig(server.URL))
	require.NoError(t, err)

	_, err = client.Invoke(context.Background(), "always fails")
	assert.Error(t, err)
}

func TestNewOllamaClient_RejectsWrongProvider(t *testing.T) {
	cfg := config.DefaultOracleConfig()
	cfg.Provider = "genai"
	_, err := NewOllamaClient(cfg)
	assert.Error(t, err)
}

func TestNewClient_DispatchesOnProvider(t *testing.T) {
	cfg := config.DefaultOracleConfig()
	c, err := NewClient(cfg)
	require.NoError(t, err)
	_, ok := c.(*OllamaClient)
	assert.True(t, ok)

	cfg.Provider = "unsupported"
	_, err = NewClient(cfg)
	assert.Error(t, err)
}
