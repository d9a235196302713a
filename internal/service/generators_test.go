package service

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/timmy/councilgen/internal/domain"
)

func TestChatServiceGenerate(t *testing.T) {
	var got chatRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"choices": [{"message": {"content": "  {\"body\": \"hello\"}  "}}]}`))
	}))
	defer server.Close()

	svc := NewChatService(&ChatConfig{Model: "gpt-4o-mini", APIKey: "test-key", BaseURL: server.URL + "/v1/"})
	text, err := svc.Generate(context.Background(), "system", "user prompt")
	require.NoError(t, err)

	assert.Equal(t, `{"body": "hello"}`, text)
	assert.Equal(t, "gpt-4o-mini", got.Model)
	assert.Equal(t, 4096, got.MaxTokens)
	require.Len(t, got.Messages, 2)
	assert.Equal(t, "system", got.Messages[0].Role)
	assert.Equal(t, "user prompt", got.Messages[1].Content)
}

func TestChatServiceErrors(t *testing.T) {
	testCases := []struct {
		name        string
		status      int
		contentType string
		body        string
		wantErr     string
	}{
		{"api error", http.StatusBadRequest, "application/json", `{"error": {"message": "bad model", "type": "invalid_request_error"}}`, "HTTP 400: bad model"},
		{"no choices", http.StatusOK, "application/json", `{"choices": []}`, "no choices"},
		{"empty content", http.StatusOK, "application/json", `{"choices": [{"message": {"content": "   "}}]}`, "empty chat response"},
		{"plain text failure", http.StatusInternalServerError, "text/plain", `upstream down`, "HTTP 500: upstream down"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", tc.contentType)
				w.WriteHeader(tc.status)
				w.Write([]byte(tc.body))
			}))
			defer server.Close()

			svc := NewChatService(&ChatConfig{Model: "m", BaseURL: server.URL})
			_, err := svc.Generate(context.Background(), "s", "p")
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.wantErr)
		})
	}
}

func TestChatServiceRetriesThrottling(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if atomic.AddInt32(&calls, 1) == 1 {
			w.WriteHeader(http.StatusTooManyRequests)
			w.Write([]byte(`{"error": {"message": "slow down"}}`))
			return
		}
		w.Write([]byte(`{"choices": [{"message": {"content": "ok"}}]}`))
	}))
	defer server.Close()

	svc := NewChatService(&ChatConfig{Model: "m", BaseURL: server.URL, RetryCount: 1})
	text, err := svc.Generate(context.Background(), "s", "p")
	require.NoError(t, err)
	assert.Equal(t, "ok", text)
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
}

func TestImageServiceGenerate(t *testing.T) {
	payload := []byte("png-bytes")
	var got imageRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Path {
		case "/images/generations":
			assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
			if got.Style == "vivid" {
				w.Write([]byte(`{"data": [{"url": "` + "http://" + r.Host + `/files/1.png"}]}`))
				return
			}
			w.Write([]byte(`{"data": [{"b64_json": "` + base64.StdEncoding.EncodeToString(payload) + `"}]}`))
		case "/files/1.png":
			w.Header().Set("Content-Type", "image/png")
			w.Write([]byte("downloaded"))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer server.Close()

	svc := NewImageService(&ImageConfig{Model: "dall-e-3", BaseURL: server.URL})

	data, err := svc.Generate(context.Background(), "a harbour", "1200x630", domain.ImageStylePhoto)
	require.NoError(t, err)
	assert.Equal(t, payload, data)
	assert.Equal(t, "1792x1024", got.Size)
	assert.Equal(t, "natural", got.Style)
	assert.Equal(t, "b64_json", got.ResponseFormat)
	assert.Equal(t, 1, got.N)

	data, err = svc.Generate(context.Background(), "an icon", "64x64", domain.ImageStyleIcon)
	require.NoError(t, err)
	assert.Equal(t, []byte("downloaded"), data)
	assert.Equal(t, "1024x1024", got.Size)
}

func TestSupportedSize(t *testing.T) {
	testCases := []struct {
		dims domain.Dimensions
		want string
	}{
		{"1200x630", "1792x1024"},
		{"600x1200", "1024x1792"},
		{"800x800", "1024x1024"},
		{"1100x1000", "1024x1024"},
		{"bogus", "1024x1024"},
	}
	for _, tc := range testCases {
		t.Run(string(tc.dims), func(t *testing.T) {
			assert.Equal(t, tc.want, supportedSize(tc.dims))
		})
	}
}

type stubChatModel struct {
	reply *schema.Message
	err   error
	input []*schema.Message
}

func (m *stubChatModel) Generate(_ context.Context, input []*schema.Message, _ ...model.Option) (*schema.Message, error) {
	m.input = input
	return m.reply, m.err
}

func (m *stubChatModel) Stream(context.Context, []*schema.Message, ...model.Option) (*schema.StreamReader[*schema.Message], error) {
	return nil, errors.New("streaming not supported")
}

func TestEinoTextGenerator(t *testing.T) {
	stub := &stubChatModel{reply: schema.AssistantMessage(" generated ", nil)}
	gen := NewEinoTextGeneratorWithModel(stub, "gpt-4o")

	text, err := gen.Generate(context.Background(), "system", "prompt")
	require.NoError(t, err)
	assert.Equal(t, "generated", text)
	assert.Equal(t, "gpt-4o", gen.GetModel())
	require.Len(t, stub.input, 2)
	assert.Equal(t, schema.System, stub.input[0].Role)
	assert.Equal(t, schema.User, stub.input[1].Role)

	stub.reply = schema.AssistantMessage("", nil)
	_, err = gen.Generate(context.Background(), "system", "prompt")
	assert.EqualError(t, err, "empty chat response")

	stub.err = errors.New("quota exceeded")
	_, err = gen.Generate(context.Background(), "system", "prompt")
	assert.ErrorContains(t, err, "quota exceeded")
}
