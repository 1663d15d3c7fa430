package service

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"cloud.google.com/go/vertexai/genai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpenAIScoreText(t *testing.T) {
	var got chatRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_, _ = io.WriteString(w, `{"choices":[{"message":{"role":"assistant","content":"  Score: 72 | Feedback: solid  "}}]}`)
	}))
	defer srv.Close()

	c := NewOpenAIClient(OpenAIConfig{URL: srv.URL, APIKey: "secret", Model: "test-model", Timeout: time.Second}, nil)
	reply, err := c.ScoreText(context.Background(), "grade this")
	require.NoError(t, err)
	assert.Equal(t, "Score: 72 | Feedback: solid", reply)
	assert.Equal(t, "test-model", got.Model)
	require.Len(t, got.Messages, 1)
	assert.Equal(t, "grade this", got.Messages[0].Content)
}

func TestOpenAIErrors(t *testing.T) {
	tests := map[string]struct {
		status int
		body   string
	}{
		"server error": {http.StatusInternalServerError, `oops`},
		"api error":    {http.StatusOK, `{"error":{"message":"quota","type":"billing"}}`},
		"no choices":   {http.StatusOK, `{"choices":[]}`},
		"bad json":     {http.StatusOK, `{`},
	}
	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tc.status)
				_, _ = io.WriteString(w, tc.body)
			}))
			defer srv.Close()

			_, err := NewOpenAIClient(OpenAIConfig{URL: srv.URL}, nil).ScoreText(context.Background(), "p")
			assert.Error(t, err)
		})
	}
}

func TestWhisperTranscribe(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseMultipartForm(1<<20))
		assert.Equal(t, "whisper-1", r.FormValue("model"))
		assert.Equal(t, "en", r.FormValue("language"))
		f, hdr, err := r.FormFile("file")
		require.NoError(t, err)
		defer f.Close()
		data, _ := io.ReadAll(f)
		assert.Equal(t, "clip.webm", hdr.Filename)
		assert.Equal(t, []byte("RIFF"), data)
		_, _ = io.WriteString(w, `{"text":" I have two years of Go. "}`)
	}))
	defer srv.Close()

	c := NewWhisperClient(TranscriberConfig{URL: srv.URL, Language: "en"}, nil)
	text, err := c.Transcribe(context.Background(), []byte("RIFF"), "clip.webm")
	require.NoError(t, err)
	assert.Equal(t, "I have two years of Go.", text)

	_, err = c.Transcribe(context.Background(), nil, "clip.webm")
	assert.Error(t, err)
}

func TestWhisperServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "unsupported format", http.StatusBadRequest)
	}))
	defer srv.Close()

	_, err := NewWhisperClient(TranscriberConfig{URL: srv.URL}, nil).Transcribe(context.Background(), []byte("x"), "")
	assert.Error(t, err)
}

func TestResponseText(t *testing.T) {
	resp := &genai.GenerateContentResponse{Candidates: []*genai.Candidate{{
		Content: &genai.Content{Parts: []genai.Part{genai.Text("Score: 60 "), genai.Text("| Feedback: ok")}},
	}}}
	text, err := responseText(resp)
	require.NoError(t, err)
	assert.Equal(t, "Score: 60 | Feedback: ok", text)

	_, err = responseText(&genai.GenerateContentResponse{})
	assert.Error(t, err)
}

func TestNewEvaluator(t *testing.T) {
	ev, closeFn, err := NewEvaluator(context.Background(), ScorerConfig{Provider: "none"}, nil)
	require.NoError(t, err)
	assert.Nil(t, ev)
	assert.NoError(t, closeFn())

	ev, _, err = NewEvaluator(context.Background(), ScorerConfig{Provider: "OpenAI"}, nil)
	require.NoError(t, err)
	assert.IsType(t, &OpenAIClient{}, ev)

	_, _, err = NewEvaluator(context.Background(), ScorerConfig{Provider: "vertex"}, nil)
	assert.Error(t, err, "vertex requires a project")

	_, _, err = NewEvaluator(context.Background(), ScorerConfig{Provider: "watson"}, nil)
	assert.Error(t, err)
}
