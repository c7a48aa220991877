package testutil

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

// MockAudioServer creates a test server that mocks the OpenAI-compatible
// audio endpoints (/audio/transcriptions, /audio/speech).
type MockAudioServer struct {
	*httptest.Server
	Handlers map[string]http.HandlerFunc
}

// NewMockAudioServer creates a new mock audio API server
func NewMockAudioServer(t *testing.T) *MockAudioServer {
	t.Helper()
	m := &MockAudioServer{
		Handlers: make(map[string]http.HandlerFunc),
	}
	m.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := r.URL.Path
		if handler, ok := m.Handlers[key]; ok {
			handler(w, r)
			return
		}
		w.WriteHeader(http.StatusNotFound)
	}))
	t.Cleanup(m.Close)
	return m
}

// MockTranscription adds a success handler for the transcription endpoint
func (m *MockAudioServer) MockTranscription(text string) {
	m.Handlers["/audio/transcriptions"] = func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]string{"text": text}) //nolint:errcheck // test mock response
	}
}

// MockTranscriptionError makes the transcription endpoint fail with status
func (m *MockAudioServer) MockTranscriptionError(status int, message string) {
	m.Handlers["/audio/transcriptions"] = errorHandler(status, message)
}

// MockSpeech adds a success handler for the speech endpoint returning raw audio bytes
func (m *MockAudioServer) MockSpeech(audio []byte) {
	m.Handlers["/audio/speech"] = func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "audio/ogg")
		_, _ = w.Write(audio)
	}
}

// MockSpeechError makes the speech endpoint fail with status
func (m *MockAudioServer) MockSpeechError(status int, message string) {
	m.Handlers["/audio/speech"] = errorHandler(status, message)
}

func errorHandler(status int, message string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_ = json.NewEncoder(w).Encode(map[string]any{ //nolint:errcheck // test mock response
			"error": map[string]string{"message": message},
		})
	}
}
