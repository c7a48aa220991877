// Package audioapi wraps the two OpenAI-compatible audio endpoints the bot
// consumes: speech-to-text transcription and text-to-speech synthesis. Both
// operations are stateless and never retried here; every remote failure mode
// (HTTP status, transport error, empty payload) is normalized into a
// returned error, with response detail logged, so callers only ever decide
// "got a result or didn't".
package audioapi

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

// Client calls the audio endpoints with a fixed model configuration.
type Client struct {
	client   *openai.Client
	sttModel string
	ttsModel string
	voice    string
}

// Options configures a Client. Zero-value fields fall back to defaults.
type Options struct {
	APIKey   string
	BaseURL  string
	STTModel string
	TTSModel string
	Voice    string
	Timeout  time.Duration

	// HTTPClient overrides the default client (tests).
	HTTPClient *http.Client
}

func New(opts Options) *Client {
	if opts.Timeout <= 0 {
		opts.Timeout = 60 * time.Second
	}
	if opts.STTModel == "" {
		opts.STTModel = "whisper-1"
	}
	if opts.TTSModel == "" {
		opts.TTSModel = "tts-1-hd"
	}
	if opts.Voice == "" {
		opts.Voice = "alloy"
	}
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: opts.Timeout}
	}
	clientOpts := []option.RequestOption{
		option.WithAPIKey(opts.APIKey),
		option.WithHTTPClient(httpClient),
		// Retrying is the caller's decision, not the client's.
		option.WithMaxRetries(0),
	}
	if opts.BaseURL != "" {
		clientOpts = append(clientOpts, option.WithBaseURL(opts.BaseURL))
	}
	client := openai.NewClient(clientOpts...)
	return &Client{
		client:   &client,
		sttModel: opts.STTModel,
		ttsModel: opts.TTSModel,
		voice:    opts.Voice,
	}
}

// Transcribe uploads the audio file at path as multipart form data and
// returns the transcript text.
func (c *Client) Transcribe(ctx context.Context, path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("open audio file: %w", err)
	}
	defer func() {
		if err := f.Close(); err != nil {
			slog.Warn("failed to close audio file", slog.Any("err", err))
		}
	}()
	res, err := c.client.Audio.Transcriptions.New(ctx, openai.AudioTranscriptionNewParams{
		File:  f,
		Model: openai.AudioModel(c.sttModel),
	})
	if err != nil {
		logAPIError("transcription", err)
		return "", fmt.Errorf("transcribe: %w", err)
	}
	if res.Text == "" {
		return "", errors.New("transcribe: empty transcript")
	}
	return res.Text, nil
}

// Synthesize posts the text and returns the raw audio bytes.
func (c *Client) Synthesize(ctx context.Context, text string) ([]byte, error) {
	res, err := c.client.Audio.Speech.New(ctx, openai.AudioSpeechNewParams{
		Model: openai.SpeechModel(c.ttsModel),
		Input: text,
		Voice: openai.AudioSpeechNewParamsVoice(c.voice),
	})
	if err != nil {
		logAPIError("speech", err)
		return nil, fmt.Errorf("synthesize: %w", err)
	}
	defer func() {
		if err := res.Body.Close(); err != nil {
			slog.Warn("failed to close response body", slog.Any("err", err))
		}
	}()
	audio, err := io.ReadAll(res.Body)
	if err != nil {
		return nil, fmt.Errorf("synthesize: read response: %w", err)
	}
	if len(audio) == 0 {
		return nil, errors.New("synthesize: empty audio payload")
	}
	return audio, nil
}

// logAPIError records remote failure detail here so callers can surface a
// localized notice without ever seeing raw API internals.
func logAPIError(op string, err error) {
	var apierr *openai.Error
	if errors.As(err, &apierr) {
		slog.Error("audio api error",
			slog.String("op", op),
			slog.Int("status", apierr.StatusCode),
			slog.String("detail", apierr.Error()))
		return
	}
	slog.Error("audio api request failed", slog.String("op", op), slog.Any("err", err))
}
