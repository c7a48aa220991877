// Package bot implements the update-processing pipeline: the long-poll
// offset-cursor loop, the per-update router with VIP access control, the two
// audio handlers, and threaded reply delivery with a formatting fallback.
package bot

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/mahdighaemi123/GoftarGPT/storage"
	"github.com/mahdighaemi123/GoftarGPT/telemetry"
)

// Telegram is the slice of the Bot API the pipeline consumes.
// *tgbotapi.BotAPI satisfies it; tests substitute a fake.
type Telegram interface {
	GetUpdates(config tgbotapi.UpdateConfig) ([]tgbotapi.Update, error)
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
	GetFile(config tgbotapi.FileConfig) (tgbotapi.File, error)
}

// AudioTransformer is the slice of the audio API the handlers consume.
type AudioTransformer interface {
	Transcribe(ctx context.Context, path string) (string, error)
	Synthesize(ctx context.Context, text string) ([]byte, error)
}

// Options configures a Bot. Telegram, Audio, Store and VIPs are required.
type Options struct {
	Telegram Telegram
	Token    string // used only to build file download links
	Audio    AudioTransformer
	Store    *storage.Store
	VIPs     *storage.VIPSet
	VIPCode  string

	PollLimit    int
	PollTimeout  time.Duration
	FetchBackoff time.Duration
}

type Bot struct {
	api     Telegram
	token   string
	audio   AudioTransformer
	store   *storage.Store
	vips    *storage.VIPSet
	vipCode string

	pollLimit    int
	pollTimeout  time.Duration
	fetchBackoff time.Duration

	offset int // next update id to request; touched only by Run

	// downloadFile fetches a Telegram file URL to a local path. Swapped in tests.
	downloadFile func(ctx context.Context, url, dest string) error

	httpClient *http.Client
}

func New(opts Options) *Bot {
	b := &Bot{
		api:          opts.Telegram,
		token:        opts.Token,
		audio:        opts.Audio,
		store:        opts.Store,
		vips:         opts.VIPs,
		vipCode:      opts.VIPCode,
		pollLimit:    opts.PollLimit,
		pollTimeout:  opts.PollTimeout,
		fetchBackoff: opts.FetchBackoff,
		httpClient:   &http.Client{Timeout: 30 * time.Second},
	}
	if b.pollLimit <= 0 {
		b.pollLimit = 10
	}
	if b.pollTimeout <= 0 {
		b.pollTimeout = 30 * time.Second
	}
	if b.fetchBackoff <= 0 {
		b.fetchBackoff = 5 * time.Second
	}
	b.downloadFile = b.downloadToFile
	return b
}

// Run drives the poll loop until ctx is canceled. Fetch failures are retried
// forever with a fixed backoff and never touch the cursor; a non-empty batch
// is fanned out concurrently and fully joined before the cursor is advanced
// and persisted, so a crash mid-batch re-delivers at-least-once instead of
// losing updates.
func (b *Bot) Run(ctx context.Context) {
	if off, ok := b.store.LoadOffset(); ok {
		b.offset = off
	}
	slog.Info("update poll loop starting",
		slog.Int("offset", b.offset),
		slog.Int("limit", b.pollLimit),
		slog.Duration("poll_timeout", b.pollTimeout),
		slog.Duration("fetch_backoff", b.fetchBackoff))
	for {
		updates, err := b.fetchUpdates(ctx)
		if err != nil {
			// Only context cancellation escapes the retry loop.
			slog.Info("update poll loop stopped")
			return
		}
		if len(updates) == 0 {
			continue
		}
		b.dispatchBatch(ctx, updates)
		b.advanceCursor(updates)
	}
}

// fetchUpdates long-polls getUpdates for message updates, retrying
// indefinitely at a fixed interval on transport failure.
func (b *Bot) fetchUpdates(ctx context.Context) ([]tgbotapi.Update, error) {
	cfg := tgbotapi.UpdateConfig{
		Offset:         b.offset,
		Limit:          b.pollLimit,
		Timeout:        int(b.pollTimeout.Seconds()),
		AllowedUpdates: []string{"message"},
	}
	return backoff.Retry(ctx, func() ([]tgbotapi.Update, error) {
		updates, err := b.api.GetUpdates(cfg)
		if err != nil {
			telemetry.FetchFailures.Inc()
			return nil, err
		}
		return updates, nil
	},
		backoff.WithBackOff(backoff.NewConstantBackOff(b.fetchBackoff)),
		backoff.WithMaxElapsedTime(0),
		backoff.WithNotify(func(err error, d time.Duration) {
			slog.Error("fetch updates failed; backing off",
				slog.Any("err", err), slog.Duration("retry_in", d))
		}),
	)
}

// dispatchBatch fans the batch out one goroutine per update and joins on all
// of them. The barrier is what makes the cursor write after it safe.
func (b *Bot) dispatchBatch(ctx context.Context, updates []tgbotapi.Update) {
	telemetry.BatchesDispatched.Inc()
	telemetry.BatchSize.Observe(float64(len(updates)))
	var wg sync.WaitGroup
	for _, upd := range updates {
		wg.Add(1)
		go func(upd tgbotapi.Update) {
			defer wg.Done()
			b.processUpdate(ctx, upd)
		}(upd)
	}
	wg.Wait()
}

// advanceCursor persists max(update_id)+1 for a fully-joined batch, exactly
// once. Never called for empty batches or failed fetches.
func (b *Bot) advanceCursor(updates []tgbotapi.Update) {
	last := updates[0].UpdateID
	for _, u := range updates[1:] {
		if u.UpdateID > last {
			last = u.UpdateID
		}
	}
	b.offset = last + 1
	if err := b.store.SaveOffset(b.offset); err != nil {
		slog.Error("persist offset failed", slog.Int("offset", b.offset), slog.Any("err", err))
		return
	}
	telemetry.SetOffset(b.offset)
}

// downloadToFile streams a Telegram file URL to dest.
func (b *Bot) downloadToFile(ctx context.Context, url, dest string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	resp, err := b.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			slog.Warn("failed to close response body", slog.Any("err", err))
		}
	}()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("download status %d", resp.StatusCode)
	}
	out, err := os.Create(dest)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, resp.Body); err != nil {
		_ = out.Close()
		_ = os.Remove(dest)
		return err
	}
	return out.Close()
}
