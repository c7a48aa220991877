package bot

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/mahdighaemi123/GoftarGPT/storage"
	"github.com/mahdighaemi123/GoftarGPT/telemetry"
)

// fakeTelegram records traffic and lets tests script fetches and send
// failures.
type fakeTelegram struct {
	mu sync.Mutex

	onGetUpdates func(cfg tgbotapi.UpdateConfig) ([]tgbotapi.Update, error)
	fetchOffsets []int

	sendErr func(c tgbotapi.Chattable) error
	sent    []tgbotapi.Chattable

	actions []tgbotapi.Chattable

	onGetFile func(cfg tgbotapi.FileConfig) (tgbotapi.File, error)
}

func (f *fakeTelegram) GetUpdates(cfg tgbotapi.UpdateConfig) ([]tgbotapi.Update, error) {
	f.mu.Lock()
	f.fetchOffsets = append(f.fetchOffsets, cfg.Offset)
	f.mu.Unlock()
	if f.onGetUpdates == nil {
		return nil, nil
	}
	return f.onGetUpdates(cfg)
}

func (f *fakeTelegram) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sendErr != nil {
		if err := f.sendErr(c); err != nil {
			return tgbotapi.Message{}, err
		}
	}
	f.sent = append(f.sent, c)
	return tgbotapi.Message{}, nil
}

func (f *fakeTelegram) Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.actions = append(f.actions, c)
	return &tgbotapi.APIResponse{Ok: true}, nil
}

func (f *fakeTelegram) GetFile(cfg tgbotapi.FileConfig) (tgbotapi.File, error) {
	if f.onGetFile != nil {
		return f.onGetFile(cfg)
	}
	return tgbotapi.File{FileID: cfg.FileID, FilePath: "voice/" + cfg.FileID}, nil
}

func (f *fakeTelegram) sentMessages() []tgbotapi.MessageConfig {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []tgbotapi.MessageConfig
	for _, c := range f.sent {
		if m, ok := c.(tgbotapi.MessageConfig); ok {
			out = append(out, m)
		}
	}
	return out
}

func (f *fakeTelegram) sentVoices() []tgbotapi.VoiceConfig {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []tgbotapi.VoiceConfig
	for _, c := range f.sent {
		if v, ok := c.(tgbotapi.VoiceConfig); ok {
			out = append(out, v)
		}
	}
	return out
}

// fakeAudio scripts the audio transform client.
type fakeAudio struct {
	mu sync.Mutex

	transcript    string
	transcribeErr error
	transcribes   int

	speech    []byte
	synthErr  error
	syntheses int

	panicOnSynthesize bool
}

func (f *fakeAudio) Transcribe(ctx context.Context, path string) (string, error) {
	f.mu.Lock()
	f.transcribes++
	f.mu.Unlock()
	return f.transcript, f.transcribeErr
}

func (f *fakeAudio) Synthesize(ctx context.Context, text string) ([]byte, error) {
	if f.panicOnSynthesize {
		panic("synthesize exploded")
	}
	f.mu.Lock()
	f.syntheses++
	f.mu.Unlock()
	return f.speech, f.synthErr
}

func (f *fakeAudio) calls() (transcribes, syntheses int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.transcribes, f.syntheses
}

func newTestBot(t *testing.T, tg *fakeTelegram, audio *fakeAudio) *Bot {
	t.Helper()
	telemetry.Init()
	store, err := storage.Open(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	return New(Options{
		Telegram:     tg,
		Token:        "test-token",
		Audio:        audio,
		Store:        store,
		VIPs:         storage.NewVIPSet(store),
		VIPCode:      "VIP123",
		FetchBackoff: time.Millisecond,
		PollTimeout:  time.Second,
	})
}

func update(id int, chatID int64, messageID int, text string) tgbotapi.Update {
	return tgbotapi.Update{
		UpdateID: id,
		Message: &tgbotapi.Message{
			MessageID: messageID,
			Chat:      &tgbotapi.Chat{ID: chatID},
			Text:      text,
		},
	}
}

func TestAdvanceCursorPersistsMaxPlusOne(t *testing.T) {
	b := newTestBot(t, &fakeTelegram{}, &fakeAudio{})
	// Batch ids deliberately out of order; the cursor must follow the max.
	b.advanceCursor([]tgbotapi.Update{
		{UpdateID: 7}, {UpdateID: 9}, {UpdateID: 5},
	})
	off, ok := b.store.LoadOffset()
	if !ok || off != 10 {
		t.Fatalf("offset = %d, %v; want 10, true", off, ok)
	}
	if b.offset != 10 {
		t.Fatalf("in-memory offset = %d, want 10", b.offset)
	}
}

func TestRunAdvancesCursorBetweenBatches(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	batches := [][]tgbotapi.Update{
		{update(3, 1, 1, "hi"), update(4, 2, 2, "hey")},
		{update(9, 3, 3, "yo")},
	}
	var call int
	tg := &fakeTelegram{}
	tg.onGetUpdates = func(cfg tgbotapi.UpdateConfig) ([]tgbotapi.Update, error) {
		if call >= len(batches) {
			cancel()
			return nil, context.Canceled
		}
		b := batches[call]
		call++
		return b, nil
	}
	b := newTestBot(t, tg, &fakeAudio{})
	b.Run(ctx)

	off, ok := b.store.LoadOffset()
	if !ok || off != 10 {
		t.Fatalf("final offset = %d, %v; want 10, true", off, ok)
	}
	// The second fetch must already carry the first batch's cursor.
	if len(tg.fetchOffsets) < 2 || tg.fetchOffsets[1] != 5 {
		t.Fatalf("fetch offsets = %v; want second fetch at 5", tg.fetchOffsets)
	}
	if tg.fetchOffsets[2] != 10 {
		t.Fatalf("fetch offsets = %v; want third fetch at 10", tg.fetchOffsets)
	}
}

func TestFetchFailureRetriesWithoutCursorWrite(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var call int
	tg := &fakeTelegram{}
	tg.onGetUpdates = func(cfg tgbotapi.UpdateConfig) ([]tgbotapi.Update, error) {
		call++
		if call <= 3 {
			return nil, errors.New("telegram unreachable")
		}
		cancel()
		return nil, context.Canceled
	}
	b := newTestBot(t, tg, &fakeAudio{})
	b.Run(ctx)

	if call != 4 {
		t.Fatalf("getUpdates calls = %d, want 4 (3 failures + terminal)", call)
	}
	if _, ok := b.store.LoadOffset(); ok {
		t.Fatal("cursor must not be written when fetches fail")
	}
}

func TestEmptyBatchLoopsWithoutCursorWrite(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var call int
	tg := &fakeTelegram{}
	tg.onGetUpdates = func(cfg tgbotapi.UpdateConfig) ([]tgbotapi.Update, error) {
		call++
		if call < 3 {
			return nil, nil
		}
		cancel()
		return nil, context.Canceled
	}
	b := newTestBot(t, tg, &fakeAudio{})
	b.Run(ctx)

	if call != 3 {
		t.Fatalf("getUpdates calls = %d, want 3", call)
	}
	if _, ok := b.store.LoadOffset(); ok {
		t.Fatal("cursor must not be written for empty batches")
	}
	if len(tg.sentMessages()) != 0 {
		t.Fatal("no replies expected for empty batches")
	}
}

func TestBatchBarrierJoinsAllHandlersBeforeCursorWrite(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// One slow non-member update; the cursor write must still wait for it.
	slow := &fakeAudio{}
	var call int
	tg := &fakeTelegram{}
	tg.sendErr = func(c tgbotapi.Chattable) error {
		time.Sleep(20 * time.Millisecond)
		return nil
	}
	tg.onGetUpdates = func(cfg tgbotapi.UpdateConfig) ([]tgbotapi.Update, error) {
		call++
		if call == 1 {
			return []tgbotapi.Update{
				update(1, 10, 1, "hello"),
				update(2, 11, 2, "hello"),
				update(3, 12, 3, "hello"),
			}, nil
		}
		cancel()
		return nil, context.Canceled
	}
	b := newTestBot(t, tg, slow)
	b.Run(ctx)

	if got := len(tg.sentMessages()); got != 3 {
		t.Fatalf("replies before cursor advance = %d, want 3", got)
	}
	if off, ok := b.store.LoadOffset(); !ok || off != 4 {
		t.Fatalf("offset = %d, %v; want 4, true", off, ok)
	}
}
