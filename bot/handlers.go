package bot

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/mahdighaemi123/GoftarGPT/telemetry"
)

// User-facing notices. Persian, matching the bot's audience; errors are
// never surfaced raw.
const (
	msgEnrolled         = "🎉 تبریک! شما اکنون کاربر VIP هستید."
	msgAccessPrompt     = "🔒 برای استفاده از این ربات، لطفاً کد VIP خود را ارسال کنید."
	msgUnsupported      = "لطفاً یک پیام متنی یا صوتی ارسال کنید. ❌"
	msgGenericFailure   = "❌ خطایی در پردازش پیام شما رخ داد."
	msgSynthesizeFailed = "⚠️ متاسفانه نتوانستم متن شما را به صوت تبدیل کنم."
	msgTranscribeFailed = "⚠️ متاسفانه نتوانستم این پیام صوتی را به متن تبدیل کنم."
)

// handleVoice downloads the voice note to a scratch path keyed by its file
// id, transcribes it, and replies with the text. The downloaded file is
// removed exactly once whatever the outcome; cleanup errors are logged,
// never raised. A transcription with no usable result becomes a localized
// notice, not an error.
func (b *Bot) handleVoice(ctx context.Context, chatID int64, messageID int, fileID string) error {
	b.sendChatAction(chatID, tgbotapi.ChatTyping)
	logger := telemetry.LoggerWithCorr(ctx).With(slog.Int64("chat_id", chatID))

	file, err := b.api.GetFile(tgbotapi.FileConfig{FileID: fileID})
	if err != nil {
		return fmt.Errorf("get voice file: %w", err)
	}
	dest := filepath.Join(b.store.FilesDir(), fileID+".oga")
	if err := b.downloadFile(ctx, file.Link(b.token), dest); err != nil {
		return fmt.Errorf("download voice file: %w", err)
	}
	defer func() {
		if err := os.Remove(dest); err != nil {
			logger.Warn("remove temp audio file failed",
				slog.String("path", dest), slog.Any("err", err))
		}
	}()

	tctx, span := telemetry.StartSpan(ctx, "bot", "transcribe")
	text, err := b.audio.Transcribe(tctx, dest)
	telemetry.RecordError(span, err)
	span.End()
	if err != nil {
		telemetry.TranscriptionsFailed.Inc()
		logger.Warn("transcription unavailable", slog.Any("err", err))
		b.sendReply(chatID, msgTranscribeFailed, messageID)
		return nil
	}
	telemetry.Transcriptions.Inc()
	logger.Info("transcription sent")
	b.sendReply(chatID, text, messageID)
	return nil
}

// handleText synthesizes the text and replies with the audio as a voice
// message. A synthesis with no usable result becomes a localized notice.
func (b *Bot) handleText(ctx context.Context, chatID int64, messageID int, text string) error {
	b.sendChatAction(chatID, tgbotapi.ChatRecordVoice)
	logger := telemetry.LoggerWithCorr(ctx).With(slog.Int64("chat_id", chatID))

	sctx, span := telemetry.StartSpan(ctx, "bot", "synthesize")
	audio, err := b.audio.Synthesize(sctx, text)
	telemetry.RecordError(span, err)
	span.End()
	if err != nil || len(audio) == 0 {
		telemetry.SynthesesFailed.Inc()
		logger.Warn("synthesis unavailable", slog.Any("err", err))
		b.sendReply(chatID, msgSynthesizeFailed, messageID)
		return nil
	}
	telemetry.Syntheses.Inc()

	voice := tgbotapi.NewVoice(chatID, tgbotapi.FileBytes{Name: "speech.ogg", Bytes: audio})
	voice.ReplyToMessageID = messageID
	if _, err := b.api.Send(voice); err != nil {
		return fmt.Errorf("send voice reply: %w", err)
	}
	logger.Info("speech sent")
	return nil
}

// sendChatAction announces a presence indicator. Best effort: a failed
// indicator never fails the handler.
func (b *Bot) sendChatAction(chatID int64, action string) {
	if _, err := b.api.Request(tgbotapi.NewChatAction(chatID, action)); err != nil {
		slog.Debug("send chat action failed",
			slog.Int64("chat_id", chatID), slog.String("action", action), slog.Any("err", err))
	}
}

// sendReply delivers text threaded to replyTo, trying Markdown first and
// falling back once to the identical plain payload when the transport
// rejects the formatted one. A second failure is logged and dropped —
// delivery is best effort.
func (b *Bot) sendReply(chatID int64, text string, replyTo int) {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ParseMode = tgbotapi.ModeMarkdown
	msg.ReplyToMessageID = replyTo
	msg.DisableWebPagePreview = true
	_, err := b.api.Send(msg)
	if err == nil {
		return
	}
	slog.Warn("formatted send rejected; retrying plain",
		slog.Int64("chat_id", chatID), slog.Any("err", err))

	plain := tgbotapi.NewMessage(chatID, text)
	plain.ReplyToMessageID = replyTo
	plain.DisableWebPagePreview = true
	if _, err := b.api.Send(plain); err != nil {
		slog.Error("plain send failed; giving up",
			slog.Int64("chat_id", chatID), slog.Any("err", err))
	}
}
