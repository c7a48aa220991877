package bot

import (
	"context"
	"log/slog"
	"runtime/debug"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"

	"github.com/mahdighaemi123/GoftarGPT/telemetry"
)

// content is a message payload resolved once at ingestion into a closed
// variant, so the router dispatches on it instead of probing optional
// fields repeatedly.
type content struct {
	kind   contentKind
	text   string
	fileID string
}

type contentKind int

const (
	contentUnsupported contentKind = iota
	contentVoice
	contentText
)

func classify(msg *tgbotapi.Message) content {
	switch {
	case msg.Voice != nil:
		return content{kind: contentVoice, fileID: msg.Voice.FileID}
	case msg.Text != "":
		return content{kind: contentText, text: msg.Text}
	default:
		return content{kind: contentUnsupported}
	}
}

// processUpdate runs the per-update state machine: enrollment code, access
// gate, then content dispatch. Failures of any kind are contained here —
// siblings in the batch never see them, the user gets a localized notice,
// and the batch still joins.
func (b *Bot) processUpdate(ctx context.Context, upd tgbotapi.Update) {
	msg := upd.Message
	if msg == nil {
		return
	}
	chatID := msg.Chat.ID

	ctx = telemetry.WithCorrelation(ctx, uuid.NewString())
	logger := telemetry.LoggerWithCorr(ctx).With(
		slog.Int("update_id", upd.UpdateID), slog.Int64("chat_id", chatID))

	ctx, span := telemetry.StartSpan(ctx, "bot", "process_update",
		attribute.Int("update_id", upd.UpdateID),
		attribute.Int64("chat_id", chatID))
	defer span.End()

	defer func() {
		if r := recover(); r != nil {
			logger.Error("update handler panicked",
				slog.Any("panic", r), slog.String("stack", string(debug.Stack())))
			telemetry.UpdateFailures.Inc()
			b.sendReply(chatID, msgGenericFailure, msg.MessageID)
		}
	}()

	start := time.Now()
	defer func() {
		telemetry.UpdateDuration.Observe(time.Since(start).Seconds())
	}()

	// 1. VIP enrollment
	if text := strings.TrimSpace(msg.Text); text != "" && text == b.vipCode {
		if err := b.vips.Add(chatID); err != nil {
			telemetry.RecordError(span, err)
			telemetry.UpdateFailures.Inc()
			logger.Error("vip enrollment persist failed", slog.Any("err", err))
			b.sendReply(chatID, msgGenericFailure, msg.MessageID)
			return
		}
		telemetry.Enrollments.Inc()
		telemetry.SetVIPCount(b.vips.Len())
		logger.Info("chat enrolled as vip")
		b.sendReply(chatID, msgEnrolled, msg.MessageID)
		return
	}

	// 2. Access gate
	if !b.vips.Contains(chatID) {
		b.sendReply(chatID, msgAccessPrompt, msg.MessageID)
		return
	}

	// 3-5. Content dispatch
	var err error
	switch c := classify(msg); c.kind {
	case contentVoice:
		err = b.handleVoice(ctx, chatID, msg.MessageID, c.fileID)
	case contentText:
		err = b.handleText(ctx, chatID, msg.MessageID, c.text)
	default:
		b.sendReply(chatID, msgUnsupported, msg.MessageID)
	}
	if err != nil {
		telemetry.RecordError(span, err)
		telemetry.UpdateFailures.Inc()
		logger.Error("update processing failed", slog.Any("err", err))
		b.sendReply(chatID, msgGenericFailure, msg.MessageID)
		return
	}
	telemetry.UpdatesProcessed.Inc()
}
