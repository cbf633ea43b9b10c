// Package api provides handlers for external APIs and interfaces
package api

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/abelzeko/riverflow/internal/condition"
	"github.com/abelzeko/riverflow/internal/entities"
	"github.com/abelzeko/riverflow/internal/polling"
	"github.com/abelzeko/riverflow/internal/repository"
	"github.com/abelzeko/riverflow/internal/usecases"
)

const helpText = "Available commands:\n" +
	"/start - Start the bot\n" +
	"/rivers - Show the list of rivers\n" +
	"/river [slug] - Show current conditions for a river\n" +
	"/putin [slug] [lat] [lon] - Conditions for the section starting at a put-in\n" +
	"/help - Show this help message"

// TelegramBot handles interactions with the Telegram API
type TelegramBot struct {
	bot         *tgbotapi.BotAPI
	rivers      *usecases.RiverUseCase
	gauges      *usecases.GaugeUseCase
	alertChatID int64
}

// NewTelegramBot creates a new Telegram bot handler
func NewTelegramBot(botToken string, rivers *usecases.RiverUseCase, gauges *usecases.GaugeUseCase, alertChatID int64) (*TelegramBot, error) {
	bot, err := tgbotapi.NewBotAPI(botToken)
	if err != nil {
		return nil, eris.Wrap(err, "failed to create bot")
	}

	return &TelegramBot{
		bot:         bot,
		rivers:      rivers,
		gauges:      gauges,
		alertChatID: alertChatID,
	}, nil
}

// Start listens for and handles Telegram messages until ctx is cancelled
func (t *TelegramBot) Start(ctx context.Context) {
	zap.L().Info("authorized on telegram", zap.String("account", t.bot.Self.UserName))

	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60

	updates := t.bot.GetUpdatesChan(u)
	defer t.bot.StopReceivingUpdates()
	zap.L().Info("bot is now listening for messages")

	for {
		select {
		case <-ctx.Done():
			return
		case update, ok := <-updates:
			if !ok {
				return
			}
			if update.Message == nil {
				continue
			}
			t.handleMessage(ctx, update.Message)
		}
	}
}

// handleMessage processes a Telegram message
func (t *TelegramBot) handleMessage(ctx context.Context, message *tgbotapi.Message) {
	zap.L().Debug("received message",
		zap.Int64("chat_id", message.Chat.ID),
		zap.String("text", message.Text),
	)

	msg := tgbotapi.NewMessage(message.Chat.ID, t.respond(ctx, message))
	if _, err := t.bot.Send(msg); err != nil {
		zap.L().Error("error sending message", zap.Int64("chat_id", message.Chat.ID), zap.Error(err))
	}
}

// respond builds the reply text for a message
func (t *TelegramBot) respond(ctx context.Context, message *tgbotapi.Message) string {
	if !message.IsCommand() {
		return "I don't understand. Use /help to see available commands."
	}

	switch message.Command() {
	case "start":
		return "Welcome to Riverflow! Use /rivers to see the list of available rivers or /help for more information."
	case "help":
		return helpText
	case "rivers":
		return t.riversReply(ctx)
	case "river":
		return t.riverReply(ctx, strings.TrimSpace(message.CommandArguments()))
	case "putin":
		return t.putInReply(ctx, message.CommandArguments())
	default:
		return "Unknown command. Use /help to see available commands."
	}
}

func (t *TelegramBot) riversReply(ctx context.Context) string {
	rivers, err := t.rivers.ListRivers(ctx)
	if err != nil {
		zap.L().Error("error listing rivers", zap.Error(err))
		return "Error fetching river data. Please try again later."
	}
	if len(rivers) == 0 {
		return "No rivers are configured yet."
	}

	var b strings.Builder
	b.WriteString("Available rivers:\n\n")
	for _, r := range rivers {
		fmt.Fprintf(&b, "• %s (%s), %.1f mi\n", r.Name, r.Slug, r.LengthMiles)
	}
	b.WriteString("\nUse /river [slug] to get current conditions.")
	return b.String()
}

func (t *TelegramBot) riverReply(ctx context.Context, slug string) string {
	if slug == "" {
		return "Please specify a river. Example: /river current-river"
	}
	return t.conditionReply(ctx, slug, nil)
}

func (t *TelegramBot) putInReply(ctx context.Context, args string) string {
	slug, putIn, err := ParsePutInArgs(args)
	if err != nil {
		return "Usage: /putin [slug] [lat] [lon]. " + err.Error()
	}
	return t.conditionReply(ctx, slug, &putIn)
}

func (t *TelegramBot) conditionReply(ctx context.Context, slug string, putIn *entities.Coord) string {
	river, err := t.rivers.RiverBySlug(ctx, slug)
	if errors.Is(err, repository.ErrNotFound) {
		return fmt.Sprintf("No river named '%s'. Use /rivers to see the available rivers.", slug)
	}
	if err != nil {
		zap.L().Error("error fetching river", zap.String("slug", slug), zap.Error(err))
		return "Error fetching river data. Please try again later."
	}

	rc, err := t.gauges.RiverCondition(ctx, river.ID, putIn)
	if errors.Is(err, usecases.ErrNoPrimaryGauge) {
		return fmt.Sprintf("%s has no gauge configured yet.", river.Name)
	}
	if err != nil {
		zap.L().Error("error classifying river", zap.String("slug", slug), zap.Error(err))
		return "Error fetching river data. Please try again later."
	}
	return FormatCondition(rc)
}

// FrequencyChanged announces polling cadence changes to the alert chat
func (t *TelegramBot) FrequencyChanged(_ context.Context, station entities.GaugeStation, decision polling.Decision) error {
	if t.alertChatID == 0 {
		return nil
	}
	msg := tgbotapi.NewMessage(t.alertChatID, FormatFrequencyChange(station, decision))
	if _, err := t.bot.Send(msg); err != nil {
		return eris.Wrapf(err, "send frequency alert for %s", station.SiteID)
	}
	return nil
}

// ParsePutInArgs parses "<slug> <lat> <lon>"
func ParsePutInArgs(args string) (string, entities.Coord, error) {
	fields := strings.Fields(args)
	if len(fields) != 3 {
		return "", entities.Coord{}, eris.New("expected a river slug, latitude and longitude")
	}
	lat, err := strconv.ParseFloat(strings.TrimSuffix(fields[1], ","), 64)
	if err != nil || lat < -90 || lat > 90 {
		return "", entities.Coord{}, eris.Errorf("invalid latitude %q", fields[1])
	}
	lon, err := strconv.ParseFloat(fields[2], 64)
	if err != nil || lon < -180 || lon > 180 {
		return "", entities.Coord{}, eris.Errorf("invalid longitude %q", fields[2])
	}
	return fields[0], entities.Coord{Lon: lon, Lat: lat}, nil
}

var conditionEmoji = map[string]string{
	condition.CodeTooLow:    "🪨",
	condition.CodeLow:       "🟡",
	condition.CodeOptimal:   "🟢",
	condition.CodeHigh:      "🟠",
	condition.CodeDangerous: "🔴",
	condition.CodeUnknown:   "❔",
}

// FormatCondition renders a classified river condition for chat
func FormatCondition(rc *usecases.RiverCondition) string {
	var b strings.Builder
	res := rc.Result
	sel := rc.Selection

	fmt.Fprintf(&b, "🌊 %s\n", rc.River.Name)
	if sel.PutInMile != nil {
		fmt.Fprintf(&b, "Put-in at %s\n", usecases.FormatMile(sel.PutInMile))
	}
	fmt.Fprintf(&b, "\n%s %s\n", conditionEmoji[res.Code], res.Label)

	if res.Value != nil {
		fmt.Fprintf(&b, "Reading: %.2f %s\n", *res.Value, res.Unit)
	}
	fmt.Fprintf(&b, "Gauge: %s (%s)", sel.Station.Name, sel.Station.SiteID)
	if sel.DistanceMiles != nil {
		fmt.Fprintf(&b, ", %.1f mi away", *sel.DistanceMiles)
	}
	b.WriteString("\n")

	if rc.Reading != nil {
		fmt.Fprintf(&b, "🕒 Measured: %s\n", rc.Reading.Timestamp.UTC().Format("2006-01-02 15:04 MST"))
	}
	if res.Stale || res.Code == condition.CodeUnknown {
		fmt.Fprintf(&b, "⚠️ %s\n", res.Reason)
	}
	if sel.AccuracyWarning {
		fmt.Fprintf(&b, "⚠️ %s\n", sel.AccuracyReason)
	}
	if sel.Fallback {
		b.WriteString("⚠️ No gauge near this put-in, showing the river's primary gauge\n")
	}
	return strings.TrimRight(b.String(), "\n")
}

// FormatFrequencyChange renders a polling cadence change for the alert chat
func FormatFrequencyChange(station entities.GaugeStation, decision polling.Decision) string {
	if decision.HighFrequency {
		return fmt.Sprintf("📈 %s (%s) switched to high-frequency polling: %s",
			station.Name, station.SiteID, decision.Reason)
	}
	return fmt.Sprintf("📉 %s (%s) back to normal polling: %s",
		station.Name, station.SiteID, decision.Reason)
}
