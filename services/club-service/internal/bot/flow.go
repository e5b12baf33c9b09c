package bot

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/avolkov/clubdesk/services/club-service/internal/availability"
	"github.com/avolkov/clubdesk/services/club-service/internal/booking"
	"github.com/avolkov/clubdesk/services/club-service/internal/model"
)

// Sender is the slice of the Bot API the flow talks to. Tests swap in a
// recording fake.
type Sender interface {
	SendMessage(ctx context.Context, chatID int64, text string, keyboard *InlineKeyboardMarkup) error
	EditMessageText(ctx context.Context, chatID, messageID int64, text string, keyboard *InlineKeyboardMarkup) error
	AnswerCallback(ctx context.Context, callbackID string) error
}

// Callback data prefixes. Telegram caps callback_data at 64 bytes, so the
// payload is always a bare id or timestamp, never a composite.
const (
	cbMenuComputers = "menu:computers"
	cbMenuBookings  = "menu:bookings"
	cbMenuBook      = "menu:book"
	cbComputer      = "pc:"
	cbDate          = "date:"
	cbSlot          = "slot:"
)

const (
	dateLayout = "2006-01-02"
	slotLayout = "2006-01-02T15:04"
)

// Flow drives the chat booking conversation: menu, computer, date, start
// time. Picking a start time books a one-session reservation immediately.
type Flow struct {
	engine      *booking.Engine
	sender      Sender
	state       FlowState
	logger      *slog.Logger
	loc         *time.Location
	hours       availability.ClubHours
	horizonDays int
	now         func() time.Time
}

func NewFlow(engine *booking.Engine, sender Sender, state FlowState, logger *slog.Logger, loc *time.Location, hours availability.ClubHours) *Flow {
	return &Flow{
		engine:      engine,
		sender:      sender,
		state:       state,
		logger:      logger,
		loc:         loc,
		hours:       hours,
		horizonDays: 7,
		now:         time.Now,
	}
}

// HandleUpdate dispatches a single update. Errors from the engine surface to
// the chat as user messages; only transport failures propagate.
func (f *Flow) HandleUpdate(ctx context.Context, upd Update) error {
	switch {
	case upd.Message != nil:
		return f.handleMessage(ctx, upd.Message)
	case upd.CallbackQuery != nil:
		return f.handleCallback(ctx, upd.CallbackQuery)
	}
	return nil
}

func (f *Flow) handleMessage(ctx context.Context, msg *Message) error {
	switch strings.TrimSpace(msg.Text) {
	case "/start", "/menu":
		return f.sendMenu(ctx, msg.Chat.ID)
	case "/computers":
		return f.sendComputers(ctx, msg.Chat.ID, 0)
	case "/mybookings":
		if msg.From == nil {
			return nil
		}
		return f.sendMyBookings(ctx, msg.Chat.ID, 0, *msg.From)
	default:
		return f.sender.SendMessage(ctx, msg.Chat.ID, "Я умею бронировать компьютеры. Нажмите /start.", nil)
	}
}

func (f *Flow) handleCallback(ctx context.Context, cb *CallbackQuery) error {
	// Acknowledge first so the button stops spinning even if the action fails.
	if err := f.sender.AnswerCallback(ctx, cb.ID); err != nil {
		f.logger.Warn("answer callback failed", "error", err)
	}
	if cb.Message == nil {
		return nil
	}
	chatID := cb.Message.Chat.ID
	msgID := cb.Message.MessageID

	switch {
	case cb.Data == cbMenuComputers:
		return f.sendComputers(ctx, chatID, msgID)
	case cb.Data == cbMenuBookings:
		return f.sendMyBookings(ctx, chatID, msgID, cb.From)
	case cb.Data == cbMenuBook:
		return f.sendComputerPicker(ctx, chatID, msgID)
	case strings.HasPrefix(cb.Data, cbComputer):
		return f.sendDatePicker(ctx, chatID, msgID, strings.TrimPrefix(cb.Data, cbComputer))
	case strings.HasPrefix(cb.Data, cbDate):
		return f.sendSlotPicker(ctx, chatID, msgID, strings.TrimPrefix(cb.Data, cbDate))
	case strings.HasPrefix(cb.Data, cbSlot):
		return f.bookSlot(ctx, chatID, msgID, cb.From, strings.TrimPrefix(cb.Data, cbSlot))
	}
	return nil
}

func (f *Flow) sendMenu(ctx context.Context, chatID int64) error {
	kb := &InlineKeyboardMarkup{InlineKeyboard: [][]InlineKeyboardButton{
		{{Text: "Список компьютеров", CallbackData: cbMenuComputers}},
		{{Text: "Мои бронирования", CallbackData: cbMenuBookings}},
		{{Text: "Забронировать", CallbackData: cbMenuBook}},
	}}
	return f.sender.SendMessage(ctx, chatID, "Компьютерный клуб. Чем помочь?", kb)
}

// show either edits the originating message or sends a fresh one when the
// update came from a command rather than a button.
func (f *Flow) show(ctx context.Context, chatID, msgID int64, text string, kb *InlineKeyboardMarkup) error {
	if msgID != 0 {
		return f.sender.EditMessageText(ctx, chatID, msgID, text, kb)
	}
	return f.sender.SendMessage(ctx, chatID, text, kb)
}

func (f *Flow) sendComputers(ctx context.Context, chatID, msgID int64) error {
	computers, err := f.engine.ListActiveComputers(ctx)
	if err != nil {
		return f.show(ctx, chatID, msgID, "Не получилось загрузить список, попробуйте позже.", nil)
	}
	if len(computers) == 0 {
		return f.show(ctx, chatID, msgID, "Свободных компьютеров пока нет.", nil)
	}
	var sb strings.Builder
	sb.WriteString("Наши компьютеры:\n")
	for _, c := range computers {
		fmt.Fprintf(&sb, "• %s — %s\n", c.Name, c.Specs)
	}
	return f.show(ctx, chatID, msgID, sb.String(), nil)
}

func (f *Flow) sendMyBookings(ctx context.Context, chatID, msgID int64, from User) error {
	bookings, err := f.engine.BookingsForContact(ctx, telegramContact(from))
	if err != nil {
		return f.show(ctx, chatID, msgID, "Не получилось загрузить бронирования, попробуйте позже.", nil)
	}
	if len(bookings) == 0 {
		return f.show(ctx, chatID, msgID, "У вас пока нет бронирований.", nil)
	}
	var sb strings.Builder
	sb.WriteString("Ваши бронирования:\n")
	for _, b := range bookings {
		fmt.Fprintf(&sb, "• %s: %s — %s\n",
			b.ComputerName,
			b.StartTime.In(f.loc).Format("02.01 15:04"),
			b.EndTime.In(f.loc).Format("15:04"),
		)
	}
	return f.show(ctx, chatID, msgID, sb.String(), nil)
}

func (f *Flow) sendComputerPicker(ctx context.Context, chatID, msgID int64) error {
	computers, err := f.engine.ListActiveComputers(ctx)
	if err != nil {
		return f.show(ctx, chatID, msgID, "Не получилось загрузить список, попробуйте позже.", nil)
	}
	if len(computers) == 0 {
		return f.show(ctx, chatID, msgID, "Свободных компьютеров пока нет.", nil)
	}
	rows := make([][]InlineKeyboardButton, 0, len(computers))
	for _, c := range computers {
		rows = append(rows, []InlineKeyboardButton{{Text: c.Name, CallbackData: cbComputer + c.ID}})
	}
	return f.show(ctx, chatID, msgID, "Выберите компьютер:", &InlineKeyboardMarkup{InlineKeyboard: rows})
}

func (f *Flow) sendDatePicker(ctx context.Context, chatID, msgID int64, computerID string) error {
	if err := f.state.SetComputer(ctx, chatID, computerID); err != nil {
		f.logger.Error("save flow state failed", "error", err)
		return f.show(ctx, chatID, msgID, "Что-то пошло не так, начните заново: /start", nil)
	}
	now := f.now().In(f.loc)
	rows := make([][]InlineKeyboardButton, 0, f.horizonDays)
	for i := 0; i < f.horizonDays; i++ {
		day := now.AddDate(0, 0, i)
		if len(availability.StartTimes(f.hours, day, now)) == 0 {
			continue
		}
		rows = append(rows, []InlineKeyboardButton{{
			Text:         day.Format("02.01 (Mon)"),
			CallbackData: cbDate + day.Format(dateLayout),
		}})
	}
	if len(rows) == 0 {
		return f.show(ctx, chatID, msgID, "На ближайшую неделю нет доступных дней.", nil)
	}
	return f.show(ctx, chatID, msgID, "Выберите день:", &InlineKeyboardMarkup{InlineKeyboard: rows})
}

func (f *Flow) sendSlotPicker(ctx context.Context, chatID, msgID int64, dateStr string) error {
	date, err := time.ParseInLocation(dateLayout, dateStr, f.loc)
	if err != nil {
		return f.show(ctx, chatID, msgID, "Не понял дату, начните заново: /start", nil)
	}
	starts := f.engine.StartTimes(f.hours, date, f.now().In(f.loc))
	if len(starts) == 0 {
		return f.show(ctx, chatID, msgID, "На этот день слотов не осталось, выберите другой.", nil)
	}
	// Four slots per row keeps the keyboard readable on phones.
	var rows [][]InlineKeyboardButton
	var row []InlineKeyboardButton
	for _, s := range starts {
		row = append(row, InlineKeyboardButton{
			Text:         s.Format("15:04"),
			CallbackData: cbSlot + s.Format(slotLayout),
		})
		if len(row) == 4 {
			rows = append(rows, row)
			row = nil
		}
	}
	if len(row) > 0 {
		rows = append(rows, row)
	}
	return f.show(ctx, chatID, msgID, "Выберите время начала (сеанс 1 час):", &InlineKeyboardMarkup{InlineKeyboard: rows})
}

func (f *Flow) bookSlot(ctx context.Context, chatID, msgID int64, from User, slotStr string) error {
	computerID, err := f.state.Computer(ctx, chatID)
	if err != nil {
		if errors.Is(err, ErrNoFlow) {
			return f.show(ctx, chatID, msgID, "Сессия выбора устарела, начните заново: /start", nil)
		}
		f.logger.Error("load flow state failed", "error", err)
		return f.show(ctx, chatID, msgID, "Что-то пошло не так, начните заново: /start", nil)
	}
	start, err := time.ParseInLocation(slotLayout, slotStr, f.loc)
	if err != nil {
		return f.show(ctx, chatID, msgID, "Не понял время, начните заново: /start", nil)
	}

	b, err := f.engine.CreateBooking(ctx, booking.CreateRequest{
		Contact:    telegramContact(from),
		ComputerID: computerID,
		Interval:   availability.Interval{Start: start, End: start.Add(f.hours.Session)},
	}, f.now().In(f.loc))
	if err != nil {
		return f.show(ctx, chatID, msgID, rejectionText(err), nil)
	}

	_ = f.state.Clear(ctx, chatID)
	text := fmt.Sprintf("Готово! %s забронирован на %s — %s.",
		b.ComputerName,
		b.StartTime.In(f.loc).Format("02.01 15:04"),
		b.EndTime.In(f.loc).Format("15:04"),
	)
	return f.show(ctx, chatID, msgID, text, nil)
}

// rejectionText gives each rejection reason its own wording so the customer
// knows whether to pick another time, another computer, or try again.
func rejectionText(err error) string {
	switch {
	case errors.Is(err, model.ErrSlotUnavailable):
		return "Это время уже занято. Выберите другой слот: /start"
	case errors.Is(err, model.ErrPastStartTime):
		return "Это время уже прошло. Выберите другой слот: /start"
	case errors.Is(err, model.ErrUnknownComputer):
		return "Этот компьютер больше недоступен. Выберите другой: /start"
	case errors.Is(err, model.ErrInvalidInterval):
		return "Некорректный интервал, начните заново: /start"
	default:
		return "Не получилось создать бронирование, попробуйте позже."
	}
}

func telegramContact(u User) model.Contact {
	return model.Contact{
		Channel: model.ContactTelegram,
		Value:   strconv.FormatInt(u.ID, 10),
		Name:    u.DisplayName(),
	}
}
