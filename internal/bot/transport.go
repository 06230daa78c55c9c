// Package bot implements the operator-facing chat protocol: login, menus,
// the paginated log-file browser with countdown-based delivery, and live
// parameter subscriptions.
package bot

import "fmt"

// Button is one inline-keyboard button.
type Button struct {
	Text         string
	CallbackData string
}

// Keyboard is either an inline keyboard (buttons with callback data) or a
// persistent reply keyboard (plain labels). At most one of the two is set.
type Keyboard struct {
	Inline [][]Button
	Reply  [][]string
}

// Transport is the host messaging channel. Calls are fire-and-forget from
// the engine's point of view: failures are logged by callers, never
// propagated out of a handler.
type Transport interface {
	SendMessage(chatID int64, text string, keyboard *Keyboard) (messageID int, err error)
	EditMessage(chatID int64, messageID int, text string, keyboard *Keyboard) error
	DeleteMessage(chatID int64, messageID int) error
	SendDocument(chatID int64, filePath, caption string) (messageID int, err error)
	AnswerCallback(callbackID, text string) error
}

// Callback is one inbound button press.
type Callback struct {
	ID        string
	ChatID    int64
	MessageID int
	Data      string
}

func mainMenu() *Keyboard {
	return &Keyboard{Reply: [][]string{
		{"Onboard Parameters"},
		{"Log Files"},
	}}
}

func loginChoices() *Keyboard {
	return &Keyboard{Inline: [][]Button{
		{{Text: "How do I get an access token?", CallbackData: "token_login_question"}},
		{{Text: "I have an access token", CallbackData: "token_ready"}},
	}}
}

func parameterSelectionMenu() *Keyboard {
	return &Keyboard{Inline: [][]Button{
		{{Text: "Weather forecast", CallbackData: "get_forecasts"}},
		{{Text: "Position & speed", CallbackData: "get_position"}},
		{{Text: "Wind", CallbackData: "get_wind"}},
		{{Text: "Waves", CallbackData: "get_waves"}},
		{{Text: "Batteries", CallbackData: "get_batteries"}},
		{{Text: "Cancel", CallbackData: "dismiss"}},
	}}
}

func liveParameterMenu() *Keyboard {
	return &Keyboard{Inline: [][]Button{
		{{Text: "Stop updates", CallbackData: "dismiss_and_unsubscribe"}},
	}}
}

func downloadConfirmMenu(fileName string) *Keyboard {
	return &Keyboard{Inline: [][]Button{
		{{Text: "Confirm & download", CallbackData: "download_" + fileName}},
		{{Text: "Cancel", CallbackData: "cancel_download"}},
	}}
}

func pageLabel(page, total int) string {
	return fmt.Sprintf("%d/%d", page+1, total)
}
