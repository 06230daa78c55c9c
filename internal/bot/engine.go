package bot

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"meb-console/internal/account"
	"meb-console/internal/ledger"
	"meb-console/internal/model"
	"meb-console/internal/recorder"
	"meb-console/internal/secure"
	"meb-console/internal/timers"
)

const loginPrompt = "Log in with the /login command followed by your access token."

type Options struct {
	Transport Transport
	Accounts  *account.Store
	Ledger    *ledger.Ledger
	Recorder  *recorder.Recorder
	Values    Values
	LogDir    string

	// Protocol tunables; zero values take the defaults below.
	PageSize         int
	CountdownSeconds int
	CountdownTick    time.Duration
	NoticeDelay      time.Duration
	LiveInterval     time.Duration
}

type Engine struct {
	transport Transport
	accounts  *account.Store
	ledger    *ledger.Ledger
	recorder  *recorder.Recorder
	values    Values
	logDir    string

	pageSize         int
	countdownSeconds int
	countdownTick    time.Duration
	noticeDelay      time.Duration
	liveInterval     time.Duration

	countdowns *timers.Runner
	live       *timers.Runner
}

func New(opts Options) *Engine {
	e := &Engine{
		transport:        opts.Transport,
		accounts:         opts.Accounts,
		ledger:           opts.Ledger,
		recorder:         opts.Recorder,
		values:           opts.Values,
		logDir:           opts.LogDir,
		pageSize:         opts.PageSize,
		countdownSeconds: opts.CountdownSeconds,
		countdownTick:    opts.CountdownTick,
		noticeDelay:      opts.NoticeDelay,
		liveInterval:     opts.LiveInterval,
		countdowns:       timers.NewRunner(),
		live:             timers.NewRunner(),
	}
	if e.pageSize == 0 {
		e.pageSize = 8
	}
	if e.countdownSeconds == 0 {
		e.countdownSeconds = 10
	}
	if e.countdownTick == 0 {
		e.countdownTick = time.Second
	}
	if e.noticeDelay == 0 {
		e.noticeDelay = 3 * time.Second
	}
	if e.liveInterval == 0 {
		e.liveInterval = 3 * time.Second
	}
	return e
}

// HandleMessage dispatches one inbound command or menu selection.
func (e *Engine) HandleMessage(chatID int64, text string) {
	text = strings.TrimSpace(text)
	switch {
	case text == "/start":
		e.handleStart(chatID)
	case strings.HasPrefix(text, "/login"):
		e.handleLogin(chatID, strings.TrimSpace(strings.TrimPrefix(text, "/login")))
	case text == "/logout":
		e.handleLogout(chatID)
	case text == "/override_login":
		e.handleOverrideLogin(chatID)
	case text == "/log_status":
		e.handleLogStatus(chatID)
	case text == "/log_restart":
		e.handleLogRestart(chatID)
	case text == "Log Files":
		e.handleFileBrowser(chatID, 0)
	case text == "Onboard Parameters":
		e.handleParameterMenu(chatID)
	}
}

func (e *Engine) handleStart(chatID int64) {
	if e.accounts.IsAuthenticated(chatID) {
		e.send(chatID, "Welcome to the Data Console. You can:\n"+
			"- view onboard computer data\n"+
			"- follow live updates for selected parameters\n"+
			"- download the vessel's log files", mainMenu())
		return
	}

	e.send(chatID, "Welcome to the Data Console.\n"+
		"This bot gives access to onboard computer data, live parameter updates and the vessel's log files.", nil)
	e.send(chatID, "Login.\nAn access token is required to view data.", loginChoices())
}

func (e *Engine) handleLogin(chatID int64, token string) {
	if token == "" {
		e.send(chatID, "Send the access token you were given, e.g. /login YOUR_TOKEN", nil)
		return
	}
	if _, err := e.accounts.Login(token, chatID); err != nil {
		// Generic denial: no hint about near matches.
		e.send(chatID, "Invalid or revoked token.", nil)
		return
	}
	e.send(chatID, "Logged in.", mainMenu())
}

func (e *Engine) handleLogout(chatID int64) {
	if _, err := e.accounts.Logout(chatID); err != nil {
		e.send(chatID, "No active login for this chat.", nil)
		return
	}
	e.countdowns.Stop(chatID)
	e.live.Stop(chatID)
	e.send(chatID, "Logged out.", nil)
}

func (e *Engine) handleOverrideLogin(chatID int64) {
	op := e.accounts.Provision(chatID)
	e.send(chatID, fmt.Sprintf("Pre-token generated:\n%s", op.AccessToken), nil)
}

func (e *Engine) handleLogStatus(chatID int64) {
	if !e.accounts.IsAuthenticated(chatID) {
		e.send(chatID, loginPrompt, nil)
		return
	}

	status := e.recorder.Status()
	stateText := "stopped"
	if status.Recording {
		stateText = "recording"
	}
	uptime := time.Duration(status.UptimeMs) * time.Millisecond
	e.send(chatID, fmt.Sprintf("Dataset log status\n\n"+
		"State: %s\nRows collected: %d\nSample interval: %dms\nSession uptime: %dm %ds\nTimestamp: %s",
		stateText, status.RowCount, status.IntervalMs,
		int(uptime.Minutes()), int(uptime.Seconds())%60, status.Timestamp), nil)
}

func (e *Engine) handleLogRestart(chatID int64) {
	if !e.accounts.IsAuthenticated(chatID) {
		e.send(chatID, loginPrompt, nil)
		return
	}
	if e.recorder.Restart() {
		e.send(chatID, "Log recording restarted. A new file was created.", nil)
	} else {
		e.send(chatID, "Could not restart log recording.", nil)
	}
}

func (e *Engine) handleParameterMenu(chatID int64) {
	if !e.accounts.IsAuthenticated(chatID) {
		e.send(chatID, loginPrompt, nil)
		return
	}
	e.send(chatID, "Onboard Parameters:\nchoose the parameter you want to follow.", parameterSelectionMenu())
}

func (e *Engine) handleFileBrowser(chatID int64, page int) {
	if !e.accounts.IsAuthenticated(chatID) {
		e.send(chatID, loginPrompt, nil)
		return
	}

	files := e.listFiles()
	if len(files) == 0 {
		e.send(chatID, "There are no saved logs.", nil)
		return
	}

	pageFiles, current, total := paginate(files, page, e.pageSize)

	var rows [][]Button
	for _, name := range pageFiles {
		rows = append(rows, []Button{{Text: name, CallbackData: "request_file_" + name}})
	}
	if total > 1 {
		var nav []Button
		if current > 0 {
			nav = append(nav, Button{Text: "←", CallbackData: "page_" + strconv.Itoa(current-1)})
		}
		nav = append(nav, Button{Text: pageLabel(current, total), CallbackData: "page_info"})
		if current < total-1 {
			nav = append(nav, Button{Text: "→", CallbackData: "page_" + strconv.Itoa(current+1)})
		}
		rows = append(rows, nav)
	}
	rows = append(rows, []Button{{Text: "Cancel", CallbackData: "dismiss"}})

	e.send(chatID, "Onboard logs\n"+
		"Each file is one recording session. Files are encrypted; after you confirm a download you have "+
		strconv.Itoa(e.countdownSeconds)+" seconds before the file is removed from this chat.",
		&Keyboard{Inline: rows})
}

// HandleCallback dispatches one inbound button press.
func (e *Engine) HandleCallback(cb Callback) {
	switch {
	case strings.HasPrefix(cb.Data, "download_"):
		e.handleDownload(cb, strings.TrimPrefix(cb.Data, "download_"))
	case strings.HasPrefix(cb.Data, "request_file_"):
		e.handleRequestFile(cb, strings.TrimPrefix(cb.Data, "request_file_"))
	case strings.HasPrefix(cb.Data, "page_") && cb.Data != "page_info":
		e.handlePageChange(cb, strings.TrimPrefix(cb.Data, "page_"))
	case cb.Data == "page_info":
		e.answer(cb, "Use ← → to move between pages")
	case cb.Data == "token_login_question":
		e.edit(cb.ChatID, cb.MessageID,
			"Ask the team for an access token. Once you have one, press the button below and paste it.",
			&Keyboard{Inline: [][]Button{{{Text: "I have an access token", CallbackData: "token_ready"}}}})
	case cb.Data == "token_ready":
		e.edit(cb.ChatID, cb.MessageID,
			"Send the /login command followed by your access token.\nExample: /login YOUR_ACCESS_TOKEN", nil)
	case liveRenderers[cb.Data] != nil:
		e.handleLiveParameter(cb, liveRenderers[cb.Data])
	case cb.Data == "dismiss":
		e.countdowns.Stop(cb.ChatID)
		e.delete(cb.ChatID, cb.MessageID)
	case cb.Data == "cancel_download":
		e.countdowns.Stop(cb.ChatID)
		e.delete(cb.ChatID, cb.MessageID)
	case cb.Data == "dismiss_and_unsubscribe":
		e.countdowns.Stop(cb.ChatID)
		e.live.Stop(cb.ChatID)
		e.delete(cb.ChatID, cb.MessageID)
		e.send(cb.ChatID, "Choose a parameter to follow:", parameterSelectionMenu())
	default:
		e.send(cb.ChatID, "That action is not available.", nil)
	}
}

func (e *Engine) handleRequestFile(cb Callback, fileName string) {
	if !e.accounts.IsAuthenticated(cb.ChatID) {
		e.answer(cb, "")
		e.send(cb.ChatID, loginPrompt, nil)
		return
	}
	e.edit(cb.ChatID, cb.MessageID,
		fmt.Sprintf("Download %s\n\nIf you confirm, you will have %d seconds to save the file.",
			fileName, e.countdownSeconds),
		downloadConfirmMenu(fileName))
}

func (e *Engine) handlePageChange(cb Callback, raw string) {
	page, err := strconv.Atoi(raw)
	if err != nil {
		return
	}
	if !e.accounts.IsAuthenticated(cb.ChatID) {
		e.answer(cb, "")
		e.send(cb.ChatID, loginPrompt, nil)
		return
	}

	files := e.listFiles()
	_, clamped, total := paginate(files, page, e.pageSize)
	if total == 0 {
		e.answer(cb, "There are no saved logs.")
		return
	}
	if page != clamped {
		e.answer(cb, "No more pages")
	} else {
		e.answer(cb, "Page "+pageLabel(clamped, total))
	}

	e.delete(cb.ChatID, cb.MessageID)
	e.handleFileBrowser(cb.ChatID, clamped)
}

func (e *Engine) handleLiveParameter(cb Callback, render func(Values) string) {
	if !e.accounts.IsAuthenticated(cb.ChatID) {
		e.answer(cb, "")
		e.send(cb.ChatID, loginPrompt, nil)
		return
	}
	e.answer(cb, "")
	chatID, messageID := cb.ChatID, cb.MessageID
	e.live.Every(chatID, e.liveInterval, func() {
		e.edit(chatID, messageID, render(e.values), liveParameterMenu())
	})
}

func (e *Engine) handleDownload(cb Callback, fileName string) {
	if !e.accounts.IsAuthenticated(cb.ChatID) {
		e.answer(cb, "")
		e.send(cb.ChatID, loginPrompt, nil)
		return
	}
	e.answer(cb, "Sending file...")

	path := e.filePath(fileName)
	if _, err := os.Stat(path); err != nil {
		e.send(cb.ChatID, "That file is no longer available.", nil)
		return
	}
	ref, ok := e.ledger.Find(fileName)
	if !ok {
		e.send(cb.ChatID, "That file is no longer available.", nil)
		return
	}

	docMessageID, err := e.transport.SendDocument(cb.ChatID, path, fileName)
	if err != nil {
		log.Printf("bot: send document %s: %v", fileName, err)
		e.send(cb.ChatID, "Could not send the file.", nil)
		return
	}

	e.edit(cb.ChatID, cb.MessageID,
		fmt.Sprintf("You still have %d seconds", e.countdownSeconds), nil)

	// Credential rotation runs alongside the countdown, never gating it. The
	// delivered copy is the authoritative disclosure either way.
	go e.rotateCredential(cb.ChatID, fileName, path, ref.Token)

	chatID, confirmID := cb.ChatID, cb.MessageID
	e.countdowns.Countdown(chatID, e.countdownSeconds, e.countdownTick,
		func(remaining int) {
			e.edit(chatID, confirmID, fmt.Sprintf("You still have %d seconds", remaining), nil)
		},
		func() {
			e.delete(chatID, docMessageID)
			e.edit(chatID, confirmID,
				fmt.Sprintf("Time expired\n\nThe file %s has been removed.", fileName), nil)
			time.AfterFunc(e.noticeDelay, func() {
				e.delete(chatID, confirmID)
			})
		})
}

func (e *Engine) rotateCredential(chatID int64, fileName, path, oldToken string) {
	newToken := secure.GenerateToken(16)
	if err := secure.RotateFileKey(path, oldToken, newToken); err != nil {
		log.Printf("bot: rotate credential for %s: %v", fileName, err)
		e.send(chatID, "Warning: the file credential could not be rotated.", nil)
		return
	}
	if !e.ledger.Replace(fileName, model.Reference{Name: fileName, Token: newToken}) {
		log.Printf("bot: ledger entry vanished for %s during rotation", fileName)
	}
}

// Broadcast sends text to every logged-in operator.
func (e *Engine) Broadcast(text string) {
	for _, chatID := range e.accounts.LoggedIn() {
		e.send(chatID, text, nil)
	}
}

func (e *Engine) send(chatID int64, text string, keyboard *Keyboard) {
	if _, err := e.transport.SendMessage(chatID, text, keyboard); err != nil {
		log.Printf("bot: send to %d: %v", chatID, err)
	}
}

func (e *Engine) edit(chatID int64, messageID int, text string, keyboard *Keyboard) {
	if err := e.transport.EditMessage(chatID, messageID, text, keyboard); err != nil {
		log.Printf("bot: edit %d/%d: %v", chatID, messageID, err)
	}
}

func (e *Engine) delete(chatID int64, messageID int) {
	if err := e.transport.DeleteMessage(chatID, messageID); err != nil {
		log.Printf("bot: delete %d/%d: %v", chatID, messageID, err)
	}
}

func (e *Engine) answer(cb Callback, text string) {
	if err := e.transport.AnswerCallback(cb.ID, text); err != nil {
		log.Printf("bot: answer callback: %v", err)
	}
}
