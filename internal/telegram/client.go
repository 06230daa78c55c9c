// Package telegram is a minimal Bot API client: the five outbound calls the
// bot engine needs, plus a long-polling loop for inbound updates.
package telegram

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"mime/multipart"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"meb-console/internal/bot"
)

const defaultBaseURL = "https://api.telegram.org"

type Client struct {
	token   string
	baseURL string
	http    *http.Client
	done    chan struct{}
}

func New(token string) *Client {
	return NewWithBaseURL(token, defaultBaseURL)
}

// NewWithBaseURL exists for tests pointed at a local fake API server.
func NewWithBaseURL(token, baseURL string) *Client {
	return &Client{
		token:   token,
		baseURL: baseURL,
		http:    &http.Client{Timeout: 65 * time.Second},
		done:    make(chan struct{}),
	}
}

type apiResponse struct {
	OK          bool            `json:"ok"`
	Description string          `json:"description"`
	Result      json.RawMessage `json:"result"`
}

type message struct {
	MessageID int `json:"message_id"`
	Chat      struct {
		ID int64 `json:"id"`
	} `json:"chat"`
	Text string `json:"text"`
}

type update struct {
	UpdateID int64    `json:"update_id"`
	Message  *message `json:"message"`
	Callback *struct {
		ID      string   `json:"id"`
		Data    string   `json:"data"`
		Message *message `json:"message"`
	} `json:"callback_query"`
}

func (c *Client) call(method string, params map[string]interface{}, result interface{}) error {
	body, err := json.Marshal(params)
	if err != nil {
		return err
	}

	endpoint := fmt.Sprintf("%s/bot%s/%s", c.baseURL, c.token, method)
	resp, err := c.http.Post(endpoint, "application/json", bytes.NewReader(body))
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	return decodeResponse(resp.Body, method, result)
}

func decodeResponse(r io.Reader, method string, result interface{}) error {
	var envelope apiResponse
	if err := json.NewDecoder(r).Decode(&envelope); err != nil {
		return fmt.Errorf("telegram: %s: %w", method, err)
	}
	if !envelope.OK {
		return fmt.Errorf("telegram: %s: %s", method, envelope.Description)
	}
	if result != nil {
		return json.Unmarshal(envelope.Result, result)
	}
	return nil
}

func replyMarkup(keyboard *bot.Keyboard) interface{} {
	if keyboard == nil {
		return nil
	}
	if len(keyboard.Inline) > 0 {
		rows := make([][]map[string]string, 0, len(keyboard.Inline))
		for _, row := range keyboard.Inline {
			out := make([]map[string]string, 0, len(row))
			for _, b := range row {
				out = append(out, map[string]string{"text": b.Text, "callback_data": b.CallbackData})
			}
			rows = append(rows, out)
		}
		return map[string]interface{}{"inline_keyboard": rows}
	}
	rows := make([][]map[string]string, 0, len(keyboard.Reply))
	for _, row := range keyboard.Reply {
		out := make([]map[string]string, 0, len(row))
		for _, label := range row {
			out = append(out, map[string]string{"text": label})
		}
		rows = append(rows, out)
	}
	return map[string]interface{}{"keyboard": rows, "resize_keyboard": true}
}

func (c *Client) SendMessage(chatID int64, text string, keyboard *bot.Keyboard) (int, error) {
	params := map[string]interface{}{"chat_id": chatID, "text": text}
	if markup := replyMarkup(keyboard); markup != nil {
		params["reply_markup"] = markup
	}
	var msg message
	if err := c.call("sendMessage", params, &msg); err != nil {
		return 0, err
	}
	return msg.MessageID, nil
}

func (c *Client) EditMessage(chatID int64, messageID int, text string, keyboard *bot.Keyboard) error {
	params := map[string]interface{}{"chat_id": chatID, "message_id": messageID, "text": text}
	if markup := replyMarkup(keyboard); markup != nil {
		params["reply_markup"] = markup
	}
	return c.call("editMessageText", params, nil)
}

func (c *Client) DeleteMessage(chatID int64, messageID int) error {
	return c.call("deleteMessage", map[string]interface{}{"chat_id": chatID, "message_id": messageID}, nil)
}

func (c *Client) AnswerCallback(callbackID, text string) error {
	params := map[string]interface{}{"callback_query_id": callbackID}
	if text != "" {
		params["text"] = text
	}
	return c.call("answerCallbackQuery", params, nil)
}

// SendDocument uploads the file as multipart form data.
func (c *Client) SendDocument(chatID int64, filePath, caption string) (int, error) {
	file, err := os.Open(filePath)
	if err != nil {
		return 0, err
	}
	defer file.Close()

	var buf bytes.Buffer
	form := multipart.NewWriter(&buf)
	if err := form.WriteField("chat_id", strconv.FormatInt(chatID, 10)); err != nil {
		return 0, err
	}
	if caption != "" {
		if err := form.WriteField("caption", caption); err != nil {
			return 0, err
		}
	}
	part, err := form.CreateFormFile("document", filepath.Base(filePath))
	if err != nil {
		return 0, err
	}
	if _, err := io.Copy(part, file); err != nil {
		return 0, err
	}
	if err := form.Close(); err != nil {
		return 0, err
	}

	endpoint := fmt.Sprintf("%s/bot%s/sendDocument", c.baseURL, c.token)
	resp, err := c.http.Post(endpoint, form.FormDataContentType(), &buf)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	var msg message
	if err := decodeResponse(resp.Body, "sendDocument", &msg); err != nil {
		return 0, err
	}
	return msg.MessageID, nil
}

// Handler receives inbound updates. The bot engine satisfies it.
type Handler interface {
	HandleMessage(chatID int64, text string)
	HandleCallback(cb bot.Callback)
}

// Poll long-polls getUpdates and dispatches to h until Close. Each handler
// call is wrapped so a panic in one update never kills the loop.
func (c *Client) Poll(h Handler) {
	var offset int64
	for {
		select {
		case <-c.done:
			return
		default:
		}

		updates, err := c.getUpdates(offset)
		if err != nil {
			log.Printf("telegram: getUpdates: %v", err)
			select {
			case <-c.done:
				return
			case <-time.After(3 * time.Second):
			}
			continue
		}

		for _, u := range updates {
			if u.UpdateID >= offset {
				offset = u.UpdateID + 1
			}
			c.dispatch(h, u)
		}
	}
}

func (c *Client) dispatch(h Handler, u update) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("telegram: handler panic: %v", r)
		}
	}()

	switch {
	case u.Callback != nil && u.Callback.Message != nil:
		h.HandleCallback(bot.Callback{
			ID:        u.Callback.ID,
			ChatID:    u.Callback.Message.Chat.ID,
			MessageID: u.Callback.Message.MessageID,
			Data:      u.Callback.Data,
		})
	case u.Message != nil && u.Message.Text != "":
		h.HandleMessage(u.Message.Chat.ID, u.Message.Text)
	}
}

func (c *Client) getUpdates(offset int64) ([]update, error) {
	query := url.Values{}
	query.Set("timeout", "50")
	if offset > 0 {
		query.Set("offset", strconv.FormatInt(offset, 10))
	}
	endpoint := fmt.Sprintf("%s/bot%s/getUpdates?%s", c.baseURL, c.token, query.Encode())

	resp, err := c.http.Get(endpoint)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var updates []update
	if err := decodeResponse(resp.Body, "getUpdates", &updates); err != nil {
		return nil, err
	}
	return updates, nil
}

func (c *Client) Close() {
	select {
	case <-c.done:
	default:
		close(c.done)
	}
}
