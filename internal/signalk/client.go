package signalk

import (
	"encoding/json"
	"log"
	"time"

	"github.com/gorilla/websocket"
)

const (
	pongWait  = 60 * time.Second
	writeWait = 10 * time.Second
	redialMin = time.Second
	redialMax = 30 * time.Second
)

type Client struct {
	url   string
	cache *Cache
	done  chan struct{}
}

// NewClient prepares a delta-stream client for url, feeding cache. Run must
// be called to start it.
func NewClient(url string, cache *Cache) *Client {
	return &Client{url: url, cache: cache, done: make(chan struct{})}
}

// Run dials the stream and keeps it alive, redialing with backoff on any
// failure. It returns only after Close.
func (c *Client) Run() {
	backoff := redialMin
	for {
		select {
		case <-c.done:
			return
		default:
		}

		connected, err := c.readOnce()
		if err != nil {
			log.Printf("signalk: stream closed: %v", err)
		}
		backoff = nextBackoff(backoff, connected)

		select {
		case <-c.done:
			return
		case <-time.After(backoff):
		}
	}
}

// nextBackoff grows the redial delay while dials keep failing and drops back
// to the minimum once a connection was established, so a flaky start never
// penalizes redials after hours of healthy streaming.
func nextBackoff(current time.Duration, connected bool) time.Duration {
	if connected {
		return redialMin
	}
	next := current * 2
	if next > redialMax {
		next = redialMax
	}
	return next
}

func (c *Client) Close() {
	select {
	case <-c.done:
	default:
		close(c.done)
	}
}

type subscription struct {
	Context   string            `json:"context"`
	Subscribe []subscriptionArg `json:"subscribe"`
}

type subscriptionArg struct {
	Path string `json:"path"`
}

// readOnce reports whether the dial succeeded alongside the terminal error
// of the session.
func (c *Client) readOnce() (bool, error) {
	ws, _, err := websocket.DefaultDialer.Dial(c.url, nil)
	if err != nil {
		return false, err
	}
	defer ws.Close()

	sub, _ := json.Marshal(subscription{
		Context:   "vessels.self",
		Subscribe: []subscriptionArg{{Path: "*"}},
	})
	ws.SetWriteDeadline(time.Now().Add(writeWait))
	if err := ws.WriteMessage(websocket.TextMessage, sub); err != nil {
		return true, err
	}

	ws.SetReadLimit(1024 * 1024)
	ws.SetReadDeadline(time.Now().Add(pongWait))
	ws.SetPongHandler(func(string) error {
		ws.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	stop := make(chan struct{})
	defer close(stop)
	go func() {
		pingPeriod := (pongWait * 9) / 10
		ticker := time.NewTicker(pingPeriod)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-c.done:
				_ = ws.Close()
				return
			case <-ticker.C:
				deadline := time.Now().Add(writeWait)
				if err := ws.WriteControl(websocket.PingMessage, nil, deadline); err != nil {
					_ = ws.Close()
					return
				}
			}
		}
	}()

	for {
		_, data, err := ws.ReadMessage()
		if err != nil {
			return true, err
		}
		c.cache.ApplyDelta(data)
	}
}
