// Package signalk maintains a live cache of vessel data paths fed by the
// Signal K server's websocket delta stream. The cache is the host live-data
// accessor consumed by the recorder and the bot.
package signalk

import (
	"encoding/json"
	"sync"
)

type Cache struct {
	mu     sync.RWMutex
	values map[string]interface{}
}

func NewCache() *Cache {
	return &Cache{values: make(map[string]interface{})}
}

// Get returns the most recent value for path, or (nil, false) when no value
// has been seen. Never blocks.
func (c *Cache) Get(path string) (interface{}, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	v, ok := c.values[path]
	if !ok || v == nil {
		return nil, false
	}
	return v, true
}

// Set stores a value for path. Nil clears it.
func (c *Cache) Set(path string, value interface{}) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if value == nil {
		delete(c.values, path)
		return
	}
	c.values[path] = value
}

type delta struct {
	Context string `json:"context"`
	Updates []struct {
		Values []struct {
			Path  string          `json:"path"`
			Value json.RawMessage `json:"value"`
		} `json:"values"`
	} `json:"updates"`
}

// ApplyDelta parses one delta message and folds its values into the cache.
// Malformed messages are ignored; a delta stream always contains noise
// (hello messages, notifications) that is not worth surfacing.
func (c *Cache) ApplyDelta(message []byte) {
	var d delta
	if err := json.Unmarshal(message, &d); err != nil {
		return
	}
	for _, update := range d.Updates {
		for _, entry := range update.Values {
			if entry.Path == "" {
				continue
			}
			var value interface{}
			if err := json.Unmarshal(entry.Value, &value); err != nil {
				continue
			}
			c.Set(entry.Path, value)
		}
	}
}
