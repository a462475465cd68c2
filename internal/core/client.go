package core

import "sync"

// Client is a live realtime session as seen by the hub. Its identity
// and role come from the connection handshake, never from payloads.
type Client struct {
	ID       string
	UserID   string
	IsAdmin  bool
	Commands chan *Command
	Events   chan *Event
	Rooms    map[string]struct{}

	done     chan struct{}
	doneOnce sync.Once
}

// NewClient constructs a client with initialized channels.
func NewClient(id, userID string, isAdmin bool) *Client {
	return &Client{
		ID:       id,
		UserID:   userID,
		IsAdmin:  isAdmin,
		Commands: make(chan *Command, 8),
		Events:   make(chan *Event, 8),
		Rooms:    make(map[string]struct{}),
		done:     make(chan struct{}),
	}
}

// Done is closed when the client is unregistered.
func (c *Client) Done() <-chan struct{} {
	return c.done
}

func (c *Client) markDone() {
	c.doneOnce.Do(func() { close(c.done) })
}
