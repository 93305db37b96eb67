package tracker

import (
	"errors"

	"github.com/redis/go-redis/v9"
)

// Client is a go-redis client whose every command, pipeline and
// transaction runs through a Tracker. All redis.Cmdable methods and Do are
// inherited from the embedded client.
type Client struct {
	*redis.Client
	tracker *Tracker
	// base dials the dedicated connections handed out by Conn. It carries
	// no hooks, so each connection gets only its own session.
	base *redis.Client
}

// NewClient installs a new Tracker on rdb and returns the tracked client.
// The caller keeps ownership of rdb; closing the Client closes rdb.
func NewClient(rdb *redis.Client, opts ...Option) *Client {
	t := New(opts...)
	rdb.AddHook(t)
	opt := *rdb.Options()
	return &Client{Client: rdb, tracker: t, base: redis.NewClient(&opt)}
}

// Conn returns a dedicated connection tracked into the same DirtySet. A
// MULTI opened on it buffers only that connection's commands; commands
// sent meanwhile through the pooled client are recorded as they run.
// Hooks added to rdb before NewClient are not carried over.
func (c *Client) Conn() *redis.Conn {
	conn := c.base.Conn()
	conn.AddHook(c.tracker.ConnHook())
	return conn
}

// Tracker returns the tracker observing this client.
func (c *Client) Tracker() *Tracker {
	return c.tracker
}

// Suspend runs fn with tracking disabled on this client and its
// connections.
func (c *Client) Suspend(fn func() error) error {
	return c.tracker.Suspend(fn)
}

// Close closes the pooled client and the pool behind Conn.
func (c *Client) Close() error {
	return errors.Join(c.Client.Close(), c.base.Close())
}
