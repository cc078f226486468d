package control

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"time"

	"github.com/goccy/go-json"

	"github.com/steveyegge/tuneup/internal/events"
	"github.com/steveyegge/tuneup/internal/eventstore"
	"github.com/steveyegge/tuneup/internal/executor"
	"github.com/steveyegge/tuneup/internal/improvement"
	"github.com/steveyegge/tuneup/internal/queue"
	"github.com/steveyegge/tuneup/internal/status"
)

// Client sends control commands to a running agent
type Client struct {
	socketPath string
	timeout    time.Duration
}

// NewClient creates a new control client
func NewClient(socketPath string) *Client {
	return &Client{
		socketPath: socketPath,
		timeout:    10 * time.Second, // Default 10s timeout
	}
}

// SetTimeout sets the client timeout for commands
func (c *Client) SetTimeout(timeout time.Duration) {
	c.timeout = timeout
}

// SendCommand sends a command and waits for the response
func (c *Client) SendCommand(cmd Command) (*Response, error) {
	conn, err := c.dial()
	if err != nil {
		return nil, err
	}
	defer func() { _ = conn.Close() }()

	if err := conn.SetDeadline(time.Now().Add(c.timeout)); err != nil {
		return nil, fmt.Errorf("failed to set deadline: %w", err)
	}
	if err := c.send(conn, cmd); err != nil {
		return nil, err
	}

	var resp Response
	if err := json.NewDecoder(conn).Decode(&resp); err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	return &resp, nil
}

func (c *Client) dial() (net.Conn, error) {
	conn, err := net.DialTimeout("unix", c.socketPath, c.timeout)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to agent (is it running?): %w", err)
	}
	return conn, nil
}

func (c *Client) send(conn net.Conn, cmd Command) error {
	if cmd.Timestamp.IsZero() {
		cmd.Timestamp = time.Now()
	}
	if err := json.NewEncoder(conn).Encode(cmd); err != nil {
		return fmt.Errorf("failed to send command: %w", err)
	}
	return nil
}

// call sends cmd and decodes a successful response's data into T
func call[T any](c *Client, cmd Command) (T, error) {
	var out T
	resp, err := c.SendCommand(cmd)
	if err != nil {
		return out, err
	}
	if !resp.Success {
		return out, fmt.Errorf("%s: %s", cmd.Type, resp.Error)
	}
	if len(resp.Data) > 0 {
		if err := json.Unmarshal(resp.Data, &out); err != nil {
			return out, fmt.Errorf("failed to decode %s result: %w", cmd.Type, err)
		}
	}
	return out, nil
}

// Record submits one event
func (c *Client) Record(req events.Request) (*events.Event, error) {
	return call[*events.Event](c, Command{Type: CmdRecord, Event: &req})
}

// Status returns the executor view including the shared status snapshot
func (c *Client) Status() (*executor.Info, error) {
	return call[*executor.Info](c, Command{Type: CmdStatus})
}

// Enqueue adds a job
func (c *Client) Enqueue(args EnqueueArgs) (*queue.Job, error) {
	return call[*queue.Job](c, Command{Type: CmdEnqueue, Job: &args})
}

// QueueStatus returns the job counters
func (c *Client) QueueStatus() (queue.Counts, error) {
	return call[queue.Counts](c, Command{Type: CmdQueueStatus})
}

// RecentEvents returns up to limit events, newest first
func (c *Client) RecentEvents(limit int) ([]*events.Event, error) {
	return call[[]*events.Event](c, Command{Type: CmdRecentEvents, Limit: limit})
}

// EventsByType returns up to limit events of one type, newest first
func (c *Client) EventsByType(eventType events.EventType, limit int) ([]*events.Event, error) {
	return call[[]*events.Event](c, Command{Type: CmdEventsByType, EventType: eventType, Limit: limit})
}

// TodayEvents returns today's events
func (c *Client) TodayEvents() ([]*events.Event, error) {
	return call[[]*events.Event](c, Command{Type: CmdTodayEvents})
}

// GetEvent looks up one event by id
func (c *Client) GetEvent(id string) (*events.Event, error) {
	return call[*events.Event](c, Command{Type: CmdGetEvent, ID: id})
}

// SetSuggestionStatus marks a suggestion approved, applied, or rejected
func (c *Client) SetSuggestionStatus(id string, st improvement.Status) (*status.Snapshot, error) {
	return call[*status.Snapshot](c, Command{Type: CmdSetSuggestionStatus, ID: id, Status: st})
}

// Cleanup runs event retention now
func (c *Client) Cleanup() (eventstore.CleanupResult, error) {
	return call[eventstore.CleanupResult](c, Command{Type: CmdCleanup})
}

// Watch streams notifications to fn until ctx ends, the server hangs up, or
// fn returns an error.
func (c *Client) Watch(ctx context.Context, fn func(status.Notification) error) error {
	conn, err := c.dial()
	if err != nil {
		return err
	}
	defer func() { _ = conn.Close() }()

	if err := c.send(conn, Command{Type: CmdWatch}); err != nil {
		return err
	}

	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
	defer stop()

	dec := json.NewDecoder(bufio.NewReader(conn))
	var ack Response
	if err := dec.Decode(&ack); err != nil {
		return fmt.Errorf("failed to read watch acknowledgement: %w", err)
	}
	if !ack.Success {
		return fmt.Errorf("watch: %s", ack.Error)
	}

	for {
		var resp Response
		if err := dec.Decode(&resp); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if errors.Is(err, io.EOF) || errors.Is(err, net.ErrClosed) {
				return nil
			}
			return fmt.Errorf("watch stream ended: %w", err)
		}
		var n status.Notification
		if err := json.Unmarshal(resp.Data, &n); err != nil {
			return fmt.Errorf("failed to decode notification: %w", err)
		}
		if err := fn(n); err != nil {
			return err
		}
	}
}
