package store

import (
	"encoding/json"
	"errors"
	"net"
	"time"
)

// Client implements Store over a Unix socket served by Serve.
type Client struct {
	socketPath string
	timeout    time.Duration
}

func NewClient(socketPath string) *Client {
	return &Client{socketPath: socketPath, timeout: 2 * time.Second}
}

// Ping checks that the daemon accepts connections.
func (c *Client) Ping() error {
	conn, err := net.DialTimeout("unix", c.socketPath, 200*time.Millisecond)
	if err != nil {
		return err
	}
	return conn.Close()
}

func (c *Client) roundTrip(req Request) (Response, error) {
	conn, err := net.DialTimeout("unix", c.socketPath, 500*time.Millisecond)
	if err != nil {
		return Response{}, err
	}
	defer conn.Close()
	_ = conn.SetDeadline(time.Now().Add(c.timeout))

	if err := json.NewEncoder(conn).Encode(&req); err != nil {
		return Response{}, err
	}
	var resp Response
	if err := json.NewDecoder(conn).Decode(&resp); err != nil {
		return Response{}, err
	}
	if !resp.OK && resp.Code != codeNotFound {
		return resp, errors.New(resp.Error)
	}
	return resp, nil
}

func (c *Client) Get(key string) (Record, error) {
	resp, err := c.roundTrip(Request{Op: opGet, Key: key})
	if err != nil {
		return Record{}, storageErr("get", key, err)
	}
	if resp.Code == codeNotFound {
		return Record{}, ErrNotFound
	}
	return Record{
		Key:       key,
		Value:     append([]byte(nil), resp.Value...),
		CreatedAt: time.Unix(0, resp.CreatedAt),
	}, nil
}

func (c *Client) Upsert(rec Record) error {
	_, err := c.roundTrip(Request{Op: opUpsert, Key: rec.Key, Value: rec.Value, CreatedAt: rec.CreatedAt.UnixNano()})
	return storageErr("upsert", rec.Key, err)
}

func (c *Client) Delete(key string) (int, error) {
	resp, err := c.roundTrip(Request{Op: opDelete, Key: key})
	if err != nil {
		return 0, storageErr("delete", key, err)
	}
	return resp.Count, nil
}

func (c *Client) DeleteCreatedBefore(cutoff time.Time) (int, error) {
	resp, err := c.roundTrip(Request{Op: opDeleteBefore, CreatedAt: cutoff.UnixNano()})
	if err != nil {
		return 0, storageErr("delete_before", "", err)
	}
	return resp.Count, nil
}

func (c *Client) DeleteKeyCreatedBefore(key string, cutoff time.Time) (int, error) {
	resp, err := c.roundTrip(Request{Op: opDeleteBefore, Key: key, CreatedAt: cutoff.UnixNano()})
	if err != nil {
		return 0, storageErr("delete_before", key, err)
	}
	return resp.Count, nil
}

// Close is a no-op; connections are per request and the daemon owns the backend.
func (c *Client) Close() error { return nil }

var _ Store = (*Client)(nil)
