package pipedrive

import (
	"context"
	"encoding/json"
	"sync/atomic"
)

// countingClient embeds a nil Client; only the overridden methods may be called.
type countingClient struct {
	Client
	calls atomic.Int32
	err   error
	users []User
	hook  func()
}

func (c *countingClient) ListUsers(ctx context.Context) ([]User, error) {
	c.calls.Add(1)
	if c.hook != nil {
		c.hook()
	}
	if c.err != nil {
		return nil, c.err
	}
	return c.users, nil
}

func (c *countingClient) ListPipelines(ctx context.Context) ([]Pipeline, error) {
	c.calls.Add(1)
	if c.err != nil {
		return nil, c.err
	}
	return []Pipeline{{ID: 1, Name: "Sales"}}, nil
}

func (c *countingClient) GetDeal(ctx context.Context, id int64) (json.RawMessage, error) {
	c.calls.Add(1)
	return json.RawMessage(`{"id":1}`), nil
}
