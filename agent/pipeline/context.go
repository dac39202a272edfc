package pipeline

import (
	"errors"
	"fmt"
	"sync"
)

var ErrKeyWritten = errors.New("pipeline context key already written")

// Context holds the outputs of successful stages for one run. Keys are
// write-once and iteration follows publish order.
type Context struct {
	mu     sync.RWMutex
	values map[string]any
	order  []string
}

func NewContext() *Context {
	return &Context{values: make(map[string]any)}
}

func (c *Context) publish(name string, value any) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.values[name]; ok {
		return fmt.Errorf("%w: %s", ErrKeyWritten, name)
	}
	c.values[name] = value
	c.order = append(c.order, name)
	return nil
}

func (c *Context) Get(name string) (any, bool) {
	if c == nil {
		return nil, false
	}
	c.mu.RLock()
	defer c.mu.RUnlock()

	v, ok := c.values[name]
	return v, ok
}

func (c *Context) Has(name string) bool {
	_, ok := c.Get(name)
	return ok
}

// Keys returns stage names in publish order.
func (c *Context) Keys() []string {
	if c == nil {
		return nil
	}
	c.mu.RLock()
	defer c.mu.RUnlock()

	return append([]string(nil), c.order...)
}

func (c *Context) Len() int {
	if c == nil {
		return 0
	}
	c.mu.RLock()
	defer c.mu.RUnlock()

	return len(c.order)
}

// Value returns the output published under name when it has type T.
func Value[T any](c *Context, name string) (T, bool) {
	var zero T
	v, ok := c.Get(name)
	if !ok {
		return zero, false
	}
	typed, ok := v.(T)
	if !ok {
		return zero, false
	}
	return typed, true
}
