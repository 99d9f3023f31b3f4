// Package device implements the HTTP transport to the pill dispenser.
package device

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/and161185/pill-monitor/internal/errs"
	"github.com/and161185/pill-monitor/internal/httpclient"
	"github.com/and161185/pill-monitor/internal/model"
)

// DefaultAddress is the dispenser's factory address.
const DefaultAddress = "192.168.1.100"

// Client talks to the dispenser firmware. The address may be changed at runtime.
type Client struct {
	hc  *httpclient.Client
	log *zap.Logger

	mu   sync.RWMutex
	base string
}

// NormalizeAddress turns a bare host or host:port into a base URL.
func NormalizeAddress(addr string) (string, error) {
	addr = strings.TrimSpace(addr)
	if addr == "" {
		return "", fmt.Errorf("%w: empty device address", errs.ErrValidation)
	}
	if !strings.Contains(addr, "://") {
		addr = "http://" + addr
	}
	u, err := url.ParseRequestURI(addr)
	if err != nil || u.Host == "" {
		return "", fmt.Errorf("%w: device address %q", errs.ErrValidation, addr)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", fmt.Errorf("%w: device scheme %q", errs.ErrValidation, u.Scheme)
	}
	return strings.TrimRight(u.Scheme+"://"+u.Host+u.Path, "/"), nil
}

// New creates a client for addr with an overall request timeout.
func New(addr string, timeout time.Duration, log *zap.Logger) (*Client, error) {
	return NewWithHTTP(addr, httpclient.New(timeout), log)
}

// NewWithHTTP creates a client over an existing httpclient.
func NewWithHTTP(addr string, hc *httpclient.Client, log *zap.Logger) (*Client, error) {
	base, err := NormalizeAddress(addr)
	if err != nil {
		return nil, err
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Client{hc: hc, log: log, base: base}, nil
}

// Address returns the current base URL.
func (c *Client) Address() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.base
}

// SetAddress switches the client to another dispenser address.
func (c *Client) SetAddress(addr string) error {
	base, err := NormalizeAddress(addr)
	if err != nil {
		return err
	}
	c.mu.Lock()
	c.base = base
	c.mu.Unlock()
	c.log.Info("device address changed", zap.String("base", base))
	return nil
}

func (c *Client) get(ctx context.Context, path string, q url.Values) ([]byte, error) {
	u := c.Address() + path
	if len(q) > 0 {
		u += "?" + q.Encode()
	}
	raw, err := c.hc.Do(ctx, http.MethodGet, u, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", errs.ErrTransportUnreachable, path, err)
	}
	return raw, nil
}

// FetchSnapshot reads /getdata and decodes the inventory.
func (c *Client) FetchSnapshot(ctx context.Context) (model.Inventory, error) {
	raw, err := c.get(ctx, "/getdata", nil)
	if err != nil {
		return model.Inventory{}, err
	}
	var inv model.Inventory
	if err := json.Unmarshal(raw, &inv); err != nil {
		if !errors.Is(err, errs.ErrMalformedSnapshot) {
			err = fmt.Errorf("%w: %w", errs.ErrMalformedSnapshot, err)
		}
		return model.Inventory{}, err
	}
	return inv, nil
}

// PushAlarm sets the alarm for dose on the device.
func (c *Client) PushAlarm(ctx context.Context, d model.DoseKey, hour, minute int) error {
	q := url.Values{}
	q.Set("dose", strconv.Itoa(d.DeviceIndex()))
	q.Set("hh", strconv.Itoa(hour))
	q.Set("mm", strconv.Itoa(minute))
	_, err := c.get(ctx, "/setalarm", q)
	return err
}

// PushCount sets the pill count for dose on the device.
func (c *Client) PushCount(ctx context.Context, d model.DoseKey, count int) error {
	q := url.Values{}
	q.Set("dose", strconv.Itoa(d.DeviceIndex()))
	q.Set("count", strconv.Itoa(count))
	_, err := c.get(ctx, "/setcount", q)
	return err
}

// FetchAlertText returns the pending alert, or "" when there is none.
func (c *Client) FetchAlertText(ctx context.Context) (string, error) {
	raw, err := c.get(ctx, "/alert", nil)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(raw)), nil
}
