// Package settings reads and writes Android secure settings through the
// platform settings binary.
package settings

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/nzlov/adaptivehz/internal/shell"
)

var (
	ErrPermissionDenied = errors.New("settings: permission denied")
	ErrNotFound         = errors.New("settings: key not set")
)

// Client talks to one settings namespace (system, secure or global).
type Client struct {
	runner    shell.Runner
	namespace string
}

func NewSecure(r shell.Runner) *Client {
	return &Client{runner: r, namespace: "secure"}
}

func (c *Client) GetInt(ctx context.Context, key string) (int, error) {
	out, err := c.runner.Run(ctx, "settings", "get", c.namespace, key)
	if err != nil {
		return 0, classify(key, out, err)
	}
	s := strings.TrimSpace(string(out))
	if isDenied(s) {
		return 0, fmt.Errorf("get %s: %w", key, ErrPermissionDenied)
	}
	if s == "" || s == "null" {
		return 0, fmt.Errorf("get %s: %w", key, ErrNotFound)
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		// some ROMs store floats, e.g. "120.0"
		f, ferr := strconv.ParseFloat(s, 64)
		if ferr != nil {
			return 0, fmt.Errorf("get %s: parse %q: %w", key, s, err)
		}
		v = int(f)
	}
	return v, nil
}

func (c *Client) PutInt(ctx context.Context, key string, value int) error {
	out, err := c.runner.Run(ctx, "settings", "put", c.namespace, key, strconv.Itoa(value))
	if err != nil {
		return classify(key, out, err)
	}
	if isDenied(string(out)) {
		return fmt.Errorf("put %s: %w", key, ErrPermissionDenied)
	}
	return nil
}

func classify(key string, out []byte, err error) error {
	msg := string(out)
	var ee *shell.ExitError
	if errors.As(err, &ee) {
		msg += ee.Stderr
	}
	if isDenied(msg) {
		return fmt.Errorf("%s: %w: %w", key, ErrPermissionDenied, err)
	}
	return fmt.Errorf("%s: %w", key, err)
}

func isDenied(s string) bool {
	return strings.Contains(s, "SecurityException") ||
		strings.Contains(s, "Permission denial") ||
		strings.Contains(s, "WRITE_SECURE_SETTINGS")
}
