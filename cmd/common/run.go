package common

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/GiGurra/cmder"
)

// Runner executes an external command and fails with its output attached.
type Runner func(ctx context.Context, timeout time.Duration, name string, args ...string) error

// RunCommand runs name through cmder with a per-attempt timeout.
func RunCommand(ctx context.Context, timeout time.Duration, name string, args ...string) error {
	res := cmder.New(append([]string{name}, args...)...).
		WithAttemptTimeout(timeout).
		Run(ctx)
	if res.Err != nil {
		out := strings.TrimSpace(res.Combined)
		if out == "" {
			return fmt.Errorf("%s: %w", name, res.Err)
		}
		return fmt.Errorf("%s: %w\n%s", name, res.Err, out)
	}
	return nil
}
