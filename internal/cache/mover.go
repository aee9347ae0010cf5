package cache

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"syscall"

	"github.com/openmined/keshig/internal/utils"
)

// Mover moves the file at src to dst.
type Mover interface {
	Move(ctx context.Context, src, dst string) error
}

// RenameMover renames in place and falls back to copy-then-remove when src
// and dst are on different filesystems.
type RenameMover struct{}

func (RenameMover) Move(ctx context.Context, src, dst string) error {
	err := os.Rename(src, dst)
	if err == nil {
		return nil
	}

	var linkErr *os.LinkError
	if !errors.As(err, &linkErr) || !errors.Is(linkErr.Err, syscall.EXDEV) {
		return err
	}

	slog.Debug("cross-device move, copying", "src", src, "dst", dst)
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := utils.CopyFile(src, dst); err != nil {
		return fmt.Errorf("copy across devices: %w", err)
	}
	if err := os.Remove(src); err != nil {
		// leave the source in place and drop the copy, the caller sees the failure
		if rmErr := os.Remove(dst); rmErr != nil {
			slog.Warn("failed to remove partial cache copy", "path", dst, "error", rmErr)
		}
		return fmt.Errorf("remove source after copy: %w", err)
	}
	return nil
}

// CommandMover runs `<Prefix...> mv -- src dst`, e.g. with Prefix
// ["sudo", "-n"] to retry a move with elevated privileges.
type CommandMover struct {
	Prefix []string
}

func (m CommandMover) Move(ctx context.Context, src, dst string) error {
	args := append(append([]string(nil), m.Prefix...), "mv", "--", src, dst)
	_, err := utils.RunCommand(ctx, "", args[0], args[1:]...)
	return err
}

// Privileged returns the fallback mover for prefix, or nil when prefix is
// empty and no retry should happen.
func Privileged(prefix []string) Mover {
	if len(prefix) == 0 {
		return nil
	}
	return CommandMover{Prefix: prefix}
}
