package notify

import (
	"context"
	"fmt"
	"io"
	"os"
)

// TerminalNotifier prints notifications to a writer, stdout by
// default.
type TerminalNotifier struct {
	out io.Writer
}

// NewTerminalNotifier creates a terminal channel.
func NewTerminalNotifier() *TerminalNotifier {
	return &TerminalNotifier{out: os.Stdout}
}

// Name returns the channel name.
func (t *TerminalNotifier) Name() string {
	return "terminal"
}

// IsEnabled reports whether the channel will deliver.
func (t *TerminalNotifier) IsEnabled() bool {
	return true
}

// Send prints the notification.
func (t *TerminalNotifier) Send(ctx context.Context, n Notification) error {
	_, err := fmt.Fprintf(t.out, "[%s] %s\n%s\n", n.Timestamp.Format("15:04:05"), n.Title, n.Message)
	return err
}
