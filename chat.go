// chat.go
// Terminal client: each stdin line is sent as one frame, every frame from
// the relay is printed as a readable line.

package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/websocket"
	"github.com/spf13/cobra"
)

const (
	closeWait      = 2 * time.Second
	defaultMaxLine = 64 * 1024
)

func newChatCmd() *cobra.Command {
	var (
		relayURL string
		maxLine  int
	)
	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Connect to a relay and chat from the terminal",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return runChat(ctx, relayURL, maxLine, cmd.InOrStdin(), cmd.OutOrStdout())
		},
	}
	cmd.Flags().StringVar(&relayURL, "url", "ws://localhost:8081/ws", "relay WebSocket URL")
	cmd.Flags().IntVar(&maxLine, "max-line", defaultMaxLine, "longest input line in bytes; match the relay's client.read_limit")
	return cmd
}

// runChat returns an error wrapping bufio.ErrTooLong when a stdin line is
// longer than maxLine; nothing from that line on is sent.
func runChat(ctx context.Context, relayURL string, maxLine int, in io.Reader, out io.Writer) error {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, relayURL, nil)
	if err != nil {
		return fmt.Errorf("dial %s: %w", relayURL, err)
	}
	defer conn.Close()

	readDone := make(chan error, 1)
	go func() {
		readDone <- printFrames(conn, out)
	}()

	stop := make(chan struct{})
	defer close(stop)
	lines := make(chan string)
	scanErr := make(chan error, 1)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(in)
		scanner.Buffer(make([]byte, 0, 4096), maxLine)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-stop:
				return
			}
		}
		scanErr <- scanner.Err()
	}()

	for {
		select {
		case line, ok := <-lines:
			if !ok {
				if err := <-scanErr; err != nil {
					hangUp(conn, readDone)
					return fmt.Errorf("read stdin: %w", err)
				}
				return hangUp(conn, readDone)
			}
			if err := conn.WriteMessage(websocket.TextMessage, []byte(line)); err != nil {
				return fmt.Errorf("send: %w", err)
			}
		case err := <-readDone:
			return err
		case <-ctx.Done():
			return hangUp(conn, readDone)
		}
	}
}

// hangUp sends a close frame and waits briefly for the relay to finish
// flushing what it already queued for us.
func hangUp(conn *websocket.Conn, readDone <-chan error) error {
	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
	if err := conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(closeWait)); err != nil {
		return nil
	}
	select {
	case err := <-readDone:
		return err
	case <-time.After(closeWait):
		return nil
	}
}

// printFrames returns nil when the relay closes the connection normally.
func printFrames(conn *websocket.Conn, out io.Writer) error {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			var closeErr *websocket.CloseError
			if errors.As(err, &closeErr) &&
				(closeErr.Code == websocket.CloseNormalClosure || closeErr.Code == websocket.CloseGoingAway) {
				return nil
			}
			return fmt.Errorf("receive: %w", err)
		}
		env, err := Decode(data)
		if err != nil {
			fmt.Fprintf(out, "? %s\n", data)
			continue
		}
		fmt.Fprintln(out, formatEnvelope(env))
	}
}

func formatEnvelope(e Envelope) string {
	switch e.Type {
	case MsgRole:
		return fmt.Sprintf("[%s] %s", e.Role, e.Text())
	case MsgNotification:
		return "* " + e.Text()
	default:
		who := string(e.Sender)
		if e.Sender == SenderSelf {
			who = "you"
		}
		return fmt.Sprintf("%s: %s", who, e.Text())
	}
}
