package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/Tyrowin/linechat/internal/chat"
	"github.com/Tyrowin/linechat/internal/config"
	"github.com/Tyrowin/linechat/internal/peer"
)

func clientCmd() *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "client",
		Short: "Connect to a relay from the terminal",
		Long: `Connect to a relay, send each line typed on stdin and print
every line received from other peers.

Examples:
  linechat client --addr=127.0.0.1:7000`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runClient(ctx, addr)
		},
	}

	cmd.Flags().StringVarP(&addr, "addr", "a", "127.0.0.1:7000", "Relay address host:port")

	return cmd
}

func runClient(ctx context.Context, addr string) error {
	c := peer.New(peer.WithLogger(newLogger(config.NewConfigFromEnv())))
	if err := c.Connect(addr); err != nil {
		return err
	}
	defer func() { _ = c.Close() }()

	lines := make(chan []byte)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			line := make([]byte, 0, len(scanner.Bytes())+1)
			line = append(line, scanner.Bytes()...)
			line = append(line, '\n')
			select {
			case lines <- line:
			case <-ctx.Done():
				return
			}
		}
	}()

	out := bufio.NewWriter(os.Stdout)
	for ctx.Err() == nil {
		select {
		case line, ok := <-lines:
			if !ok {
				return nil
			}
			if err := c.Feed(line); err != nil {
				return err
			}
		default:
		}

		err := c.Update(0.05)
		if errors.Is(err, peer.ErrClosed) {
			fmt.Fprintln(os.Stderr, "relay closed the connection")
			return nil
		}
		if err != nil && !errors.Is(err, chat.ErrTimeout) {
			return err
		}

		for {
			msg, ok := c.PopNext()
			if !ok {
				break
			}
			fmt.Fprintln(out, msg.String())
		}
		if err := out.Flush(); err != nil {
			return err
		}
	}
	return nil
}
