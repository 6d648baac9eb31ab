// chatclient/main.go
//
// chatclient keeps a connection to a chat server, printing what others say and
// sending every stdin line. Lines starting with "/" are local commands.
package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"

	"golang.org/x/sync/errgroup"

	"github.com/lightforgemedia/go-ezsockets/internal/config"
	"github.com/lightforgemedia/go-ezsockets/pkg/client"
	"github.com/lightforgemedia/go-ezsockets/pkg/events"
	"github.com/lightforgemedia/go-ezsockets/pkg/socket"
)

func main() {
	configPath := flag.String("config", "", "path to a TOML config file")
	url := flag.String("url", "", "chat server URL, overrides the config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	if *url != "" {
		cfg.Client.URL = *url
	}
	logger := cfg.NewLogger(os.Stderr)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg.ClientConfig(), os.Stdin, os.Stdout, logger); err != nil {
		logger.Error("Chat client failed", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg client.Config, stdin io.Reader, stdout io.Writer, logger *slog.Logger, opts ...client.Option) error {
	out := &printer{w: stdout}

	bus := events.NewBus(16)
	defer bus.Close()
	bus.Listen(ctx, func(ev events.Event) {
		logger.Debug("Chat client state", "state", ev.State, "delay", ev.Delay, "error", ev.Err)
	}, events.TopicClientState)

	opts = append([]client.Option{client.WithLogger(logger), client.WithEvents(bus)}, opts...)
	c, err := client.Connect(ctx, cfg, func(*client.Client[string]) *chat {
		return &chat{out: out}
	}, opts...)
	if err != nil {
		return err
	}

	// Reading stdin cannot be interrupted, so it stays outside the group.
	go readInput(stdin, c)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		select {
		case <-gctx.Done():
		case <-c.Done():
		}
		if err := c.Close(); err != nil && !errors.Is(err, client.ErrClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		if err := c.Wait(); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	})
	return g.Wait()
}

// readInput sends stdin lines until EOF or /quit, then closes the client.
func readInput(r io.Reader, c *client.Client[string]) {
	defer c.Close()

	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		switch {
		case line == "":
			continue
		case line == "/quit":
			return
		case line == "/state":
			if err := c.Call("state: " + c.State().String()); err != nil {
				return
			}
		default:
			if err := c.Text(line); err != nil {
				return
			}
		}
	}
}

// printer serializes writes to the terminal.
type printer struct {
	mu sync.Mutex
	w  io.Writer
}

func (p *printer) println(s string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	fmt.Fprintln(p.w, s)
}

// chat prints inbound text. Calls carry local notices so they interleave
// with received messages in order.
type chat struct {
	out *printer
}

func (c *chat) Text(_ context.Context, text string) (*socket.Message, error) {
	c.out.println(text)
	return nil, nil
}

func (c *chat) Binary(_ context.Context, data []byte) (*socket.Message, error) {
	c.out.println(fmt.Sprintf("[%d bytes]", len(data)))
	return nil, nil
}

func (c *chat) Call(_ context.Context, notice string) error {
	c.out.println("* " + notice)
	return nil
}

func (c *chat) Connecting(_ context.Context, attempt int) error {
	if attempt > 0 {
		c.out.println(fmt.Sprintf("* reconnecting (attempt %d)", attempt))
	}
	return nil
}
