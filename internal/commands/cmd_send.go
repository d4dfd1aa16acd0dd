package commands

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/urfave/cli/v3"

	"github.com/hay-kot/mqchat/internal/chat"
	"github.com/hay-kot/mqchat/internal/core/transcript"
	"github.com/hay-kot/mqchat/internal/printer"
)

type SendCmd struct {
	flags *Flags
	wait  time.Duration
}

// NewSendCmd creates a new send command.
func NewSendCmd(flags *Flags) *SendCmd {
	return &SendCmd{flags: flags}
}

// Register adds the send command to the application.
func (cmd *SendCmd) Register(app *cli.Command) *cli.Command {
	app.Commands = append(app.Commands, &cli.Command{
		Name:      "send",
		Usage:     "Send a message to a user or the broadcast group",
		UsageText: "mqchat send [options] <recipient> <text...>",
		Description: `Connects, publishes one message and waits for it to be recorded.

Direct messages are written to the recipient's transcript once the broker
confirms delivery. Messages to the broadcast label (default "todos") are
written when they come back through the broadcast subscription.

Examples:
  mqchat send Sam "are we still on for lunch?"
  mqchat send todos standup in five`,
		Flags: []cli.Flag{
			&cli.DurationFlag{
				Name:        "wait",
				Usage:       "how long to wait for the message to be recorded (0 uses connect_timeout)",
				Destination: &cmd.wait,
			},
		},
		Action: cmd.run,
	})

	return app
}

func (cmd *SendCmd) run(ctx context.Context, c *cli.Command) error {
	p := printer.Ctx(ctx)

	if c.Args().Len() < 2 {
		return fmt.Errorf("usage: %s", c.UsageText)
	}
	recipient := c.Args().First()
	text := strings.Join(c.Args().Tail(), " ")

	logger := log.With().Str("component", "send").Logger()

	sess, err := cmd.flags.NewSession(log.Logger)
	if err != nil {
		return err
	}
	defer func() { _ = sess.Close() }()

	// match the sent line, not a retained message replayed on subscribe
	want := "): " + transcript.Flatten(text)

	recorded := make(chan struct{}, 1)
	sess.OnRecorded(func(rec chat.Record) {
		if rec.Key == recipient && strings.HasSuffix(rec.Line, want) {
			select {
			case recorded <- struct{}{}:
			default:
			}
		}
	})

	if err := sess.Open(ctx); err != nil {
		return fmt.Errorf("open session: %w", err)
	}

	if err := sess.Send(ctx, recipient, text); err != nil {
		return fmt.Errorf("send: %w", err)
	}

	wait := cmd.wait
	if wait <= 0 {
		wait = cmd.flags.Config.Timeout()
	}

	select {
	case <-recorded:
		p.Successf("sent to %s", recipient)
	case <-time.After(wait):
		logger.Warn().Str("recipient", recipient).Dur("wait", wait).Msg("delivery not confirmed")
		p.Warnf("sent to %s, but delivery was not confirmed within %s", recipient, wait)
	case <-ctx.Done():
		return ctx.Err()
	}

	return nil
}
