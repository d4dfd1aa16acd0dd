package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog/log"
	"github.com/urfave/cli/v3"

	"github.com/hay-kot/mqchat/internal/chat"
	"github.com/hay-kot/mqchat/internal/printer"
)

type ListenCmd struct {
	flags *Flags
	peer  string
}

// NewListenCmd creates a new listen command.
func NewListenCmd(flags *Flags) *ListenCmd {
	return &ListenCmd{flags: flags}
}

// Register adds the listen command to the application.
func (cmd *ListenCmd) Register(app *cli.Command) *cli.Command {
	app.Commands = append(app.Commands, &cli.Command{
		Name:      "listen",
		Usage:     "Stay connected and record incoming messages",
		UsageText: "mqchat listen [--peer <name>]",
		Description: `Subscribes to the broadcast topic and to direct messages for the configured
user, records every message to its transcript and prints it. Runs until
interrupted.`,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "peer",
				Usage:       "only print messages from this conversation (all are still recorded)",
				Destination: &cmd.peer,
			},
		},
		Action: cmd.run,
	})

	return app
}

func (cmd *ListenCmd) run(ctx context.Context, c *cli.Command) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	sess, err := cmd.flags.NewSession(log.Logger)
	if err != nil {
		return err
	}
	defer func() { _ = sess.Close() }()

	out := printer.New(c.Root().Writer)
	self := cmd.flags.Config.Username

	sess.OnRecorded(func(rec chat.Record) {
		if cmd.peer != "" && rec.Key != cmd.peer {
			return
		}
		out.TranscriptLine(rec.Line, self)
	})

	if err := sess.Open(ctx); err != nil {
		return fmt.Errorf("open session: %w", err)
	}

	printer.Ctx(ctx).Infof("listening on %s as %s (ctrl+c to stop)", cmd.flags.Config.Broker, self)
	<-ctx.Done()
	return nil
}
