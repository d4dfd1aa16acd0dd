package commands

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/rs/zerolog/log"
	"github.com/urfave/cli/v3"

	"github.com/hay-kot/mqchat/internal/chat"
	"github.com/hay-kot/mqchat/internal/printer"
)

type ChatCmd struct {
	flags  *Flags
	follow bool
}

// NewChatCmd creates a new chat command.
func NewChatCmd(flags *Flags) *ChatCmd {
	return &ChatCmd{flags: flags}
}

// Register adds the chat command to the application.
func (cmd *ChatCmd) Register(app *cli.Command) *cli.Command {
	app.Commands = append(app.Commands, &cli.Command{
		Name:      "chat",
		Usage:     "Show the transcript for a peer or the broadcast group",
		UsageText: "mqchat chat [--follow] <peer>",
		Description: `Prints the stored transcript for a conversation. No broker connection is made.

With --follow the command keeps running and prints lines as other mqchat
processes (listen, repl, tui) append them.`,
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:        "follow",
				Aliases:     []string{"f"},
				Usage:       "keep printing new lines until interrupted",
				Destination: &cmd.follow,
			},
		},
		Action: cmd.run,
	})

	return app
}

func (cmd *ChatCmd) run(ctx context.Context, c *cli.Command) error {
	if c.Args().Len() != 1 {
		return fmt.Errorf("usage: %s", c.UsageText)
	}
	peer := c.Args().First()

	out := printer.New(c.Root().Writer)
	self := cmd.flags.Config.Username

	router := cmd.flags.NewRouter(log.Logger)
	text, err := router.Chat(ctx, peer)
	switch {
	case errors.Is(err, chat.ErrNoHistory):
		if !cmd.follow {
			printer.Ctx(ctx).Infof("no history with %s", peer)
			return nil
		}
	case err != nil:
		return err
	default:
		out.Transcript(strings.Split(text, "\n"), self)
	}

	if !cmd.follow {
		return nil
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	return cmd.flags.Store.Follow(ctx, peer, func(line string) {
		out.TranscriptLine(line, self)
	})
}
