package commands

import (
	"context"
	"fmt"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/rs/zerolog/log"
	"github.com/urfave/cli/v3"

	"github.com/hay-kot/mqchat/internal/chat"
	"github.com/hay-kot/mqchat/internal/tui"
)

type TuiCmd struct {
	flags *Flags
	peer  string
}

// NewTuiCmd creates a new tui command
func NewTuiCmd(flags *Flags) *TuiCmd {
	return &TuiCmd{
		flags: flags,
	}
}

// Register adds the tui command to the application.
func (cmd *TuiCmd) Register(app *cli.Command) *cli.Command {
	app.Commands = append(app.Commands, &cli.Command{
		Name:      "tui",
		Usage:     "Full screen chat window",
		UsageText: "mqchat tui [--peer <name>]",
		Description: `Opens a chat window for one conversation at a time. Type a message and press
enter to send it; type /to <peer> to switch conversations and ctrl+b to go back
to the broadcast group. Logs are shown after the window closes.`,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "peer",
				Aliases:     []string{"p"},
				Usage:       "conversation to open (default: broadcast)",
				Destination: &cmd.peer,
			},
		},
		Action: cmd.run,
	})

	return app
}

func (cmd *TuiCmd) run(ctx context.Context, _ *cli.Command) error {
	sess, err := cmd.flags.NewSession(log.Logger)
	if err != nil {
		return err
	}
	defer func() { _ = sess.Close() }()

	if err := sess.Open(ctx); err != nil {
		return fmt.Errorf("open session: %w", err)
	}

	cfg := cmd.flags.Config
	m := tui.New(sess, tui.Options{
		Self:           cfg.Username,
		Peer:           cmd.peer,
		BroadcastLabel: cfg.BroadcastLabel,
	})

	p := tea.NewProgram(m, tea.WithAltScreen(), tea.WithContext(ctx))
	sess.OnRecorded(func(rec chat.Record) {
		p.Send(tui.RecordedMsg(rec))
	})

	if _, err := p.Run(); err != nil {
		return fmt.Errorf("run tui: %w", err)
	}

	return nil
}
