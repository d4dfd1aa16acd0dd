package commands

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/chzyer/readline"
	"github.com/rs/zerolog/log"
	"github.com/urfave/cli/v3"
	"golang.org/x/term"

	"github.com/hay-kot/mqchat/internal/chat"
	"github.com/hay-kot/mqchat/internal/printer"
)

type ReplCmd struct {
	flags *Flags
}

// NewReplCmd creates a new repl command.
func NewReplCmd(flags *Flags) *ReplCmd {
	return &ReplCmd{flags: flags}
}

// Register adds the repl command to the application.
func (cmd *ReplCmd) Register(app *cli.Command) *cli.Command {
	app.Commands = append(app.Commands, &cli.Command{
		Name:      "repl",
		Usage:     "Interactive line based chat",
		UsageText: "mqchat repl",
		Description: `Stays connected and reads commands from standard input:

  send <recipient> <text...>
  chat <peer>
  chats
  exit

Incoming messages are printed as they are recorded. Line editing and history
are available when standard input is a terminal.`,
		Action: cmd.run,
	})

	return app
}

func (cmd *ReplCmd) run(ctx context.Context, c *cli.Command) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	in, stdout := cmd.input(c)
	defer func() { _ = in.Close() }()

	out := printer.New(stdout)

	sess, err := cmd.flags.NewSession(log.Logger)
	if err != nil {
		return err
	}
	defer func() { _ = sess.Close() }()

	self := cmd.flags.Config.Username
	sess.OnRecorded(func(rec chat.Record) {
		out.TranscriptLine(rec.Line, self)
	})

	if err := sess.Open(ctx); err != nil {
		return fmt.Errorf("open session: %w", err)
	}

	out.Infof("connected to %s as %s, type help for commands", cmd.flags.Config.Broker, self)

	r := &repl{sess: sess, flags: cmd.flags, out: out}
	return r.loop(ctx, in)
}

// input uses readline on a terminal and a plain scanner otherwise.
func (cmd *ReplCmd) input(c *cli.Command) (lineReader, io.Writer) {
	if !term.IsTerminal(int(os.Stdin.Fd())) {
		return newPlainReader(os.Stdin), c.Root().Writer
	}

	rl, err := readline.NewEx(&readline.Config{
		Prompt:          cmd.flags.Config.Username + "> ",
		HistoryFile:     filepath.Join(cmd.flags.DataDir, "repl_history"),
		HistoryLimit:    500,
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
	})
	if err != nil {
		log.Warn().Err(err).Msg("readline unavailable, falling back to plain input")
		return newPlainReader(os.Stdin), c.Root().Writer
	}

	return &readlineReader{rl: rl}, rl.Stdout()
}

// readlineReader maps readline interrupts to end of input.
type readlineReader struct {
	rl *readline.Instance
}

func (r *readlineReader) Readline() (string, error) {
	line, err := r.rl.Readline()
	if errors.Is(err, readline.ErrInterrupt) {
		return "", io.EOF
	}
	return line, err
}

func (r *readlineReader) Close() error { return r.rl.Close() }
