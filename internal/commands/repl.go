package commands

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/hay-kot/mqchat/internal/chat"
	"github.com/hay-kot/mqchat/internal/printer"
)

var errQuit = errors.New("quit")

const replHelp = `commands:
  send <recipient> <text...>   send a message (use the broadcast label for everyone)
  chat <peer>                  show the transcript for peer
  chats                        list conversations
  help                         show this help
  exit                         leave`

type lineReader interface {
	Readline() (string, error)
	Close() error
}

// plainReader reads lines from a non-terminal input. Lines may be any length.
type plainReader struct {
	r *bufio.Reader
}

func newPlainReader(r io.Reader) *plainReader {
	return &plainReader{r: bufio.NewReader(r)}
}

func (r *plainReader) Readline() (string, error) {
	line, err := r.r.ReadString('\n')
	if err != nil && (!errors.Is(err, io.EOF) || line == "") {
		return "", err
	}
	return strings.TrimRight(line, "\r\n"), nil
}

func (r *plainReader) Close() error { return nil }

// repl evaluates one command line at a time against a session.
type repl struct {
	sess  *chat.Session
	flags *Flags
	out   *printer.Printer
}

type readResult struct {
	line string
	err  error
}

// loop evaluates lines until exit, end of input or ctx is done.
func (r *repl) loop(ctx context.Context, in lineReader) error {
	lines := make(chan readResult)
	go func() {
		for {
			line, err := in.Readline()
			select {
			case lines <- readResult{line: line, err: err}:
			case <-ctx.Done():
				return
			}
			if err != nil {
				return
			}
		}
	}()

	for {
		var res readResult
		select {
		case <-ctx.Done():
			return nil
		case res = <-lines:
		}

		if res.err != nil {
			if errors.Is(res.err, io.EOF) {
				return nil
			}
			return fmt.Errorf("read input: %w", res.err)
		}

		if err := r.eval(ctx, res.line); err != nil {
			if errors.Is(err, errQuit) {
				return nil
			}
			r.out.Errorf("%v", err)
		}
	}
}

func (r *repl) eval(ctx context.Context, line string) error {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return nil
	}

	switch fields[0] {
	case "send":
		if len(fields) < 3 {
			return errors.New("usage: send <recipient> <text...>")
		}
		// keep the spacing inside the message
		rest := strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(line), "send"))
		_, text, _ := strings.Cut(rest, fields[1])
		return r.sess.Send(ctx, fields[1], strings.TrimSpace(text))

	case "chat":
		if len(fields) != 2 {
			return errors.New("usage: chat <peer>")
		}
		text, err := r.sess.Chat(ctx, fields[1])
		switch {
		case errors.Is(err, chat.ErrNoHistory):
			r.out.Infof("no history with %s", fields[1])
			return nil
		case err != nil:
			return err
		}
		r.out.Transcript(strings.Split(text, "\n"), r.flags.Config.Username)
		return nil

	case "chats":
		keys, err := r.flags.Store.List(ctx)
		if err != nil {
			return err
		}
		if len(keys) == 0 {
			r.out.Infof("no conversations yet")
		}
		for _, k := range keys {
			r.out.Item(k, "")
		}
		return nil

	case "help", "?":
		r.out.Printf("%s", replHelp)
		return nil

	case "exit", "quit":
		return errQuit

	default:
		return fmt.Errorf("unknown command %q, try help", fields[0])
	}
}
