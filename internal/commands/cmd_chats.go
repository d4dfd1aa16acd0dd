package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/urfave/cli/v3"

	"github.com/hay-kot/mqchat/internal/printer"
)

type ChatsCmd struct {
	flags  *Flags
	format string
}

// NewChatsCmd creates a new chats command.
func NewChatsCmd(flags *Flags) *ChatsCmd {
	return &ChatsCmd{flags: flags}
}

// Register adds the chats command to the application.
func (cmd *ChatsCmd) Register(app *cli.Command) *cli.Command {
	app.Commands = append(app.Commands, &cli.Command{
		Name:      "chats",
		Usage:     "List conversations with a stored transcript",
		UsageText: "mqchat chats [--format text|json]",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "format",
				Usage:       "output format (text, json)",
				Value:       "text",
				Destination: &cmd.format,
			},
		},
		Action: cmd.run,
	})

	return app
}

type chatSummary struct {
	Peer  string `json:"peer"`
	Lines int    `json:"lines"`
	Last  string `json:"last,omitempty"`
}

func (cmd *ChatsCmd) run(ctx context.Context, c *cli.Command) error {
	keys, err := cmd.flags.Store.List(ctx)
	if err != nil {
		return fmt.Errorf("list transcripts: %w", err)
	}

	summaries := make([]chatSummary, 0, len(keys))
	for _, key := range keys {
		lines, err := cmd.flags.Store.ReadAll(ctx, key)
		if err != nil {
			return fmt.Errorf("read transcript %s: %w", key, err)
		}

		s := chatSummary{Peer: key, Lines: len(lines)}
		if len(lines) > 0 {
			s.Last = lines[len(lines)-1]
		}
		summaries = append(summaries, s)
	}

	switch cmd.format {
	case "json":
		enc := json.NewEncoder(c.Root().Writer)
		enc.SetIndent("", "  ")
		return enc.Encode(summaries)
	case "text":
	default:
		return fmt.Errorf("unknown format %q", cmd.format)
	}

	if len(summaries) == 0 {
		printer.Ctx(ctx).Infof("no transcripts in %s", cmd.flags.Store.Root())
		return nil
	}

	out := printer.New(c.Root().Writer)
	for _, s := range summaries {
		detail := fmt.Sprintf("(%d)", s.Lines)
		if s.Last != "" {
			detail += " " + truncate(s.Last, 60)
		}
		out.Item(s.Peer, detail)
	}
	return nil
}

func truncate(s string, n int) string {
	s = strings.TrimSpace(s)
	if len([]rune(s)) <= n {
		return s
	}
	return string([]rune(s)[:n-1]) + "…"
}
