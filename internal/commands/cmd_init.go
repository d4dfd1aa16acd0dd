package commands

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/charmbracelet/huh"
	"github.com/urfave/cli/v3"

	"github.com/hay-kot/mqchat/internal/core/config"
	"github.com/hay-kot/mqchat/internal/core/topic"
	"github.com/hay-kot/mqchat/internal/printer"
	"github.com/hay-kot/mqchat/internal/styles"
)

type InitCmd struct {
	flags *Flags
	yes   bool
}

// NewInitCmd creates a new init command.
func NewInitCmd(flags *Flags) *InitCmd {
	return &InitCmd{flags: flags}
}

// Register adds the init command to the application.
func (cmd *InitCmd) Register(app *cli.Command) *cli.Command {
	app.Commands = append(app.Commands, &cli.Command{
		Name:      "init",
		Usage:     "Write a config file interactively",
		UsageText: "mqchat init [--yes]",
		Description: `Asks for the broker, user name and channel and writes them to the config file.
Current values (including --broker, --user and --channel) are offered as
defaults. With --yes the form is skipped and the current values are written.`,
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:        "yes",
				Aliases:     []string{"y"},
				Usage:       "write current values without prompting",
				Destination: &cmd.yes,
			},
		},
		Action: cmd.run,
	})

	return app
}

func (cmd *InitCmd) run(ctx context.Context, _ *cli.Command) error {
	p := printer.Ctx(ctx)
	cfg := cmd.flags.Config
	path := cmd.flags.ConfigPath

	if !cmd.yes {
		_, statErr := os.Stat(path)
		exists := statErr == nil

		timeout := cfg.Timeout().String()
		overwrite := true

		fields := []huh.Field{
			huh.NewInput().
				Title("Broker").
				Description("tcp://host:1883, ssl://host:8883, ws://host/mqtt or loopback://").
				Value(&cfg.Broker).
				Validate(func(s string) error {
					c := *cfg
					c.Broker = s
					return fieldError(c.Validate(), "broker")
				}),
			huh.NewInput().
				Title("User name").
				Description("Others send you direct messages with this name").
				Value(&cfg.Username).
				Validate(func(s string) error {
					if err := topic.ValidateIdentity(s); err != nil {
						return err
					}
					if s == cfg.BroadcastLabel {
						return fmt.Errorf("%q is the broadcast label", s)
					}
					return nil
				}),
			huh.NewInput().
				Title("Channel").
				Value(&cfg.Channel).
				Validate(topic.ValidateIdentity),
			huh.NewInput().
				Title("Connect timeout").
				Value(&timeout).
				Validate(func(s string) error {
					_, err := parsePositiveDuration(s)
					return err
				}),
		}
		if exists {
			fields = append(fields, huh.NewConfirm().
				Title(fmt.Sprintf("Overwrite %s?", path)).
				Value(&overwrite))
		}

		form := huh.NewForm(huh.NewGroup(fields...)).WithTheme(styles.FormTheme())
		if err := form.RunWithContext(ctx); err != nil {
			if errors.Is(err, huh.ErrUserAborted) {
				p.Warnf("aborted, nothing written")
				return nil
			}
			return fmt.Errorf("run form: %w", err)
		}

		if !overwrite {
			p.Infof("kept existing %s", path)
			return nil
		}

		d, err := parsePositiveDuration(timeout)
		if err != nil {
			return err
		}
		cfg.ConnectTimeout = d
	}

	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	if err := cfg.RequireUsername(); err != nil {
		return err
	}

	if err := cfg.Save(path); err != nil {
		return err
	}

	p.Successf("wrote %s", path)
	return nil
}

// fieldError returns the message for one field of a criterio validation
// error, or nil when that field is valid.
func fieldError(err error, field string) error {
	for _, fe := range extractFieldErrors(err) {
		if fe.Field == field {
			return fe.Err
		}
	}
	return nil
}

// parsePositiveDuration accepts Go durations ("5s") and bare seconds ("5").
func parsePositiveDuration(s string) (config.Duration, error) {
	d, err := time.ParseDuration(s)
	if n, aerr := strconv.Atoi(s); aerr == nil {
		d, err = time.Duration(n)*time.Second, nil
	}
	if err != nil {
		return 0, err
	}
	if d <= 0 {
		return 0, errors.New("must be positive")
	}
	return config.Duration(d), nil
}
