package commands

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	"github.com/hay-kot/criterio"
	"github.com/urfave/cli/v3"

	"github.com/hay-kot/mqchat/internal/core/config"
	"github.com/hay-kot/mqchat/internal/printer"
)

type ConfigValidateCmd struct {
	flags  *Flags
	format string
}

// NewConfigValidateCmd creates a new config validate command.
func NewConfigValidateCmd(flags *Flags) *ConfigValidateCmd {
	return &ConfigValidateCmd{flags: flags}
}

// Register adds the config validate command to the application.
func (cmd *ConfigValidateCmd) Register(app *cli.Command) *cli.Command {
	app.Commands = append(app.Commands, &cli.Command{
		Name:  "config",
		Usage: "Configuration management commands",
		Commands: []*cli.Command{
			{
				Name:      "validate",
				Usage:     "Validate configuration file",
				UsageText: "mqchat config validate [options]",
				Description: `Shows the effective settings grouped by broker, identity, delivery and storage,
marking each one as valid, invalid or worth a second look. Command line
overrides (--broker, --user, --channel) are included.`,
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:        "format",
						Usage:       "output format (text, json)",
						Value:       "text",
						Destination: &cmd.format,
					},
				},
				Action: cmd.run,
			},
		},
	})

	return app
}

// setting is one effective config value with its validation outcome.
type setting struct {
	Field   string `json:"field"`
	Value   string `json:"value"`
	Error   string `json:"error,omitempty"`
	Warning string `json:"warning,omitempty"`
}

type settingGroup struct {
	Name     string    `json:"name"`
	Settings []setting `json:"settings"`
}

// report sorts validation results into the groups a user thinks in. Errors not
// tied to a known field are returned separately.
func report(cfg *config.Config, configPath string, validationErr error, warnings []config.ValidationWarning) ([]settingGroup, []string) {
	groups := []settingGroup{
		{Name: "Broker", Settings: []setting{
			{Field: "broker", Value: cfg.Broker},
			{Field: "connect_timeout", Value: cfg.Timeout().String()},
		}},
		{Name: "Identity", Settings: []setting{
			{Field: "channel", Value: cfg.Channel},
			{Field: "username", Value: cfg.Username},
			{Field: "broadcast_label", Value: cfg.BroadcastLabel},
		}},
		{Name: "Delivery", Settings: []setting{
			{Field: "qos", Value: strconv.Itoa(int(cfg.QoS))},
			{Field: "retain", Value: strconv.FormatBool(cfg.Retain)},
			{Field: "serialize_handlers", Value: strconv.FormatBool(cfg.SerializeHandlers)},
			{Field: "dispatch_buffer", Value: strconv.Itoa(cfg.DispatchBuffer)},
		}},
		{Name: "Storage", Settings: []setting{
			{Field: "config_file", Value: configPath},
			{Field: "chat_dir", Value: cfg.ChatDir},
		}},
	}

	index := make(map[string]*setting)
	for gi := range groups {
		for si := range groups[gi].Settings {
			s := &groups[gi].Settings[si]
			index[s.Field] = s
		}
	}

	var other []string
	for _, fe := range extractFieldErrors(validationErr) {
		s, ok := index[fe.Field]
		if !ok {
			msg := fe.Err.Error()
			if fe.Field != "" {
				msg = fe.Field + ": " + msg
			}
			other = append(other, msg)
			continue
		}
		if s.Error != "" {
			s.Error += "; "
		}
		s.Error += fe.Err.Error()
	}

	for _, w := range warnings {
		s, ok := index[w.Item]
		if !ok {
			other = append(other, w.Category+": "+w.Message)
			continue
		}
		s.Warning = w.Message
	}

	return groups, other
}

func (cmd *ConfigValidateCmd) run(ctx context.Context, c *cli.Command) error {
	if cmd.flags.Config == nil {
		return fmt.Errorf("configuration not loaded")
	}

	err := cmd.flags.Config.ValidateDeep(cmd.flags.ConfigPath)
	groups, other := report(cmd.flags.Config, cmd.flags.ConfigPath, err, cmd.flags.Config.Warnings())

	switch cmd.format {
	case "json":
		if jerr := reportJSON(c, err == nil, groups, other); jerr != nil {
			return jerr
		}
	case "text":
		reportText(printer.Ctx(ctx), err == nil, groups, other)
	default:
		return fmt.Errorf("unknown format %q", cmd.format)
	}

	if err != nil {
		return cli.Exit("", 1)
	}
	return nil
}

func reportJSON(c *cli.Command, valid bool, groups []settingGroup, other []string) error {
	out := struct {
		Valid  bool           `json:"valid"`
		Groups []settingGroup `json:"groups"`
		Other  []string       `json:"other,omitempty"`
	}{
		Valid:  valid,
		Groups: groups,
		Other:  other,
	}

	enc := json.NewEncoder(c.Root().Writer)
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}

func reportText(p *printer.Printer, valid bool, groups []settingGroup, other []string) {
	var errCount, warnCount int

	for _, g := range groups {
		p.Section(g.Name)
		for _, s := range g.Settings {
			value := s.Value
			if value == "" {
				value = "(not set)"
			}
			switch {
			case s.Error != "":
				errCount++
				p.FailItem(s.Field, value+", "+s.Error)
			case s.Warning != "":
				warnCount++
				p.WarnItem(s.Field, value+", "+s.Warning)
			default:
				p.CheckItem(s.Field, value)
			}
		}
		p.Printf("")
	}

	for _, msg := range other {
		p.Errorf("%s", msg)
	}

	switch {
	case !valid:
		p.Errorf("configuration has %d invalid setting(s)", errCount+len(other))
	case warnCount > 0:
		p.Successf("Configuration is valid (%d warning(s))", warnCount)
	default:
		p.Successf("Configuration is valid")
	}
}

// extractFieldErrors extracts field errors from a validation error.
func extractFieldErrors(err error) criterio.FieldErrors {
	if err == nil {
		return nil
	}
	var fieldErrs criterio.FieldErrors
	if errors.As(err, &fieldErrs) {
		return fieldErrs
	}
	return criterio.FieldErrors{{Err: err}}
}
