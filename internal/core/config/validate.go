package config

import (
	"fmt"
	"os"

	"github.com/hay-kot/criterio"
)

// ValidationWarning represents a non-fatal configuration issue.
type ValidationWarning struct {
	Category string `json:"category"`
	Item     string `json:"item,omitempty"`
	Message  string `json:"message"`
}

// ValidateDeep performs comprehensive validation of the configuration.
// Unlike Validate(), this also checks the config file and chat directory on disk.
func (c *Config) ValidateDeep(configPath string) error {
	errs := c.fieldErrors()
	errs = c.validateFileAccess(errs, configPath)
	return errs.ToError()
}

// validateFileAccess checks the config file and chat directory.
func (c *Config) validateFileAccess(errs criterio.FieldErrorsBuilder, configPath string) criterio.FieldErrorsBuilder {
	if configPath != "" {
		info, err := os.Stat(configPath)
		switch {
		case err == nil && info.IsDir():
			errs = errs.Append("config_file", fmt.Errorf("%s is a directory, not a file", configPath))
		case err != nil && !os.IsNotExist(err):
			errs = errs.Append("config_file", fmt.Errorf("cannot access %s: %w", configPath, err))
		}
	}

	if c.ChatDir != "" {
		info, err := os.Stat(c.ChatDir)
		switch {
		case err == nil && !info.IsDir():
			errs = errs.Append("chat_dir", fmt.Errorf("%s exists but is not a directory", c.ChatDir))
		case err != nil && !os.IsNotExist(err):
			errs = errs.Append("chat_dir", fmt.Errorf("cannot access %s: %w", c.ChatDir, err))
		}
	}

	return errs
}

// Warnings returns settings that are valid but probably unintended.
func (c *Config) Warnings() []ValidationWarning {
	var warnings []ValidationWarning

	if c.Username == "" {
		warnings = append(warnings, ValidationWarning{
			Category: "Identity",
			Item:     "username",
			Message:  "not set; send, listen, repl and tui need --user",
		})
	}

	if c.QoS > 0 {
		warnings = append(warnings, ValidationWarning{
			Category: "Delivery",
			Item:     "qos",
			Message:  "redelivered messages are recorded again in transcripts",
		})
	}

	if !c.Retain {
		warnings = append(warnings, ValidationWarning{
			Category: "Delivery",
			Item:     "retain",
			Message:  "peers that connect later will not see the last direct message",
		})
	}

	if !c.SerializeHandlers {
		warnings = append(warnings, ValidationWarning{
			Category: "Delivery",
			Item:     "serialize_handlers",
			Message:  "inbound events are handled concurrently; transcript order follows write order",
		})
	}

	return warnings
}
