package config

import (
	"fmt"

	"github.com/go-playground/validator/v10"
	"github.com/robfig/cron/v3"

	"github.com/edgard/assistbot/internal/errs"
)

// taskParser accepts the six-field expressions the scheduler runs with.
var taskParser = cron.NewParser(cron.Second | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// Validate checks struct constraints and the cron expressions of enabled
// tasks.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return errs.NewConfigError("invalid configuration", err)
	}
	if c.Intent.Gemini.Enabled && c.Intent.Gemini.APIKey == "" {
		return errs.NewConfigError("intent.gemini.api_key is required when the gemini fallback is enabled", nil)
	}
	for name, task := range c.Scheduler.Tasks {
		if !task.Enabled {
			continue
		}
		if _, err := taskParser.Parse(task.Schedule); err != nil {
			return errs.NewConfigError(fmt.Sprintf("invalid schedule for task %s", name), err)
		}
	}
	return nil
}
