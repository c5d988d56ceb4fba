package services

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"
	"gorm.io/datatypes"

	dataagg "github.com/yungbote/processing-backend/internal/data/aggregates"
	reminderrepo "github.com/yungbote/processing-backend/internal/data/repos/reminders"
	types "github.com/yungbote/processing-backend/internal/domain"
	domainagg "github.com/yungbote/processing-backend/internal/domain/aggregates"
	"github.com/yungbote/processing-backend/internal/domain/processing"
	reminderdomain "github.com/yungbote/processing-backend/internal/domain/reminders"
	schedule "github.com/yungbote/processing-backend/internal/modules/reminders"
	"github.com/yungbote/processing-backend/internal/platform/dbctx"
	"github.com/yungbote/processing-backend/internal/platform/logger"
)

// ReminderSettingsProvider resolves the effective settings of a reminder family: stored overrides on
// top of file or built-in defaults.
type ReminderSettingsProvider interface {
	Families() []string
	Get(ctx context.Context, family string) (reminderdomain.Settings, error)
	Update(ctx context.Context, family string, s reminderdomain.Settings, actorID *uuid.UUID) (reminderdomain.Settings, error)
}

type reminderSettingsProvider struct {
	log           *logger.Logger
	repo          reminderrepo.SettingRepo
	defaults      map[string]reminderdomain.Settings
	allowTestMode bool
	now           func() time.Time
}

func NewReminderSettingsProvider(
	baseLog *logger.Logger,
	repo reminderrepo.SettingRepo,
	defaults map[string]reminderdomain.Settings,
	allowTestMode bool,
) ReminderSettingsProvider {
	if len(defaults) == 0 {
		defaults = BuiltinReminderDefaults()
	}
	return &reminderSettingsProvider{
		log:           baseLog.With("service", "ReminderSettingsProvider"),
		repo:          repo,
		defaults:      defaults,
		allowTestMode: allowTestMode,
		now:           func() time.Time { return time.Now().UTC() },
	}
}

// BuiltinReminderDefaults returns the defaults used when no settings file is configured.
func BuiltinReminderDefaults() map[string]reminderdomain.Settings {
	return map[string]reminderdomain.Settings{
		processing.ReminderFamilyHRD:      reminderdomain.DefaultSettings(),
		processing.ReminderFamilyDataFlow: reminderdomain.DefaultSettings(),
	}
}

type reminderDefaultsFile struct {
	Families map[string]yaml.Node `yaml:"families"`
}

// LoadReminderDefaults reads per-family defaults from a YAML file. Fields a family omits keep the
// built-in value. An empty path yields the built-in defaults.
func LoadReminderDefaults(path string) (map[string]reminderdomain.Settings, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return BuiltinReminderDefaults(), nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read reminder settings %s: %w", path, err)
	}
	return parseReminderDefaults(raw)
}

func parseReminderDefaults(raw []byte) (map[string]reminderdomain.Settings, error) {
	var doc reminderDefaultsFile
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("parse reminder settings: %w", err)
	}
	out := BuiltinReminderDefaults()
	for name, node := range doc.Families {
		family := strings.ToLower(strings.TrimSpace(name))
		if family == "" {
			continue
		}
		s := reminderdomain.DefaultSettings()
		if err := node.Decode(&s); err != nil {
			return nil, fmt.Errorf("reminder settings for %s: %w", family, err)
		}
		if problems := schedule.Validate(s); len(problems) > 0 {
			return nil, fmt.Errorf("reminder settings for %s: %s", family, strings.Join(problems, "; "))
		}
		out[family] = schedule.Normalize(s)
	}
	return out, nil
}

func (p *reminderSettingsProvider) Families() []string {
	out := make([]string, 0, len(p.defaults))
	for f := range p.defaults {
		out = append(out, f)
	}
	sort.Strings(out)
	return out
}

func (p *reminderSettingsProvider) Get(ctx context.Context, family string) (reminderdomain.Settings, error) {
	const op = "reminders.settings.get"
	family = strings.ToLower(strings.TrimSpace(family))
	def, ok := p.defaults[family]
	if !ok {
		return reminderdomain.Settings{}, domainagg.NotFound(op, "reminder family "+family)
	}
	out := def

	row, err := p.repo.Get(dbctx.Context{Ctx: ctx}, family)
	if err != nil {
		return reminderdomain.Settings{}, dataagg.MapError(op, err)
	}
	if row != nil && len(row.Value) > 0 {
		stored := def
		stored.DailyTimes = append([]string(nil), def.DailyTimes...)
		if err := json.Unmarshal(row.Value, &stored); err != nil {
			p.log.Warn("Stored reminder settings unreadable; using defaults", "family", family, "error", err)
		} else if problems := schedule.Validate(stored); len(problems) > 0 {
			p.log.Warn("Stored reminder settings invalid; using defaults", "family", family, "problems", problems)
		} else {
			out = stored
		}
	}

	out = schedule.Normalize(out)
	if out.TestMode.Enabled && !p.allowTestMode {
		p.log.Warn("Reminder test mode ignored in this environment", "family", family)
		out.TestMode.Enabled = false
	}
	return out, nil
}

func (p *reminderSettingsProvider) Update(ctx context.Context, family string, s reminderdomain.Settings, actorID *uuid.UUID) (reminderdomain.Settings, error) {
	const op = "reminders.settings.update"
	family = strings.ToLower(strings.TrimSpace(family))
	if _, ok := p.defaults[family]; !ok {
		return reminderdomain.Settings{}, domainagg.NotFound(op, "reminder family "+family)
	}
	if problems := schedule.Validate(s); len(problems) > 0 {
		return reminderdomain.Settings{}, domainagg.Validation(op, "invalid reminder settings: "+strings.Join(problems, "; "), problems...)
	}
	if s.TestMode.Enabled && !p.allowTestMode {
		return reminderdomain.Settings{}, domainagg.Validation(op, "test mode is not allowed in this environment", "testMode.enabled")
	}
	s = schedule.Normalize(s)

	b, err := json.Marshal(s)
	if err != nil {
		return reminderdomain.Settings{}, domainagg.Wrap(domainagg.CodeInternal, op, err)
	}
	row := &types.ReminderSetting{
		Family:    family,
		Value:     datatypes.JSON(b),
		UpdatedBy: actorID,
		UpdatedAt: p.now(),
	}
	if err := p.repo.Upsert(dbctx.Context{Ctx: ctx}, row); err != nil {
		return reminderdomain.Settings{}, dataagg.MapError(op, err)
	}
	p.log.Info("Reminder settings updated", "family", family)
	return s, nil
}
