package services

import (
	"context"
	"fmt"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
	"gorm.io/gorm"

	dataagg "github.com/yungbote/processing-backend/internal/data/aggregates"
	processingrepo "github.com/yungbote/processing-backend/internal/data/repos/processing"
	types "github.com/yungbote/processing-backend/internal/domain"
	reminderdomain "github.com/yungbote/processing-backend/internal/domain/reminders"
	"github.com/yungbote/processing-backend/internal/platform/dbctx"
	"github.com/yungbote/processing-backend/internal/platform/logger"
)

// CatalogFile is the YAML layout read by the seed command.
type CatalogFile struct {
	Steps []struct {
		Key   string `yaml:"key"`
		Label string `yaml:"label"`
		Order int    `yaml:"order"`
	} `yaml:"steps"`
	// Countries maps a country code to its ordered step keys.
	Countries    map[string][]string `yaml:"countries"`
	Requirements []struct {
		Step      string `yaml:"step"`
		Country   string `yaml:"country"`
		DocType   string `yaml:"docType"`
		Label     string `yaml:"label"`
		Mandatory bool   `yaml:"mandatory"`
	} `yaml:"requirements"`
	Reminders map[string]reminderdomain.Settings `yaml:"reminders"`
}

type SeedResult struct {
	Templates    int `json:"templates"`
	CountrySteps int `json:"country_steps"`
	Requirements int `json:"requirements"`
	Reminders    int `json:"reminders"`
}

func LoadCatalogFile(path string) (*CatalogFile, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read catalog %s: %w", path, err)
	}
	return ParseCatalog(raw)
}

func ParseCatalog(raw []byte) (*CatalogFile, error) {
	var f CatalogFile
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return nil, fmt.Errorf("parse catalog: %w", err)
	}
	seen := map[string]bool{}
	for i, s := range f.Steps {
		key := strings.ToLower(strings.TrimSpace(s.Key))
		if key == "" {
			return nil, fmt.Errorf("steps[%d]: key is required", i)
		}
		if seen[key] {
			return nil, fmt.Errorf("steps[%d]: duplicate key %q", i, key)
		}
		seen[key] = true
	}
	return &f, nil
}

type CatalogSeeder struct {
	db           *gorm.DB
	log          *logger.Logger
	templates    processingrepo.TemplateRepo
	requirements processingrepo.RequirementRepo
	settings     ReminderSettingsProvider
}

func NewCatalogSeeder(db *gorm.DB, baseLog *logger.Logger, templates processingrepo.TemplateRepo, requirements processingrepo.RequirementRepo, settings ReminderSettingsProvider) *CatalogSeeder {
	return &CatalogSeeder{
		db:           db,
		log:          baseLog.With("service", "CatalogSeeder"),
		templates:    templates,
		requirements: requirements,
		settings:     settings,
	}
}

// Apply upserts the catalog in one transaction, then stores reminder settings. Re-running a file
// is idempotent.
func (s *CatalogSeeder) Apply(ctx context.Context, f *CatalogFile) (SeedResult, error) {
	const op = "catalog.seed"
	var res SeedResult
	if f == nil {
		return res, nil
	}
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		dbc := dbctx.Context{Ctx: ctx, Tx: tx}
		ids := map[string]*types.ProcessingStepTemplate{}
		for _, st := range f.Steps {
			label := strings.TrimSpace(st.Label)
			if label == "" {
				label = st.Key
			}
			if err := s.templates.UpsertTemplate(dbc, &types.ProcessingStepTemplate{Key: st.Key, Label: label, DefaultOrder: st.Order}); err != nil {
				return err
			}
			// Re-read: on conflict the stored row keeps its original id.
			tpl, err := s.templates.GetByKey(dbc, st.Key)
			if err != nil {
				return err
			}
			if tpl == nil {
				return fmt.Errorf("template %q missing after upsert", st.Key)
			}
			ids[tpl.Key] = tpl
			res.Templates++
		}
		lookup := func(key string) (*types.ProcessingStepTemplate, error) {
			key = strings.ToLower(strings.TrimSpace(key))
			if tpl, ok := ids[key]; ok {
				return tpl, nil
			}
			tpl, err := s.templates.GetByKey(dbc, key)
			if err != nil {
				return nil, err
			}
			if tpl == nil {
				return nil, fmt.Errorf("unknown step %q", key)
			}
			ids[key] = tpl
			return tpl, nil
		}

		countries := make([]string, 0, len(f.Countries))
		for c := range f.Countries {
			countries = append(countries, c)
		}
		sort.Strings(countries)
		for _, country := range countries {
			for i, key := range f.Countries[country] {
				tpl, err := lookup(key)
				if err != nil {
					return fmt.Errorf("country %s: %w", country, err)
				}
				if err := s.templates.UpsertCountryStep(dbc, &types.ProcessingCountryStep{CountryCode: country, TemplateID: tpl.ID, Position: i + 1}); err != nil {
					return err
				}
				res.CountrySteps++
			}
		}

		for _, r := range f.Requirements {
			tpl, err := lookup(r.Step)
			if err != nil {
				return fmt.Errorf("requirement %s: %w", r.DocType, err)
			}
			docType := strings.TrimSpace(r.DocType)
			if docType == "" {
				return fmt.Errorf("requirement for step %s: docType is required", r.Step)
			}
			label := strings.TrimSpace(r.Label)
			if label == "" {
				label = docType
			}
			row := &types.CountryDocumentRequirement{TemplateID: tpl.ID, CountryCode: r.Country, DocType: docType, Label: label, Mandatory: r.Mandatory}
			if err := s.requirements.Upsert(dbc, row); err != nil {
				return err
			}
			res.Requirements++
		}
		return nil
	})
	if err != nil {
		return SeedResult{}, dataagg.MapError(op, err)
	}

	families := make([]string, 0, len(f.Reminders))
	for fam := range f.Reminders {
		families = append(families, fam)
	}
	sort.Strings(families)
	for _, fam := range families {
		if _, err := s.settings.Update(ctx, fam, f.Reminders[fam], nil); err != nil {
			return res, err
		}
		res.Reminders++
	}
	s.log.Info("Catalog seeded", "templates", res.Templates, "country_steps", res.CountrySteps, "requirements", res.Requirements, "reminder_families", res.Reminders)
	return res, nil
}
