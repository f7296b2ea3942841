// Package legacy holds the static table mapping coarse account-level role
// tags to implied permission names. The table is configuration data owned
// outside the authorization core; this package only loads and queries it.
package legacy

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/go-playground/validator/v10"
)

// Wildcard in a rule's permission list implies every active permission in
// the catalog at resolution time.
const Wildcard = "*"

// Rule maps one legacy tag to its implied permission names.
type Rule struct {
	Tag         string   `json:"tag" validate:"required,min=1"`
	Permissions []string `json:"permissions" validate:"required,min=1,dive,min=1"`
}

type mappingFile struct {
	Version int    `json:"version" validate:"required,min=1"`
	Rules   []Rule `json:"rules" validate:"required,dive"`
}

// Mapping is the loaded, validated legacy role table.
type Mapping struct {
	version int
	rules   map[string][]string
}

// Load reads and validates a mapping file. The file is typed and
// schema-checked up front rather than consumed as loose JSON at runtime.
func Load(path string) (*Mapping, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("legacy: read mapping: %w", err)
	}
	var file mappingFile
	if err := json.Unmarshal(raw, &file); err != nil {
		return nil, fmt.Errorf("legacy: parse mapping: %w", err)
	}
	if err := validator.New().Struct(file); err != nil {
		return nil, fmt.Errorf("legacy: invalid mapping: %w", err)
	}

	rules := make(map[string][]string, len(file.Rules))
	for _, rule := range file.Rules {
		if _, ok := rules[rule.Tag]; ok {
			return nil, fmt.Errorf("legacy: duplicate tag %q in mapping", rule.Tag)
		}
		rules[rule.Tag] = append([]string(nil), rule.Permissions...)
	}
	return &Mapping{version: file.Version, rules: rules}, nil
}

// BuiltIn returns the compiled-in mapping used when no file is configured.
// It mirrors the coarse roles the platform shipped with before profile-level
// grants existed.
func BuiltIn() *Mapping {
	return &Mapping{
		version: 1,
		rules: map[string][]string{
			"administrator": {
				"view_dashboard",
				"manage_menu",
				"manage_orders",
				"view_reports",
			},
			"super_administrator": {Wildcard},
			"kitchen_lead": {
				"view_dashboard",
				"manage_kitchen",
			},
		},
	}
}

// Version reports the table version for audit output.
func (m *Mapping) Version() int {
	if m == nil {
		return 0
	}
	return m.version
}

// Implied returns the permission names implied by the given account tags.
// Unknown tags contribute nothing; duplicates are collapsed. A Wildcard
// entry is passed through for the resolver to expand against the active
// catalog.
func (m *Mapping) Implied(tags []string) []string {
	if m == nil || len(tags) == 0 {
		return nil
	}
	seen := make(map[string]struct{})
	var names []string
	for _, tag := range tags {
		for _, name := range m.rules[tag] {
			if _, ok := seen[name]; ok {
				continue
			}
			seen[name] = struct{}{}
			names = append(names, name)
		}
	}
	return names
}
