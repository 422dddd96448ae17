package policy

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog/log"
	"gopkg.in/yaml.v3"
)

// Loader reads policy documents (JSON or YAML) from a directory, one file
// per project, the filename stem taken as the project_id. It is intended
// for seeding a PolicyStore at startup or from an operator tool, not for
// the Decide hot path.
type Loader struct {
	policyDir string
}

// NewLoader creates a new policy loader rooted at policyDir.
func NewLoader(policyDir string) *Loader {
	return &Loader{policyDir: policyDir}
}

// LoadAll reads every .json/.yaml/.yml file in the policy directory and
// parses each into a Policy, returning a map keyed by project_id.
func (l *Loader) LoadAll() (map[string]*Policy, error) {
	entries, err := os.ReadDir(l.policyDir)
	if err != nil {
		return nil, fmt.Errorf("read policy dir: %w", err)
	}

	policies := make(map[string]*Policy, len(entries))
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		ext := filepath.Ext(entry.Name())
		if ext != ".json" && ext != ".yaml" && ext != ".yml" {
			continue
		}

		path := filepath.Join(l.policyDir, entry.Name())
		projectID := strings.TrimSuffix(entry.Name(), ext)

		p, err := l.loadFile(path, ext)
		if err != nil {
			return nil, fmt.Errorf("load %s: %w", entry.Name(), err)
		}
		policies[projectID] = p

		log.Debug().Str("project_id", projectID).Str("file", entry.Name()).Msg("loaded policy")
	}

	log.Info().Int("count", len(policies)).Str("dir", l.policyDir).Msg("loaded policies from disk")
	return policies, nil
}

func (l *Loader) loadFile(path, ext string) (*Policy, error) {
	raw, err := l.readRaw(path, ext)
	if err != nil {
		return nil, err
	}
	return Load(raw)
}

func (l *Loader) readRaw(path, ext string) (*RawPolicy, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var raw RawPolicy
	if ext == ".json" {
		if err := json.Unmarshal(content, &raw); err != nil {
			return nil, fmt.Errorf("parse json: %w", err)
		}
	} else {
		if err := yaml.Unmarshal(content, &raw); err != nil {
			return nil, fmt.Errorf("parse yaml: %w", err)
		}
		raw.Rules = normalizeYAMLRules(raw.Rules)
	}

	return &raw, nil
}

// LoadAllRaw reads every .json/.yaml/.yml file in the policy directory
// without validating it into a Policy, for callers (PolicyStore seeding)
// that need the raw document itself rather than its parsed form.
func (l *Loader) LoadAllRaw() (map[string]*RawPolicy, error) {
	entries, err := os.ReadDir(l.policyDir)
	if err != nil {
		return nil, fmt.Errorf("read policy dir: %w", err)
	}

	raws := make(map[string]*RawPolicy, len(entries))
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		ext := filepath.Ext(entry.Name())
		if ext != ".json" && ext != ".yaml" && ext != ".yml" {
			continue
		}

		path := filepath.Join(l.policyDir, entry.Name())
		projectID := strings.TrimSuffix(entry.Name(), ext)

		raw, err := l.readRaw(path, ext)
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", entry.Name(), err)
		}
		raws[projectID] = raw
	}

	return raws, nil
}

// normalizeYAMLRules converts map[interface{}]interface{} / nested YAML
// scalar types that gopkg.in/yaml.v3 produces into the
// map[string]interface{} shape Load expects, matching what
// encoding/json would have produced.
func normalizeYAMLRules(rules []map[string]interface{}) []map[string]interface{} {
	out := make([]map[string]interface{}, len(rules))
	for i, r := range rules {
		out[i] = normalizeYAMLMap(r)
	}
	return out
}

func normalizeYAMLValue(v interface{}) interface{} {
	switch t := v.(type) {
	case map[string]interface{}:
		return normalizeYAMLMap(t)
	case map[interface{}]interface{}:
		m := make(map[string]interface{}, len(t))
		for k, e := range t {
			m[fmt.Sprint(k)] = normalizeYAMLValue(e)
		}
		return m
	case []interface{}:
		items := make([]interface{}, len(t))
		for i, e := range t {
			items[i] = normalizeYAMLValue(e)
		}
		return items
	case int:
		return float64(t)
	default:
		return v
	}
}

func normalizeYAMLMap(m map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(m))
	for k, v := range m {
		out[k] = normalizeYAMLValue(v)
	}
	return out
}
