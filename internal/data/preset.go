package data

import (
	"fmt"
	"os"
	"sort"

	"gopkg.in/yaml.v3"

	"github.com/worldforge/server/internal/generation"
	"github.com/worldforge/server/internal/world"
)

// Preset is a named set of generation parameters. Zero fields keep the
// simulator defaults.
type Preset struct {
	Name           string  `yaml:"name"`
	Description    string  `yaml:"description"`
	Width          int     `yaml:"width"`
	Height         int     `yaml:"height"`
	Plates         int     `yaml:"plates"`
	SeaLevel       float32 `yaml:"sea_level"`
	ErosionPeriod  int     `yaml:"erosion_period"`
	FoldingRatio   float32 `yaml:"folding_ratio"`
	AggrOverlapAbs int     `yaml:"aggr_overlap_abs"`
	AggrOverlapRel float32 `yaml:"aggr_overlap_rel"`
	CycleCount     int     `yaml:"cycle_count"`
	OceanLevel     float32 `yaml:"ocean_level"`
	Step           string  `yaml:"step"`
}

// Request builds a generation request for seed from the preset.
func (p *Preset) Request(seed int64, name string) generation.Request {
	r := generation.DefaultRequest(seed, p.Width, p.Height)
	r.Name = name
	if p.Plates > 0 {
		r.NumPlates = p.Plates
	}
	if p.SeaLevel > 0 {
		r.SeaLevel = p.SeaLevel
	}
	if p.ErosionPeriod > 0 {
		r.ErosionPeriod = p.ErosionPeriod
	}
	if p.FoldingRatio > 0 {
		r.FoldingRatio = p.FoldingRatio
	}
	if p.AggrOverlapAbs > 0 {
		r.AggrOverlapAbs = p.AggrOverlapAbs
	}
	if p.AggrOverlapRel > 0 {
		r.AggrOverlapRel = p.AggrOverlapRel
	}
	if p.CycleCount > 0 {
		r.CycleCount = p.CycleCount
	}
	if p.OceanLevel > 0 {
		r.OceanLevel = p.OceanLevel
	}
	return r
}

// TargetStep resolves the preset's step, defaulting to "plates".
func (p *Preset) TargetStep() (world.Step, error) {
	if p.Step == "" {
		return world.StepPlates, nil
	}
	return world.StepByName(p.Step)
}

// PresetTable holds the generation presets by name.
type PresetTable struct {
	presets map[string]*Preset
}

type presetFile struct {
	Presets []Preset `yaml:"presets"`
}

// LoadPresetTable loads presets.yaml.
func LoadPresetTable(path string) (*PresetTable, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read presets: %w", err)
	}
	return parsePresets(raw)
}

func parsePresets(raw []byte) (*PresetTable, error) {
	var f presetFile
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return nil, fmt.Errorf("parse presets: %w", err)
	}
	t := &PresetTable{presets: make(map[string]*Preset, len(f.Presets))}
	for i := range f.Presets {
		p := &f.Presets[i]
		if p.Name == "" {
			return nil, fmt.Errorf("preset #%d has no name", i)
		}
		if _, dup := t.presets[p.Name]; dup {
			return nil, fmt.Errorf("duplicate preset %q", p.Name)
		}
		if err := p.Request(0, "").Validate(); err != nil {
			return nil, fmt.Errorf("preset %q: %w", p.Name, err)
		}
		if _, err := p.TargetStep(); err != nil {
			return nil, fmt.Errorf("preset %q: %w", p.Name, err)
		}
		t.presets[p.Name] = p
	}
	return t, nil
}

// Get returns a preset by name, or nil if not found.
func (t *PresetTable) Get(name string) *Preset {
	return t.presets[name]
}

// Lookup is Get with a "did you mean" error for unknown names.
func (t *PresetTable) Lookup(name string) (*Preset, error) {
	if p := t.presets[name]; p != nil {
		return p, nil
	}
	if s := Suggest(name, t.Names()); s != "" {
		return nil, fmt.Errorf("unknown preset %q, did you mean %q?", name, s)
	}
	return nil, fmt.Errorf("unknown preset %q", name)
}

// Names returns the preset names sorted.
func (t *PresetTable) Names() []string {
	out := make([]string, 0, len(t.presets))
	for n := range t.presets {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}

// Count returns the number of presets loaded.
func (t *PresetTable) Count() int {
	return len(t.presets)
}
