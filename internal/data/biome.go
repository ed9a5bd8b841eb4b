package data

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// BiomeBand is one temperature row of the biome table.
type BiomeBand struct {
	Temperature string            `yaml:"temperature"`
	Default     string            `yaml:"default"`
	Humidity    map[string]string `yaml:"humidity"`
}

type biomeFile struct {
	Ocean           string      `yaml:"ocean"`
	Sea             string      `yaml:"sea"`
	ShallowSeaDepth float32     `yaml:"shallow_sea_depth"`
	Bands           []BiomeBand `yaml:"bands"`
}

// BiomeTable classifies land cells by temperature band and humidity band.
// Every name has a stable index, starting with the ocean and sea names.
type BiomeTable struct {
	ocean   string
	sea     string
	shallow float32
	bands   map[string]*BiomeBand
	first   *BiomeBand
	names   []string
	index   map[string]uint8
}

// LoadBiomeTable loads biomes.yaml.
func LoadBiomeTable(path string) (*BiomeTable, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read biomes: %w", err)
	}
	return parseBiomes(raw)
}

func parseBiomes(raw []byte) (*BiomeTable, error) {
	var f biomeFile
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return nil, fmt.Errorf("parse biomes: %w", err)
	}
	if f.Ocean == "" || f.Sea == "" {
		return nil, fmt.Errorf("parse biomes: ocean and sea names are required")
	}
	t := &BiomeTable{
		ocean:   f.Ocean,
		sea:     f.Sea,
		shallow: f.ShallowSeaDepth,
		bands:   make(map[string]*BiomeBand, len(f.Bands)),
		index:   make(map[string]uint8),
	}
	t.intern(f.Ocean)
	t.intern(f.Sea)
	for i := range f.Bands {
		b := &f.Bands[i]
		if b.Temperature == "" || b.Default == "" {
			return nil, fmt.Errorf("biome band #%d needs temperature and default", i)
		}
		if _, dup := t.bands[b.Temperature]; dup {
			return nil, fmt.Errorf("duplicate biome band %q", b.Temperature)
		}
		t.bands[b.Temperature] = b
		if t.first == nil {
			t.first = b
		}
		t.intern(b.Default)
		// yaml maps have no order; intern in humidity band order for stable indices
		for _, h := range HumidityBands {
			if n, ok := b.Humidity[h]; ok {
				t.intern(n)
			}
		}
		for h := range b.Humidity {
			if !isHumidityBand(h) {
				return nil, fmt.Errorf("biome band %q: unknown humidity band %q", b.Temperature, h)
			}
		}
	}
	if len(t.names) > 255 {
		return nil, fmt.Errorf("parse biomes: %d names do not fit a byte", len(t.names))
	}
	return t, nil
}

func (t *BiomeTable) intern(name string) {
	if _, ok := t.index[name]; ok {
		return
	}
	t.index[name] = uint8(len(t.names))
	t.names = append(t.names, name)
}

// HumidityBands lists the humidity bands from driest to wettest.
var HumidityBands = []string{
	"superarid", "perarid", "arid", "semiarid", "subhumid", "humid", "perhumid", "superhumid",
}

// TemperatureBands lists the temperature bands from coldest to hottest.
var TemperatureBands = []string{
	"polar", "alpine", "boreal", "cool", "warm", "subtropical", "tropical",
}

func isHumidityBand(name string) bool {
	for _, h := range HumidityBands {
		if h == name {
			return true
		}
	}
	return false
}

// Land returns the biome for a land cell. Unknown temperature bands are
// classified like the first band.
func (t *BiomeTable) Land(temperature, humidity string) uint8 {
	b := t.bands[temperature]
	if b == nil {
		b = t.first
	}
	if b == nil {
		return t.index[t.ocean]
	}
	if n, ok := b.Humidity[humidity]; ok {
		return t.index[n]
	}
	return t.index[b.Default]
}

// Water returns the biome for an ocean cell of the given normalised depth.
func (t *BiomeTable) Water(depth float32) uint8 {
	if depth < t.shallow {
		return t.index[t.sea]
	}
	return t.index[t.ocean]
}

// Names returns every biome name by index.
func (t *BiomeTable) Names() []string {
	return append([]string(nil), t.names...)
}

// Index returns the index of a biome name.
func (t *BiomeTable) Index(name string) (uint8, bool) {
	i, ok := t.index[name]
	return i, ok
}

// Count returns the number of distinct biomes.
func (t *BiomeTable) Count() int {
	return len(t.names)
}
