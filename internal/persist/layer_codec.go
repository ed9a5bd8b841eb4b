package persist

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"math"

	"golang.org/x/crypto/blake2b"

	"github.com/worldforge/server/internal/core/grid"
	"github.com/worldforge/server/internal/world"
)

// ErrChecksum is returned when a stored layer does not match its checksum.
var ErrChecksum = errors.New("layer checksum mismatch")

// LayerKind is the cell encoding of a stored layer.
type LayerKind int16

const (
	KindFloat32 LayerKind = 1
	KindUint16  LayerKind = 2
	KindUint8   LayerKind = 3
	KindBool    LayerKind = 4
)

// LayerBlob is one encoded layer as stored in world_layers.
type LayerBlob struct {
	Name       string
	Kind       LayerKind
	Data       []byte
	Checksum   []byte
	Thresholds []world.Threshold
}

// Checksum returns the BLAKE2b-256 digest of data.
func Checksum(data []byte) []byte {
	sum := blake2b.Sum256(data)
	return sum[:]
}

// Verify checks the blob's checksum.
func (b LayerBlob) Verify() error {
	if !bytes.Equal(Checksum(b.Data), b.Checksum) {
		return fmt.Errorf("layer %s: %w", b.Name, ErrChecksum)
	}
	return nil
}

// EncodeWorld encodes every present layer of w.
func EncodeWorld(w *world.World) ([]LayerBlob, error) {
	var out []LayerBlob
	for _, name := range w.Layers() {
		b, err := EncodeLayer(w, name)
		if err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, nil
}

// EncodeLayer encodes one present layer of w.
func EncodeLayer(w *world.World, name string) (LayerBlob, error) {
	b := LayerBlob{Name: name}
	switch {
	case name == world.LayerElevation && w.HasElevation():
		b.Kind, b.Data, b.Thresholds = KindFloat32, encodeFloat(w.Elevation()), w.ElevationThresholds()
	case name == world.LayerPlates && w.HasPlates():
		b.Kind, b.Data = KindUint16, encodeUint16(w.Plates())
	case name == world.LayerOcean && w.HasOcean():
		b.Kind, b.Data = KindBool, encodeBool(w.Ocean())
	case name == world.LayerSeaDepth && w.HasSeaDepth():
		b.Kind, b.Data = KindFloat32, encodeFloat(w.SeaDepth())
	case name == world.LayerPrecipitation && w.HasPrecipitation():
		b.Kind, b.Data, b.Thresholds = KindFloat32, encodeFloat(w.Precipitation()), w.PrecipitationThresholds()
	case name == world.LayerRivers && w.Rivers() != nil:
		b.Kind, b.Data = KindFloat32, encodeFloat(w.Rivers())
	case name == world.LayerLakes && w.Lakes() != nil:
		b.Kind, b.Data = KindFloat32, encodeFloat(w.Lakes())
	case name == world.LayerWatermap && w.HasWatermap():
		b.Kind, b.Data, b.Thresholds = KindFloat32, encodeFloat(w.Watermap()), w.WatermapThresholds()
	case name == world.LayerIrrigation && w.HasIrrigation():
		b.Kind, b.Data = KindFloat32, encodeFloat(w.Irrigation())
	case name == world.LayerPermeability && w.HasPermeability():
		b.Kind, b.Data, b.Thresholds = KindFloat32, encodeFloat(w.Permeability()), w.PermeabilityThresholds()
	case name == world.LayerTemperature && w.HasTemperature():
		b.Kind, b.Data, b.Thresholds = KindFloat32, encodeFloat(w.Temperature()), w.TemperatureThresholds()
	case name == world.LayerHumidity && w.HasHumidity():
		b.Kind, b.Data, b.Thresholds = KindFloat32, encodeFloat(w.Humidity()), w.HumidityThresholds()
	case name == world.LayerIcecap && w.HasIcecap():
		b.Kind, b.Data = KindFloat32, encodeFloat(w.Icecap())
	case name == world.LayerBiome && w.HasBiome():
		g, _ := w.Biome()
		b.Kind, b.Data = KindUint8, append([]byte(nil), g.Cells()...)
	default:
		return LayerBlob{}, fmt.Errorf("world %s has no layer %q", w.Name, name)
	}
	b.Checksum = Checksum(b.Data)
	return b, nil
}

// DecodeLayer verifies b and assigns it to w.
func DecodeLayer(w *world.World, b LayerBlob, biomeNames []string) error {
	if err := b.Verify(); err != nil {
		return err
	}
	wd, ht := w.Width(), w.Height()
	want := map[string]LayerKind{
		world.LayerElevation:     KindFloat32,
		world.LayerPlates:        KindUint16,
		world.LayerOcean:         KindBool,
		world.LayerSeaDepth:      KindFloat32,
		world.LayerPrecipitation: KindFloat32,
		world.LayerRivers:        KindFloat32,
		world.LayerLakes:         KindFloat32,
		world.LayerWatermap:      KindFloat32,
		world.LayerIrrigation:    KindFloat32,
		world.LayerTemperature:   KindFloat32,
		world.LayerHumidity:      KindFloat32,
		world.LayerPermeability:  KindFloat32,
		world.LayerIcecap:        KindFloat32,
		world.LayerBiome:         KindUint8,
	}[b.Name]
	if want == 0 {
		return fmt.Errorf("decode: unknown layer %q", b.Name)
	}
	if want != b.Kind {
		return fmt.Errorf("decode %s: kind %d, want %d", b.Name, b.Kind, want)
	}

	switch b.Kind {
	case KindFloat32:
		g, err := decodeFloat(wd, ht, b.Data)
		if err != nil {
			return fmt.Errorf("decode %s: %w", b.Name, err)
		}
		switch b.Name {
		case world.LayerElevation:
			return w.SetElevation(g, b.Thresholds)
		case world.LayerSeaDepth:
			return w.SetSeaDepth(g)
		case world.LayerPrecipitation:
			return w.SetPrecipitation(g, b.Thresholds)
		case world.LayerRivers:
			return w.SetRivers(g)
		case world.LayerLakes:
			return w.SetLakes(g)
		case world.LayerWatermap:
			return w.SetWatermap(g, b.Thresholds)
		case world.LayerIrrigation:
			return w.SetIrrigation(g)
		case world.LayerTemperature:
			return w.SetTemperature(g, b.Thresholds)
		case world.LayerHumidity:
			return w.SetHumidity(g, b.Thresholds)
		case world.LayerPermeability:
			return w.SetPermeability(g, b.Thresholds)
		default:
			return w.SetIcecap(g)
		}
	case KindUint16:
		g, err := decodeUint16(wd, ht, b.Data)
		if err != nil {
			return fmt.Errorf("decode %s: %w", b.Name, err)
		}
		return w.SetPlates(g)
	case KindBool:
		g, err := decodeBool(wd, ht, b.Data)
		if err != nil {
			return fmt.Errorf("decode %s: %w", b.Name, err)
		}
		return w.SetOcean(g)
	default:
		g, err := grid.FromSlice(wd, ht, b.Data)
		if err != nil {
			return fmt.Errorf("decode %s: %w", b.Name, err)
		}
		return w.SetBiome(g, biomeNames)
	}
}

// EncodeRows encodes rows [from, to) of a layer, for clients fetching a
// layer in slices.
func EncodeRows(w *world.World, layer string, from, to int) (LayerKind, []byte, error) {
	if from < 0 || to > w.Height() || from >= to {
		return 0, nil, fmt.Errorf("rows [%d, %d) outside 0..%d", from, to, w.Height())
	}
	b, err := EncodeLayer(w, layer)
	if err != nil {
		return 0, nil, err
	}
	row := w.Width() * cellSize(b.Kind)
	return b.Kind, b.Data[from*row : to*row], nil
}

func cellSize(k LayerKind) int {
	switch k {
	case KindFloat32:
		return 4
	case KindUint16:
		return 2
	default:
		return 1
	}
}

func encodeFloat(g *grid.Float) []byte {
	out := make([]byte, 4*g.Len())
	for i, v := range g.Cells() {
		binary.LittleEndian.PutUint32(out[4*i:], math.Float32bits(v))
	}
	return out
}

func decodeFloat(w, h int, data []byte) (*grid.Float, error) {
	if len(data) != 4*w*h {
		return nil, fmt.Errorf("%d bytes for %dx%d float32 cells", len(data), w, h)
	}
	g := grid.New[float32](w, h)
	cells := g.Cells()
	for i := range cells {
		cells[i] = math.Float32frombits(binary.LittleEndian.Uint32(data[4*i:]))
	}
	return g, nil
}

func encodeUint16(g *grid.Grid[uint16]) []byte {
	out := make([]byte, 2*g.Len())
	for i, v := range g.Cells() {
		binary.LittleEndian.PutUint16(out[2*i:], v)
	}
	return out
}

func decodeUint16(w, h int, data []byte) (*grid.Grid[uint16], error) {
	if len(data) != 2*w*h {
		return nil, fmt.Errorf("%d bytes for %dx%d uint16 cells", len(data), w, h)
	}
	g := grid.New[uint16](w, h)
	cells := g.Cells()
	for i := range cells {
		cells[i] = binary.LittleEndian.Uint16(data[2*i:])
	}
	return g, nil
}

func encodeBool(g *grid.Grid[bool]) []byte {
	out := make([]byte, g.Len())
	for i, v := range g.Cells() {
		if v {
			out[i] = 1
		}
	}
	return out
}

func decodeBool(w, h int, data []byte) (*grid.Grid[bool], error) {
	if len(data) != w*h {
		return nil, fmt.Errorf("%d bytes for %dx%d bool cells", len(data), w, h)
	}
	g := grid.New[bool](w, h)
	cells := g.Cells()
	for i, b := range data {
		cells[i] = b != 0
	}
	return g, nil
}
