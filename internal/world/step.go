package world

import "fmt"

// Step marks how far along the generation pipeline a world got.
type Step struct {
	Name                  string
	IncludePlates         bool
	IncludePrecipitations bool
	IncludeErosion        bool
	IncludeBiome          bool
}

var (
	StepPlates         = Step{Name: "plates", IncludePlates: true}
	StepPrecipitations = Step{Name: "precipitations", IncludePlates: true, IncludePrecipitations: true}
	StepFull           = Step{Name: "full", IncludePlates: true, IncludePrecipitations: true, IncludeErosion: true, IncludeBiome: true}
)

// StepByName resolves one of "plates", "precipitations" or "full".
func StepByName(name string) (Step, error) {
	switch name {
	case StepPlates.Name:
		return StepPlates, nil
	case StepPrecipitations.Name:
		return StepPrecipitations, nil
	case StepFull.Name:
		return StepFull, nil
	default:
		return Step{}, fmt.Errorf("unknown step %q", name)
	}
}

func (s Step) String() string { return s.Name }
