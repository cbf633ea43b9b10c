package georef

import (
	"sort"

	"github.com/rotisserie/eris"

	"github.com/abelzeko/riverflow/internal/entities"
)

// DirectionCheck reports what located mile markers say about a river's direction.
type DirectionCheck struct {
	HeadwatersFirst bool // Direction implied by the markers
	Agrees          bool // Whether it matches the river's stored flag
	Consistent      bool // False when some marker pairs disagree with the majority
	MarkersUsed     int
}

// VerifyDirection projects every located marker onto the river and checks
// whether increasing marker miles run away from Vertices[0].
func VerifyDirection(river *entities.River, markers []entities.MileMarker) (DirectionCheck, error) {
	located := make([]entities.MileMarker, 0, len(markers))
	for _, m := range markers {
		if m.Location != nil {
			located = append(located, m)
		}
	}
	if len(located) < 2 {
		return DirectionCheck{}, eris.Wrapf(ErrDirectionUnverifiable, "%d located markers", len(located))
	}
	sort.Slice(located, func(i, j int) bool { return located[i].Mile < located[j].Mile })

	alongs := make([]float64, len(located))
	for i, m := range located {
		p, err := ProjectOntoRiver(river, *m.Location)
		if err != nil {
			return DirectionCheck{}, err
		}
		alongs[i] = p.AlongLineMiles
	}

	var forward, backward int
	for i := 1; i < len(alongs); i++ {
		switch {
		case alongs[i] > alongs[i-1]:
			forward++
		case alongs[i] < alongs[i-1]:
			backward++
		}
	}
	if forward == backward {
		return DirectionCheck{}, eris.Wrapf(ErrDirectionUnverifiable,
			"markers split evenly (%d forward, %d backward)", forward, backward)
	}

	headwatersFirst := forward > backward
	return DirectionCheck{
		HeadwatersFirst: headwatersFirst,
		Agrees:          headwatersFirst == river.HeadwatersFirst,
		Consistent:      forward == 0 || backward == 0,
		MarkersUsed:     len(located),
	}, nil
}
