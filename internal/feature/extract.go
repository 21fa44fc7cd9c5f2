package feature

import (
	"github.com/pkg/errors"
	"gorgonia.org/tensor"

	"github.com/FlavioCFOliveira/GoNeuronHD/internal/spatial"
)

// Extract gathers one row per instance of inst from the encoder output feat.
// The row holds the first featNum channels at the instance's median pixel
// followed by its occupancy. Classes below labelNC always have an entry,
// possibly empty.
func Extract(feat, inst *tensor.Dense, featNum, labelNC int) (Stats, error) {
	if err := checkSpatial(feat, inst); err != nil {
		return nil, err
	}
	if _, c, _, _ := spatial.Dims(feat); c < featNum {
		return nil, errors.Errorf("feature: encoder output has %d channels, need %d", c, featNum)
	}
	_, _, h, w := spatial.Dims(inst)
	norm := h * w / blockNum
	if norm == 0 {
		return nil, errors.Errorf("feature: %dx%d map is smaller than %d pixels", h, w, blockNum)
	}

	regions, err := spatial.LabelRegions(inst)
	if err != nil {
		return nil, err
	}

	stats := make(Stats, labelNC)
	for class := 0; class < labelNC; class++ {
		stats[spatial.ClassID(class)] = []Vector{}
	}
	for _, id := range regions.Keys() {
		pos, _ := regions.Median(id)
		v := vectorAt(feat, pos)
		row := make(Vector, featNum+1)
		copy(row, v[:featNum])
		row[featNum] = float64(regions.Count(id)) / float64(norm)

		class := id.Class()
		stats[class] = append(stats[class], row)
	}
	return stats, nil
}

// ExtractFirst returns, for every raw value of inst, the feature vector at
// its first pixel.
func ExtractFirst(feat, inst *tensor.Dense) (map[spatial.Label]Vector, error) {
	if err := checkSpatial(feat, inst); err != nil {
		return nil, err
	}
	regions, err := spatial.LabelRegions(inst)
	if err != nil {
		return nil, err
	}
	out := make(map[spatial.Label]Vector, len(regions.Keys()))
	for _, id := range regions.Keys() {
		pos, _ := regions.First(id)
		out[id] = vectorAt(feat, pos)
	}
	return out, nil
}
