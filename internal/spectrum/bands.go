package spectrum

import "fmt"

var bandNames = []string{
	"Sub Bass (20-60Hz)",
	"Bass (60-250Hz)",
	"Low Mid (250-500Hz)",
	"Mid (500-2kHz)",
	"High Mid (2-4kHz)",
	"Presence (4-6kHz)",
	"Brilliance (6-20kHz)",
}

// Labels returns a display name for each of n bins.
func Labels(n int) []string {
	labels := make([]string, n)
	for i := range labels {
		if i < len(bandNames) {
			labels[i] = bandNames[i]
		} else {
			labels[i] = fmt.Sprintf("Bin %d", i)
		}
	}
	return labels
}

// Features are instrument-range and energy aggregates derived from a vector.
type Features struct {
	KickDrum       float64 `json:"kick_drum"`
	SnareDrum      float64 `json:"snare_drum"`
	HiHat          float64 `json:"hi_hat"`
	BassLine       float64 `json:"bass_line"`
	VocalRange     float64 `json:"vocal_range"`
	OverallEnergy  float64 `json:"overall_energy"`
	OverallAverage float64 `json:"overall_average"`
	SubBass        float64 `json:"sub_bass"`
	Bass           float64 `json:"bass"`
	Mids           float64 `json:"mids"`
	Highs          float64 `json:"highs"`
}

// Extract computes Features from v. Bins the vector does not have count as zero.
func Extract(v Vector) Features {
	at := func(i int) float64 {
		if i < len(v) {
			return v[i]
		}
		return 0
	}

	var total float64
	for _, x := range v {
		total += x
	}

	f := Features{
		KickDrum:      at(0) + at(1),
		SnareDrum:     at(4) + at(5) + at(6),
		HiHat:         at(6) + at(7),
		BassLine:      at(1) + at(2),
		VocalRange:    at(3) + at(4),
		OverallEnergy: total,
		SubBass:       at(0),
		Bass:          (at(1) + at(2)) / 2,
		Mids:          (at(3) + at(4) + at(5)) / 3,
	}
	if len(v) > 0 {
		f.OverallAverage = total / float64(len(v))
	}

	if len(v) > 6 {
		var highs float64
		for _, x := range v[6:] {
			highs += x
		}
		f.Highs = highs / float64(len(v)-6)
	}

	return f
}
