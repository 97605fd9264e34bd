package domain

import "gorgonia.org/tensor"

// MeanConfidence reduces a photometric observation's per-cell confidence
// grid to a single scalar via a gorgonia dense tensor (the only tensor
// use in this package). Callers use it to flag frames whose classification
// leaned heavily on marginal per-cell confidence before they ever reach
// the move decoder.
func (o PhotometricObs) MeanConfidence() float64 {
	data := make([]float64, 0, 64)
	for r := 0; r < 8; r++ {
		for c := 0; c < 8; c++ {
			data = append(data, o.Confidence[r][c])
		}
	}
	t := tensor.New(tensor.WithShape(8, 8), tensor.WithBacking(data))

	sum := 0.0
	for _, v := range t.Data().([]float64) {
		sum += v
	}
	return sum / float64(t.Size())
}
