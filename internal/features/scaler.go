package features

// MinMaxScaler rescales each column to [0, 1] using bounds observed during
// Fit. The bounds are fixed after fitting: transforming later data reuses
// them verbatim, so evaluation values may fall outside [0, 1]. A column
// whose min equals its max scales to 0.
type MinMaxScaler struct {
	Min    []float64 `json:"min"`
	Max    []float64 `json:"max"`
	fitted bool
}

// NewMinMaxScaler returns an unfitted scaler.
func NewMinMaxScaler() *MinMaxScaler {
	return &MinMaxScaler{}
}

// Fit computes per-column bounds from the given rows.
func (s *MinMaxScaler) Fit(rows [][]float64) error {
	if len(rows) == 0 {
		return ErrInsufficientHistory
	}
	width := len(rows[0])
	s.Min = make([]float64, width)
	s.Max = make([]float64, width)
	copy(s.Min, rows[0])
	copy(s.Max, rows[0])
	for _, row := range rows[1:] {
		for j, v := range row {
			if v < s.Min[j] {
				s.Min[j] = v
			}
			if v > s.Max[j] {
				s.Max[j] = v
			}
		}
	}
	s.fitted = true
	return nil
}

// Fitted reports whether bounds have been computed.
func (s *MinMaxScaler) Fitted() bool {
	return s.fitted && len(s.Min) > 0
}

// Transform scales one row with the fitted bounds.
func (s *MinMaxScaler) Transform(row []float64) []float64 {
	out := make([]float64, len(row))
	for j, v := range row {
		span := s.Max[j] - s.Min[j]
		if span > 0 {
			out[j] = (v - s.Min[j]) / span
		}
	}
	return out
}
