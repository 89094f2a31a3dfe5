package stats

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
)

// jsonFloat encodes non-finite values as the strings "+Inf", "-Inf" and
// "NaN", which encoding/json rejects as numbers. A simulation dividing by a
// zero draw is valid and its summary still has to print and archive.
type jsonFloat float64

func (f jsonFloat) MarshalJSON() ([]byte, error) {
	v := float64(f)
	switch {
	case math.IsNaN(v):
		return []byte(`"NaN"`), nil
	case math.IsInf(v, 1):
		return []byte(`"+Inf"`), nil
	case math.IsInf(v, -1):
		return []byte(`"-Inf"`), nil
	}
	return json.Marshal(v)
}

func (f *jsonFloat) UnmarshalJSON(data []byte) error {
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		switch s {
		case "NaN":
			*f = jsonFloat(math.NaN())
		case "+Inf", "Inf":
			*f = jsonFloat(math.Inf(1))
		case "-Inf":
			*f = jsonFloat(math.Inf(-1))
		default:
			v, err := strconv.ParseFloat(s, 64)
			if err != nil {
				return fmt.Errorf("invalid number %q", s)
			}
			*f = jsonFloat(v)
		}
		return nil
	}
	var v float64
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	*f = jsonFloat(v)
	return nil
}

type intervalJSON struct {
	Level jsonFloat `json:"level"`
	Z     jsonFloat `json:"z"`
	Lower jsonFloat `json:"lower"`
	Upper jsonFloat `json:"upper"`
}

func (ci ConfidenceInterval) MarshalJSON() ([]byte, error) {
	return json.Marshal(intervalJSON{
		Level: jsonFloat(ci.Level),
		Z:     jsonFloat(ci.Z),
		Lower: jsonFloat(ci.Lower),
		Upper: jsonFloat(ci.Upper),
	})
}

func (ci *ConfidenceInterval) UnmarshalJSON(data []byte) error {
	var w intervalJSON
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	*ci = ConfidenceInterval{
		Level: float64(w.Level),
		Z:     float64(w.Z),
		Lower: float64(w.Lower),
		Upper: float64(w.Upper),
	}
	return nil
}

type summaryJSON struct {
	Count               int                  `json:"count"`
	Mean                jsonFloat            `json:"mean"`
	Min                 jsonFloat            `json:"min"`
	Q1                  jsonFloat            `json:"q1"`
	Median              jsonFloat            `json:"median"`
	Q3                  jsonFloat            `json:"q3"`
	Max                 jsonFloat            `json:"max"`
	Variance            jsonFloat            `json:"variance"`
	StdDev              jsonFloat            `json:"stddev"`
	Skewness            jsonFloat            `json:"skewness"`
	Kurtosis            jsonFloat            `json:"kurtosis"`
	ConfidenceIntervals []ConfidenceInterval `json:"confidence_intervals"`
}

func (s Summary) MarshalJSON() ([]byte, error) {
	return json.Marshal(summaryJSON{
		Count:               s.Count,
		Mean:                jsonFloat(s.Mean),
		Min:                 jsonFloat(s.Min),
		Q1:                  jsonFloat(s.Q1),
		Median:              jsonFloat(s.Median),
		Q3:                  jsonFloat(s.Q3),
		Max:                 jsonFloat(s.Max),
		Variance:            jsonFloat(s.Variance),
		StdDev:              jsonFloat(s.StdDev),
		Skewness:            jsonFloat(s.Skewness),
		Kurtosis:            jsonFloat(s.Kurtosis),
		ConfidenceIntervals: s.ConfidenceIntervals,
	})
}

func (s *Summary) UnmarshalJSON(data []byte) error {
	var w summaryJSON
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	*s = Summary{
		Count:               w.Count,
		Mean:                float64(w.Mean),
		Min:                 float64(w.Min),
		Q1:                  float64(w.Q1),
		Median:              float64(w.Median),
		Q3:                  float64(w.Q3),
		Max:                 float64(w.Max),
		Variance:            float64(w.Variance),
		StdDev:              float64(w.StdDev),
		Skewness:            float64(w.Skewness),
		Kurtosis:            float64(w.Kurtosis),
		ConfidenceIntervals: w.ConfidenceIntervals,
	}
	return nil
}
