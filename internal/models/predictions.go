package models

import (
	"bytes"
	"encoding/json"
	"math"
)

// PredictRequest is the query of GET /api/v1/predict
type PredictRequest struct {
	Team    string   `json:"team" validate:"omitempty,max=8,alphanum"`
	Season  int      `json:"season" validate:"omitempty,min=1947,max=2100"`
	Targets []string `json:"targets" validate:"omitempty,max=32,dive,required,max=32"`
}

// TargetValue is one predicted target of a player
type TargetValue struct {
	Target string
	Value  float64
}

// PlayerPrediction is one row of a prediction response. It serializes as a
// flat object: {"Player": ..., "TEAM": ..., "Predicted_3P": ...}, with the
// predicted fields in request order.
type PlayerPrediction struct {
	Player      *string
	Team        *string
	Predictions []TargetValue
}

// PredictionKey is the response field name of a target
func PredictionKey(target string) string {
	return "Predicted_" + target
}

func (p PlayerPrediction) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	first := true
	field := func(key string, v any) error {
		if !first {
			buf.WriteByte(',')
		}
		first = false
		k, err := json.Marshal(key)
		if err != nil {
			return err
		}
		val, err := json.Marshal(v)
		if err != nil {
			return err
		}
		buf.Write(k)
		buf.WriteByte(':')
		buf.Write(val)
		return nil
	}

	if p.Player != nil {
		if err := field("Player", *p.Player); err != nil {
			return nil, err
		}
	}
	if p.Team != nil {
		if err := field("TEAM", *p.Team); err != nil {
			return nil, err
		}
	}
	for _, tv := range p.Predictions {
		var v any = tv.Value
		if math.IsNaN(tv.Value) || math.IsInf(tv.Value, 0) {
			v = nil
		}
		if err := field(PredictionKey(tv.Target), v); err != nil {
			return nil, err
		}
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// Value returns the prediction for target
func (p PlayerPrediction) Value(target string) (float64, bool) {
	for _, tv := range p.Predictions {
		if tv.Target == target {
			return tv.Value, true
		}
	}
	return 0, false
}
