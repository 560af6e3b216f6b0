package types

import "fmt"

// Point is a single vector with its payload, keyed by an id unique within a collection
type Point struct {
	ID      string
	Vector  []float32
	Payload map[string]any
}

// Validate checks the point against the collection dimension
func (p *Point) Validate(dimension int) error {
	if p.ID == "" {
		return fmt.Errorf("%w: point id cannot be empty", ErrInvalidArgument)
	}
	if len(p.Vector) != dimension {
		return &DimensionMismatchError{Expected: dimension, Actual: len(p.Vector), PointID: p.ID}
	}
	return nil
}

// Clone returns a deep copy of the vector and a shallow copy of the payload map
func (p Point) Clone() Point {
	vec := make([]float32, len(p.Vector))
	copy(vec, p.Vector)

	var payload map[string]any
	if p.Payload != nil {
		payload = make(map[string]any, len(p.Payload))
		for k, v := range p.Payload {
			payload[k] = v
		}
	}

	return Point{ID: p.ID, Vector: vec, Payload: payload}
}
