package embedding

import (
	"context"
	"crypto/sha256"
	"time"
)

// SimulatedDimension is the vector size produced by Simulated.
const SimulatedDimension = 32

// Simulated stands in for a real embedding model. It waits Delay, then derives
// a deterministic vector from the text's hash.
type Simulated struct {
	Delay time.Duration
}

func (s Simulated) Embed(ctx context.Context, text string) ([]float32, error) {
	if s.Delay > 0 {
		t := time.NewTimer(s.Delay)
		defer t.Stop()
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-t.C:
		}
	}

	h := sha256.Sum256([]byte(text))
	vec := make([]float32, SimulatedDimension)
	for i := range vec {
		vec[i] = float32(h[i%len(h)]) / 255.0
	}
	return vec, nil
}
