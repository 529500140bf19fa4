package embedding

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"math"
)

// MockClient produces a deterministic pseudo-embedding from the text hash.
// Identical inputs embed identically, so similarity search stays meaningful
// enough for tests and offline development.
type MockClient struct {
	EmbedCalls []string
	EmbedError error
}

func NewMockClient() *MockClient {
	return &MockClient{}
}

func (c *MockClient) Embed(_ context.Context, text string) ([]float32, error) {
	c.EmbedCalls = append(c.EmbedCalls, text)
	if c.EmbedError != nil {
		return nil, c.EmbedError
	}

	sum := sha256.Sum256([]byte(text))
	vec := make([]float32, Dimensions)
	for i := range vec {
		word := binary.BigEndian.Uint32(sum[(i%7)*4:(i%7)*4+4]) ^ uint32(i)
		vec[i] = float32(word%1000)/1000.0 - 0.5
	}

	var norm float64
	for _, v := range vec {
		norm += float64(v) * float64(v)
	}
	norm = math.Sqrt(norm)
	if norm > 0 {
		for i := range vec {
			vec[i] = float32(float64(vec[i]) / norm)
		}
	}
	return vec, nil
}
