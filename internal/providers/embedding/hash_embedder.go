package embedding

import (
	"context"
	"crypto/md5"
)

// HashEmbedder derives a deterministic embedding from an MD5 digest of the
// input text. It is a prototype stand-in for a real embedding model: each
// digest byte is normalized to [-1, 1] and the resulting 16 values are
// repeated until the vector is Dimensions wide.
type HashEmbedder struct{}

func NewHashEmbedder() *HashEmbedder { return &HashEmbedder{} }

func (e *HashEmbedder) Embed(_ context.Context, text string) ([]float64, error) {
	sum := md5.Sum([]byte(text))

	vec := make([]float64, 0, Dimensions)
	for _, b := range sum {
		vec = append(vec, (float64(b)-127.5)/127.5)
	}

	// Pad by repeating already-computed values, then truncate.
	for len(vec) < Dimensions {
		take := len(vec)
		if rem := Dimensions - len(vec); take > rem {
			take = rem
		}
		vec = append(vec, vec[:take]...)
	}
	return vec[:Dimensions], nil
}
