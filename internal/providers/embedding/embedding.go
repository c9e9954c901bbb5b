package embedding

import "context"

// Dimensions is the fixed width of every embedding returned by a Provider.
const Dimensions = 1024

type Provider interface {
	// Embed returns a Dimensions-wide vector for the given text. It must be
	// deterministic for identical input and every component must lie in [-1, 1].
	Embed(ctx context.Context, text string) ([]float64, error)
}
