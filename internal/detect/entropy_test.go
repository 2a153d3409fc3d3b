package detect

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestShannonEntropy_EmptyInput(t *testing.T) {
	assert.Equal(t, 0.0, ShannonEntropy(""))
}

func TestShannonEntropy_KnownDistributions(t *testing.T) {
	// Single symbol carries no information.
	assert.Equal(t, 0.0, ShannonEntropy("aaaaaaaa"))

	// Two symbols at equal frequency carry exactly one bit each.
	assert.InDelta(t, 1.0, ShannonEntropy("abababab"), 1e-9)

	// Four symbols at equal frequency carry two bits each.
	assert.InDelta(t, 2.0, ShannonEntropy("abcdabcd"), 1e-9)
}

func TestShannonEntropy_Deterministic(t *testing.T) {
	input := "kq7xvz1mw9c4yh2t"
	first := ShannonEntropy(input)
	for i := 0; i < 100; i++ {
		assert.Equal(t, first, ShannonEntropy(input), "entropy must be identical on every call")
	}
}

func TestAnalyzeDomain_FlagsGeneratedNames(t *testing.T) {
	tests := []struct {
		domain string
	}{
		{"xk2w9qzv7mhr4pt1.com"},
		{"q0f8zj3xw6kv9d2n5b7m.evil.net"},
		{"zx9qv2kw8fj3hp6t.biz"},
	}
	for _, tt := range tests {
		t.Run(tt.domain, func(t *testing.T) {
			ind := AnalyzeDomain(tt.domain)
			require.NotNil(t, ind, "generated-looking domain should be flagged")
			assert.Equal(t, IndicatorDGA, ind.IndicatorType)
			assert.Equal(t, PhaseCommandAndControl, ind.AttackPhase)
			assert.Greater(t, ind.Confidence, 0.5)
			assert.LessOrEqual(t, ind.Confidence, 1.0, "confidence is capped at 1.0")
			assert.Contains(t, ind.MitreTechniques, "T1568.002")
		})
	}
}

func TestAnalyzeDomain_PassesOrdinaryNames(t *testing.T) {
	for _, domain := range []string{
		"google.com",
		"mail.example.org",
		"updates.apple.com",
		"github.com",
		"",
	} {
		assert.Nil(t, AnalyzeDomain(domain), "ordinary domain %q must not be flagged", domain)
	}
}

func TestAnalyzeDomain_Deterministic(t *testing.T) {
	domain := "xk2w9qzv7mhr4pt1.com"
	first := AnalyzeDomain(domain)
	require.NotNil(t, first)
	for i := 0; i < 50; i++ {
		again := AnalyzeDomain(domain)
		require.NotNil(t, again)
		assert.Equal(t, first.Confidence, again.Confidence)
		assert.Equal(t, first.Value, again.Value)
	}
}

func BenchmarkShannonEntropy(b *testing.B) {
	input := "xk2w9qzv7mhr4pt1n8fj3hs6dq0vz5lw"
	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		ShannonEntropy(input)
	}
}
