package types

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBinSentiments(t *testing.T) {
	bins := BinSentiments([]float64{-0.9, -0.5, -0.1, 0.0, 0.1, 0.4, 0.8})
	assert.Equal(t, SentimentBins{
		VeryNegative: 1,
		Negative:     1,
		Neutral:      3,
		Positive:     1,
		VeryPositive: 1,
	}, bins)
}

func TestBinSentimentBoundaries(t *testing.T) {
	assert.Equal(t, "very_negative", BinSentiment(-0.6))
	assert.Equal(t, "negative", BinSentiment(-0.2))
	assert.Equal(t, "neutral", BinSentiment(0.2))
	assert.Equal(t, "positive", BinSentiment(0.6))
	assert.Equal(t, "very_positive", BinSentiment(0.600001))
}

func TestClampSentiment(t *testing.T) {
	assert.Equal(t, 1.0, ClampSentiment(5.0))
	assert.Equal(t, -1.0, ClampSentiment(-5.0))
	assert.Equal(t, 0.3, ClampSentiment(0.3))
}
