package stats

import (
	"context"
	"testing"

	"github.com/go-viper/mapstructure/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leapstack-labs/leapdq/internal/stage"
	"github.com/leapstack-labs/leapdq/internal/testutil"
)

func TestGenerator_Run(t *testing.T) {
	g := NewGenerator(testutil.NewTestLogger(t), 2)
	decode := func(args map[string]any) stage.Decoder {
		return func(target any) error { return mapstructure.Decode(args, target) }
	}

	res, err := g.Run(context.Background(), MeasuresOfCounts, testData(t), decode(map[string]any{
		"drop_cols": []string{"id", "c"},
	}))
	require.NoError(t, err)
	out, ok := res.Stat(MeasuresOfCounts)
	require.True(t, ok)
	assert.Equal(t, 2, out.NumRows())
	assert.Equal(t, "x", out.Value(0, "attribute"))

	_, err = g.Run(context.Background(), "measures_of_vibes", testData(t), decode(nil))
	var unknown *stage.UnknownError
	assert.ErrorAs(t, err, &unknown)
}
