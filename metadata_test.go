package paidquiz

import (
	"math"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"
)

func TestMetadataNormalize(t *testing.T) {
	at := time.Date(2026, 3, 10, 14, 0, 0, 500, time.FixedZone("WAT", 3600))

	out, err := Metadata{
		"reference": "REWARD_1",
		"ok":        true,
		"score":     7,
		"ratio":     0.7,
		"amount":    decimal.RequireFromString("15.25"),
		"at":        at,
		"nested":    Metadata{"inner": map[string]any{"deep": int64(3)}},
	}.Normalize()
	require.NoError(t, err)

	assert.Equal(t, "REWARD_1", out["reference"])
	assert.Equal(t, true, out["ok"])
	assert.Equal(t, 7, out["score"])
	assert.Equal(t, "15.25", out["amount"])
	assert.Equal(t, "2026-03-10T13:00:00.0000005Z", out["at"])
	nested := out["nested"].(map[string]any)
	assert.Equal(t, int64(3), nested["inner"].(map[string]any)["deep"])
}

func TestMetadataRejectsOpenShapes(t *testing.T) {
	cases := map[string]Metadata{
		"slice":        {"tags": []string{"a"}},
		"struct":       {"user": User{}},
		"nested slice": {"outer": Metadata{"inner": []int{1}}},
		"empty key":    {"": "x"},
		"nil value":    {"maybe": nil},
		"nan":          {"ratio": math.NaN()},
		"infinity":     {"ratio": math.Inf(1)},
		"nested inf":   {"outer": Metadata{"inner": float32(math.Inf(-1))}},
	}
	for name, m := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := m.Normalize()
			assert.Equal(t, KindInvalidRequest, KindOf(err))
		})
	}

	out, err := Metadata(nil).Normalize()
	assert.NoError(t, err)
	assert.Nil(t, out)
}

func TestMergeMetadata(t *testing.T) {
	stored := datatypes.JSONMap{"a": "1", "b": "2"}
	merged := mergeMetadata(stored, datatypes.JSONMap{"b": "3", "c": "4"})

	assert.Equal(t, datatypes.JSONMap{"a": "1", "b": "3", "c": "4"}, merged)
	assert.Equal(t, "2", stored["b"])
	assert.Nil(t, mergeMetadata(nil, nil))
}
