package models

import (
	"encoding/json"
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPlanID_Dir(t *testing.T) {
	tests := []struct {
		name string
		plan PlanID
		want string
	}{
		{"none", NonePlan(), "common"},
		{"word", WordPlan(big.NewInt(42)), "word_42"},
		{"series", SeriesPlan(big.NewInt(7)), "series_7"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.plan.Dir())
		})
	}
}

func TestPlanID_JSONRoundTrip(t *testing.T) {
	tests := []PlanID{
		NonePlan(),
		WordPlan(big.NewInt(123456789)),
		SeriesPlan(big.NewInt(987654321)),
	}

	for _, want := range tests {
		data, err := json.Marshal(want)
		require.NoError(t, err)

		var got PlanID
		require.NoError(t, json.Unmarshal(data, &got))

		assert.Equal(t, want.Kind, got.Kind)
		if want.ID == nil {
			assert.Nil(t, got.ID)
		} else {
			require.NotNil(t, got.ID)
			assert.Equal(t, 0, want.ID.Cmp(got.ID))
		}
	}
}

func TestPlanID_UnmarshalUnknownKind(t *testing.T) {
	var p PlanID
	err := json.Unmarshal([]byte(`{"kind":"bogus"}`), &p)
	require.ErrorIs(t, err, ErrUnknownPlanKind)
}
