package model

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/and161185/pill-monitor/internal/errs"
)

func TestParseDose(t *testing.T) {
	t.Parallel()
	cases := map[string]DoseKey{
		"morning": DoseMorning, "Breakfast": DoseMorning, "1": DoseMorning,
		"midday": DoseMidday, "lunch": DoseMidday, "2": DoseMidday,
		"evening": DoseEvening, " dinner ": DoseEvening, "3": DoseEvening,
	}
	for in, want := range cases {
		got, err := ParseDose(in)
		require.NoError(t, err, in)
		require.Equal(t, want, got, in)
	}

	_, err := ParseDose("brunch")
	require.ErrorIs(t, err, errs.ErrValidation)
}

func TestDoseKey_TextRoundTrip(t *testing.T) {
	t.Parallel()
	b, err := json.Marshal(map[string]DoseKey{"dose": DoseMidday})
	require.NoError(t, err)
	require.JSONEq(t, `{"dose":"midday"}`, string(b))

	var back struct{ Dose DoseKey }
	require.NoError(t, json.Unmarshal([]byte(`{"Dose":"dinner"}`), &back))
	require.Equal(t, DoseEvening, back.Dose)

	_, err = DoseKey(7).MarshalText()
	require.ErrorIs(t, err, errs.ErrValidation)
}

func TestInventory_DecodesDevicePayload(t *testing.T) {
	t.Parallel()
	payload := `{
	  "medicines": {
	    "breakfast": [{"id":"a","name":"Aspirin","count":4}],
	    "lunch": [],
	    "dinner": [{"id":"b","name":"Metformin","count":0},{"id":"c","name":"Statin","count":9}]
	  },
	  "alarmBreakfast": 480, "alarmLunch": 780, "alarmDinner": 1439
	}`
	var inv Inventory
	require.NoError(t, json.Unmarshal([]byte(payload), &inv))
	require.NoError(t, inv.Validate())

	require.Equal(t, []Medicine{{ID: "a", Name: "Aspirin", Count: 4}}, inv.Morning.Medicines)
	require.Empty(t, inv.Midday.Medicines)
	require.Len(t, inv.Evening.Medicines, 2)
	require.Equal(t, 1439, inv.Evening.Alarm)
	require.Equal(t, QuickStats{TotalPills: 13, Medicines: 3, LowStock: 1}, inv.Stats())

	out, err := json.Marshal(inv)
	require.NoError(t, err)
	require.JSONEq(t, payload, string(out))
}

func TestInventory_RejectsMalformed(t *testing.T) {
	t.Parallel()
	bad := []string{
		`not json`,
		`{"alarmBreakfast":1,"alarmLunch":2,"alarmDinner":3}`,
		`{"medicines":{"breakfast":[],"lunch":[],"dinner":[]},"alarmBreakfast":1,"alarmLunch":2}`,
	}
	for _, p := range bad {
		var inv Inventory
		require.ErrorIs(t, json.Unmarshal([]byte(p), &inv), errs.ErrMalformedSnapshot, p)
	}

	inv := DefaultInventory()
	inv.Midday.Alarm = 1440
	require.ErrorIs(t, inv.Validate(), errs.ErrMalformedSnapshot)

	inv = DefaultInventory()
	inv.Morning.Medicines = []Medicine{{ID: "x", Name: "X", Count: -1}}
	require.ErrorIs(t, inv.Validate(), errs.ErrMalformedSnapshot)

	inv = DefaultInventory()
	inv.Evening.Medicines = []Medicine{{ID: "", Name: "X", Count: 1}}
	require.ErrorIs(t, inv.Validate(), errs.ErrMalformedSnapshot)
}

func TestInventory_CloneIsDeep(t *testing.T) {
	t.Parallel()
	inv := DefaultInventory()
	inv.Morning.Medicines = append(inv.Morning.Medicines, Medicine{ID: "a", Name: "A", Count: 1})

	cp := inv.Clone()
	cp.Morning.Medicines[0].Count = 99
	cp.Morning.Alarm = 1

	require.Equal(t, 1, inv.Morning.Medicines[0].Count)
	require.Equal(t, 8*60, inv.Morning.Alarm)
	require.Nil(t, inv.Slot(DoseKey(0)))
}

func TestCountChange_CrossedLowStock(t *testing.T) {
	t.Parallel()
	require.True(t, CountChange{Old: 3, New: 2}.CrossedLowStock())
	require.False(t, CountChange{Old: 2, New: 1}.CrossedLowStock())
	require.False(t, CountChange{Old: 4, New: 3}.CrossedLowStock())
	require.False(t, CountChange{Old: 2, New: 3}.CrossedLowStock())
}
