package importer

import (
	"context"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/avni/avni-server/internal/domain/observation"
	"github.com/avni/avni-server/internal/domain/schema"
)

func coerce(t *testing.T, f *fixture, elementUUID, raw string, cc Context) FieldResult {
	t.Helper()
	idx, err := f.resolver.Index(context.Background(), schema.FormTypeRegistration)
	require.NoError(t, err)
	fe, ok := idx.Element(elementUUID)
	require.True(t, ok, elementUUID)
	cc.Index = idx
	return f.coercer.Coerce(context.Background(), fe, raw, cc)
}

func TestCoercer_PhoneNumber(t *testing.T) {
	f := newFixture()

	res := coerce(t, f, "fe-mobile", "9876543210", Context{})
	require.Empty(t, res.Errs)
	assert.Equal(t, observation.PhoneNumber{PhoneNumber: "9876543210", Verified: false}, res.Value)

	res = coerce(t, f, "fe-mobile", "98765", Context{})
	require.Len(t, res.Errs, 1)
	assert.Equal(t, "Invalid Mobile provided 98765. Please provide 10 digit number.", res.Errs[0])
	assert.Nil(t, res.Value)

	res = coerce(t, f, "fe-mobile", "98765432101", Context{})
	assert.Len(t, res.Errs, 1, "longer numbers are rejected")

	res = coerce(t, f, "fe-mobile", "  ", Context{})
	assert.Empty(t, res.Errs)
	assert.Nil(t, res.Value)
}

func TestCoercer_Coded(t *testing.T) {
	f := newFixture()

	t.Run("single select", func(t *testing.T) {
		res := coerce(t, f, "fe-risk", " high ", Context{})
		require.Empty(t, res.Errs)
		assert.Equal(t, "a-high", res.Value)
	})

	t.Run("multi select", func(t *testing.T) {
		res := coerce(t, f, "fe-symptoms", "Fever, Cold", Context{})
		require.Empty(t, res.Errs)
		assert.Equal(t, []any{"a-fever", "a-cold"}, res.Value)
	})

	t.Run("multi select with quoted tokens", func(t *testing.T) {
		res := coerce(t, f, "fe-symptoms", `"Cough",Fever`, Context{})
		require.Empty(t, res.Errs)
		assert.Equal(t, []any{"a-cough", "a-fever"}, res.Value)
	})

	t.Run("unknown answer", func(t *testing.T) {
		res := coerce(t, f, "fe-symptoms", "Fever,Rash", Context{})
		require.Len(t, res.Errs, 1)
		assert.Equal(t, "Invalid answer 'Fever,Rash' for 'Symptoms'", res.Errs[0])
	})
}

func TestCoercer_CustomDelimiter(t *testing.T) {
	f := newFixture()
	f.coercer = NewCoercer(CoercerConfig{Delimiter: ';'}, f.media, nil, nil, zerolog.Nop())
	res := coerce(t, f, "fe-symptoms", "Fever; Cough", Context{})
	require.Empty(t, res.Errs)
	assert.Equal(t, []any{"a-fever", "a-cough"}, res.Value)
}

func TestCoercer_Numeric(t *testing.T) {
	f := newFixture()

	res := coerce(t, f, "fe-weight", " 12.5 ", Context{})
	require.Empty(t, res.Errs)
	assert.Equal(t, 12.5, res.Value)

	res = coerce(t, f, "fe-weight", "twelve", Context{})
	assert.Equal(t, []string{"Invalid answer 'twelve' for 'Weight'"}, res.Errs)

	for _, raw := range []string{"NaN", "Inf", "+Inf", "-inf", "1e400"} {
		res = coerce(t, f, "fe-weight", raw, Context{})
		assert.Nil(t, res.Value, raw)
		assert.Equal(t, []string{"Invalid answer '" + raw + "' for 'Weight'"}, res.Errs, raw)
	}
}

func TestCoercer_Date(t *testing.T) {
	f := newFixture()

	res := coerce(t, f, "fe-visit", "2023-01-05", Context{})
	require.Empty(t, res.Errs)
	assert.Equal(t, "2023-01-05T00:00:00.000+00:00", res.Value)

	res = coerce(t, f, "fe-visit", "not-a-date", Context{})
	assert.Equal(t, []string{"Invalid answer 'not-a-date' for 'Visit date'"}, res.Errs)
}

func TestCoercer_Media(t *testing.T) {
	f := newFixture()

	t.Run("single select passes the old value", func(t *testing.T) {
		res := coerce(t, f, "fe-photo", "a.jpg", Context{OldValue: "media/old.jpg"})
		require.Empty(t, res.Errs)
		assert.Equal(t, "media/a.jpg", res.Value)
		assert.Equal(t, "media/old.jpg", f.media.oldValues[len(f.media.oldValues)-1])
	})

	t.Run("multi select resolves each token as new", func(t *testing.T) {
		f.media.oldValues = nil
		res := coerce(t, f, "fe-gallery", "a.jpg,b.jpg", Context{OldValue: []any{"media/x.jpg"}})
		require.Empty(t, res.Errs)
		assert.Equal(t, []any{"media/a.jpg", "media/b.jpg"}, res.Value)
		assert.Equal(t, []any{nil, nil}, f.media.oldValues)
	})

	t.Run("failure carries the cause and leaves the field absent", func(t *testing.T) {
		res := coerce(t, f, "fe-gallery", "a.jpg,bad.jpg", Context{})
		assert.Equal(t, []string{"Unable to fetch bad.jpg"}, res.Errs)
		assert.Nil(t, res.Value)
	})
}

func TestCoercer_Identity(t *testing.T) {
	f := newFixture()

	res := coerce(t, f, "fe-address", "Wagholi", Context{})
	require.Empty(t, res.Errs)
	assert.Equal(t, "location:Wagholi", res.Value)

	res = coerce(t, f, "fe-mother", "P-1", Context{})
	require.Empty(t, res.Errs)
	assert.Equal(t, "subject:P-1", res.Value)

	res = coerce(t, f, "fe-mother", "unknown", Context{})
	assert.Equal(t, []string{"Invalid answer 'unknown' for 'Mother'"}, res.Errs)
}

func TestCoercer_Text(t *testing.T) {
	f := newFixture()
	res := coerce(t, f, "fe-notes", "  seen at home ", Context{})
	assert.Equal(t, "seen at home", res.Value)
}

func TestCoercer_QuestionGroup(t *testing.T) {
	f := newFixture()

	row := rowOf("Vitals|Pulse", "72", "Vitals|BP", "")
	res := coerce(t, f, "fe-vitals", "", Context{Row: row})
	require.Empty(t, res.Errs)
	assert.Equal(t, []observation.Request{{ConceptName: "Pulse", ConceptUUID: "c-pulse", Value: 72.0}}, res.Value)

	row = rowOf("Vitals|Pulse", "fast", "Vitals|BP", "120/80")
	res = coerce(t, f, "fe-vitals", "", Context{Row: row})
	assert.Equal(t, []string{"Invalid answer 'fast' for 'Pulse'"}, res.Errs)
}
