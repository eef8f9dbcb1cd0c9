package exporter

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/avni/avni-server/internal/domain/schema"
	"github.com/avni/avni-server/internal/domain/subject"
)

func TestPlanner_Plan(t *testing.T) {
	job := newTestJob(testRows())
	layout, err := job.Plan(context.Background(), testOutput())
	require.NoError(t, err)

	reg := layout.Registration
	assert.Equal(t, "Person", reg.Entity.Name)
	assert.Equal(t, []string{"uuid", "firstName"}, reg.StaticKeys)
	assert.Equal(t, []string{"Village", "District"}, layout.AddressLevels)
	assert.False(t, layout.IsGroup)

	var concepts []string
	for _, fe := range reg.Main {
		concepts = append(concepts, fe.Concept.UUID)
	}
	assert.Equal(t, []string{"c-weight", "c-visit", "c-symptoms", "c-risk", "c-pulse"}, concepts,
		"question group elements are replaced by their members")
	// static 2 + address 2 + weight, visit, 3 symptom answers, risk, pulse
	assert.Equal(t, 11, reg.Width)

	require.Len(t, layout.Encounters, 1)
	anc := layout.Encounters[0]
	assert.Equal(t, 3, anc.MaxCount)
	assert.Equal(t, 3, anc.Width, "encounterDateTime, weight and cancellation notes")

	require.Len(t, layout.Groups, 1)
	assert.Equal(t, 1+2+1+1, layout.Groups[0].Total())

	require.Len(t, layout.Programs, 1)
	prog := layout.Programs[0]
	assert.Equal(t, 2, prog.Enrolment.Width)
	assert.Nil(t, prog.Enrolment.Secondary, "no exit form mapped")
	assert.Equal(t, 2, prog.Encounters[0].MaxCount)
	assert.Equal(t, 2+2*2, prog.Total())

	assert.Equal(t, 11+9+5+6, layout.Width())
}

func TestPlanner_SelectedConcepts(t *testing.T) {
	out := testOutput()
	out.Fields = []string{"uuid", "c-risk", "c-weight"}
	layout, err := newTestJob(testRows()).Plan(context.Background(), out)
	require.NoError(t, err)

	var concepts []string
	for _, fe := range layout.Registration.Main {
		concepts = append(concepts, fe.Concept.UUID)
	}
	assert.Equal(t, []string{"c-weight", "c-risk"}, concepts, "form order, not selection order")
	assert.Equal(t, []string{"uuid"}, layout.Registration.StaticKeys)
}

func TestPlanner_AllStaticFieldsByDefault(t *testing.T) {
	out := testOutput()
	out.Fields = nil
	layout, err := newTestJob(testRows()).Plan(context.Background(), out)
	require.NoError(t, err)
	assert.Len(t, layout.Registration.StaticKeys, len(registrationFields))
}

func TestPlanner_MissingForm(t *testing.T) {
	out := testOutput()
	out.Encounters = append(out.Encounters, ExportEntityType{UUID: "et-unmapped", Name: "Unmapped"})
	_, err := newTestJob(testRows()).Plan(context.Background(), out)
	require.Error(t, err)
	assert.True(t, errors.Is(err, schema.ErrFormNotMapped))
}

type failingCounter struct{}

func (failingCounter) MaxEncounterCount(context.Context, string, string) (int, error) {
	return 0, errors.New("count failed")
}

func TestPlanner_CounterFailure(t *testing.T) {
	rows := testRows()
	planner := NewPlanner(NewMappedForms(testForms()), failingCounter{}, testHierarchy(), subject.NewMemoryRepo(rows...), zerolog.Nop())
	_, err := planner.Plan(context.Background(), testOutput())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "count failed")
}

func TestPlanner_InvalidOutput(t *testing.T) {
	_, err := newTestJob(nil).Plan(context.Background(), ExportOutput{})
	require.Error(t, err)
}

func TestPlanner_DefaultLocation(t *testing.T) {
	out := testOutput()
	out.Timezone = ""
	kolkata, err := time.LoadLocation("Asia/Kolkata")
	require.NoError(t, err)

	rows := testRows()
	newPlanner := func() *Planner {
		return NewPlanner(NewMappedForms(testForms()), DatasetRepeatCounter{Rows: rows}, testHierarchy(),
			subject.NewMemoryRepo(rows...), zerolog.Nop())
	}

	l, err := newPlanner().Plan(context.Background(), out)
	require.NoError(t, err)
	assert.Equal(t, time.UTC, l.Location)

	l, err = newPlanner().WithLocation(kolkata).Plan(context.Background(), out)
	require.NoError(t, err)
	assert.Equal(t, kolkata, l.Location)
}
