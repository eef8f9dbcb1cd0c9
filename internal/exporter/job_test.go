package exporter

import (
	"bytes"
	"context"
	"encoding/csv"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/avni/avni-server/internal/domain/location"
	"github.com/avni/avni-server/internal/domain/schema"
	"github.com/avni/avni-server/internal/domain/subject"
	"github.com/avni/avni-server/internal/importer"
)

func TestJob_Run(t *testing.T) {
	var buf bytes.Buffer
	n, err := newTestJob(testRows()).Run(context.Background(), testOutput(), &buf)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	records, err := csv.NewReader(&buf).ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 3)
	assert.Equal(t, "Person.uuid", records[0][0])
	assert.Equal(t, "ind-Asha", records[1][0])
	assert.Equal(t, "ind-Ravi", records[2][0])
}

func TestJob_Filters(t *testing.T) {
	out := testOutput()
	out.Filters.AddressLevelUUIDs = []string{"v-elsewhere"}
	var buf bytes.Buffer
	n, err := newTestJob(testRows()).Run(context.Background(), out, &buf)
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Equal(t, 1, strings.Count(buf.String(), "\n"), "header only")
}

type countingHierarchy struct {
	location.Hierarchy
	lineages int
}

func (h *countingHierarchy) Lineage(ctx context.Context, levelUUID string) (map[string]string, error) {
	h.lineages++
	return h.Hierarchy.Lineage(ctx, levelUUID)
}

func TestJob_LineagesCachedPerRun(t *testing.T) {
	rows := testRows()
	log := zerolog.Nop()
	repo := subject.NewMemoryRepo(rows...)
	h := &countingHierarchy{Hierarchy: testHierarchy()}
	planner := NewPlanner(NewMappedForms(testForms()), DatasetRepeatCounter{Rows: rows}, h, repo, log)
	job := NewJob(planner, NewExtractor(h, log), repo, log)

	for i := 0; i < 2; i++ {
		n, err := job.Run(context.Background(), testOutput(), &bytes.Buffer{})
		require.NoError(t, err)
		assert.Equal(t, 2, n)
	}
	assert.Equal(t, 2, h.lineages, "one read of the shared village per run")
}

func TestJob_CanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := newTestJob(testRows()).Run(ctx, testOutput(), &bytes.Buffer{})
	require.Error(t, err)
}

// Exported cells decode back to the stored values through the importer.
func TestJob_RoundTripThroughImport(t *testing.T) {
	var buf bytes.Buffer
	_, err := newTestJob(testRows()).Run(context.Background(), testOutput(), &buf)
	require.NoError(t, err)
	records, err := csv.NewReader(&buf).ReadAll()
	require.NoError(t, err)
	cells := records[1]

	coercer := importer.NewCoercer(importer.CoercerConfig{Location: ist}, nil, nil, nil, zerolog.Nop())
	single := schema.FormElementSingleSelect
	coerce := func(c *schema.Concept, raw string) any {
		res := coercer.Coerce(context.Background(), element("fe", 1, c, single, ""), raw, importer.Context{})
		require.False(t, res.Failed(), "%v", res.Errs)
		return res.Value
	}

	stored := testRows()[0].Individual.Observations
	assert.Equal(t, stored["c-weight"], coerce(conceptWeight, cells[4]))
	assert.Equal(t, stored["c-visit"], coerce(conceptVisit, cells[5]))
	assert.Equal(t, stored["c-risk"], coerce(conceptRisk, cells[9]))
}

func TestLoadOutput(t *testing.T) {
	dir := t.TempDir()
	yamlPath := filepath.Join(dir, "export.yaml")
	require.NoError(t, os.WriteFile(yamlPath, []byte(`
uuid: st-person
fields: [uuid, firstName]
timezone: Asia/Kolkata
filters:
  addressLevelUUIDs: [v-rampur]
encounters:
  - uuid: et-anc
    name: ANC
programs:
  - uuid: p-preg
    name: Pregnancy
    encounters:
      - uuid: et-pnc
`), 0o644))
	out, err := LoadOutput(yamlPath)
	require.NoError(t, err)
	assert.Equal(t, "st-person", out.UUID)
	assert.Equal(t, []string{"uuid", "firstName"}, out.Fields)
	assert.Equal(t, []string{"v-rampur"}, out.Filters.AddressLevelUUIDs)
	require.Len(t, out.Programs, 1)
	assert.Equal(t, "et-pnc", out.Programs[0].Encounters[0].UUID)

	jsonPath := filepath.Join(dir, "export.json")
	require.NoError(t, os.WriteFile(jsonPath, []byte(`{"uuid":"st-person","encounters":[{"name":"ANC"}]}`), 0o644))
	_, err = LoadOutput(jsonPath)
	assert.ErrorContains(t, err, "has no uuid")
}

func TestDatasetRepeatCounter(t *testing.T) {
	c := DatasetRepeatCounter{Rows: testRows()}
	n, err := c.MaxEncounterCount(context.Background(), "et-anc", "")
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	n, err = c.MaxEncounterCount(context.Background(), "et-pnc", "p-preg")
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}
