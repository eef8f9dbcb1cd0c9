package importer

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/avni/avni-server/internal/domain/schema"
)

func TestReadRows(t *testing.T) {
	in := "\ufeffFirst Name, Weight ,Vitals|Pulse\nAsha,12,72\n,,\nRavi,9\n"
	rows, headers, err := ReadRows(strings.NewReader(in))
	require.NoError(t, err)
	assert.Equal(t, []string{"First Name", "Weight", "Vitals|Pulse"}, headers)
	require.Len(t, rows, 2)

	assert.Equal(t, 2, rows[0].Line)
	assert.Equal(t, "Asha", rows[0].Get("First Name"))
	assert.Equal(t, "72", rows[0].Get("Vitals|Pulse"))

	assert.Equal(t, 4, rows[1].Line)
	assert.Equal(t, "", rows[1].Get("Vitals|Pulse"))
	assert.Equal(t, []string{"Ravi", "9", ""}, rows[1].Cells())
	assert.Equal(t, "", rows[1].Get("Not a header"))
}

func TestReadRows_Empty(t *testing.T) {
	_, _, err := ReadRows(strings.NewReader(""))
	assert.Error(t, err)
}

func TestHeadersFor(t *testing.T) {
	assert.Contains(t, HeadersFor(schema.FormTypeRegistration).AllHeaders(), "Date Of Registration")
	assert.Contains(t, HeadersFor(schema.FormTypeProgramExit).AllHeaders(), "Exit Date")
	assert.Contains(t, HeadersFor(schema.FormTypeProgramEncounterCancellation).AllHeaders(), "Program Enrolment Id")
	assert.Contains(t, HeadersFor(schema.FormTypeEncounter).AllHeaders(), "Visit Type")
}
