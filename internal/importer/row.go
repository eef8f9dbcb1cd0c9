package importer

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/avni/avni-server/internal/domain/schema"
)

// Row is one import record: header to raw cell value.
type Row struct {
	Line    int
	headers []string
	values  map[string]string
}

// NewRow pairs headers with cells. Missing trailing cells read as blank.
func NewRow(line int, headers, cells []string) Row {
	values := make(map[string]string, len(headers))
	for i, h := range headers {
		if i < len(cells) {
			values[h] = cells[i]
		}
	}
	return Row{Line: line, headers: headers, values: values}
}

// Get returns the raw cell for header, or "" when absent.
func (r Row) Get(header string) string {
	return r.values[header]
}

// Headers returns the file headers in file order.
func (r Row) Headers() []string {
	return r.headers
}

// Cells returns the row's values in header order.
func (r Row) Cells() []string {
	out := make([]string, len(r.headers))
	for i, h := range r.headers {
		out[i] = r.values[h]
	}
	return out
}

func (r Row) String() string {
	return fmt.Sprintf("line %d", r.Line)
}

// Headers lists the columns of an import type that are not concepts.
type Headers interface {
	AllHeaders() []string
}

// FixedHeaders is a static Headers set.
type FixedHeaders []string

func (h FixedHeaders) AllHeaders() []string { return h }

// LegacyIDHeader names the column holding a record's id in the previous
// system. Every import type carries it.
const LegacyIDHeader = "Id from previous system"

var (
	SubjectHeaders = FixedHeaders{
		LegacyIDHeader, "Subject Type", "Date Of Registration", "Registration Location",
		"First Name", "Middle Name", "Last Name", "Profile Picture", "Date Of Birth",
		"Date Of Birth Verified", "Gender", "Address",
	}
	ProgramEnrolmentHeaders = FixedHeaders{
		LegacyIDHeader, "Subject Id from previous system", "Program",
		"Enrolment Date", "Enrolment Location", "Exit Date", "Exit Location",
	}
	ProgramEncounterHeaders = FixedHeaders{
		LegacyIDHeader, "Program Enrolment Id", "Visit Type", "Visit Date",
		"Earliest Visit Date", "Max Visit Date", "Encounter Location", "Cancel Location",
	}
	EncounterHeaders = FixedHeaders{
		LegacyIDHeader, "Subject Id from previous system", "Visit Type", "Visit Date",
		"Earliest Visit Date", "Max Visit Date", "Encounter Location", "Cancel Location",
	}
)

// HeadersFor returns the fixed headers of the import that fills formType.
func HeadersFor(formType schema.FormType) Headers {
	switch formType {
	case schema.FormTypeRegistration:
		return SubjectHeaders
	case schema.FormTypeProgramEnrolment, schema.FormTypeProgramExit:
		return ProgramEnrolmentHeaders
	case schema.FormTypeProgramEncounter, schema.FormTypeProgramEncounterCancellation:
		return ProgramEncounterHeaders
	case schema.FormTypeEncounter, schema.FormTypeIndividualEncounterCancellation:
		return EncounterHeaders
	}
	return FixedHeaders{}
}

// ReadRows parses a CSV file whose first record is the header line.
// Line numbers count the header as line 1.
func ReadRows(r io.Reader) ([]Row, []string, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true

	headers, err := cr.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, nil, errors.New("empty file")
		}
		return nil, nil, fmt.Errorf("read header: %w", err)
	}
	for i, h := range headers {
		if i == 0 {
			h = strings.TrimPrefix(h, "\ufeff")
		}
		headers[i] = strings.TrimSpace(h)
	}

	var rows []Row
	for line := 2; ; line++ {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, nil, fmt.Errorf("read line %d: %w", line, err)
		}
		if blankRecord(rec) {
			continue
		}
		rows = append(rows, NewRow(line, headers, rec))
	}
	return rows, headers, nil
}

func blankRecord(rec []string) bool {
	for _, c := range rec {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}
