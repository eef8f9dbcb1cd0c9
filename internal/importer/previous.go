package importer

import (
	"context"
	"errors"
	"strings"

	"github.com/avni/avni-server/internal/domain/observation"
	"github.com/avni/avni-server/internal/domain/schema"
	"github.com/avni/avni-server/internal/domain/subject"
)

// StoredObservations reads the observations of the record a row updates,
// found by its LegacyIDHeader cell. Rows without an id, or whose id matches
// no record, create new records and get nil.
func StoredObservations(records subject.Records) PreviousObservations {
	return func(ctx context.Context, row Row, formType schema.FormType) (observation.Collection, error) {
		id := strings.TrimSpace(row.Get(LegacyIDHeader))
		if id == "" {
			return nil, nil
		}
		obs, err := storedObservations(ctx, records, id, formType)
		if errors.Is(err, subject.ErrSubjectNotFound) ||
			errors.Is(err, subject.ErrEnrolmentNotFound) ||
			errors.Is(err, subject.ErrEncounterNotFound) {
			return nil, nil
		}
		return obs, err
	}
}

func storedObservations(ctx context.Context, records subject.Records, id string, formType schema.FormType) (observation.Collection, error) {
	switch formType {
	case schema.FormTypeRegistration:
		ind, err := records.ByLegacyID(ctx, id)
		if err != nil {
			return nil, err
		}
		return ind.Observations, nil

	case schema.FormTypeProgramEnrolment, schema.FormTypeProgramExit:
		pe, err := records.EnrolmentByLegacyID(ctx, id)
		if err != nil {
			return nil, err
		}
		if formType == schema.FormTypeProgramExit {
			return pe.ExitObservations, nil
		}
		return pe.Observations, nil

	case schema.FormTypeProgramEncounter, schema.FormTypeEncounter,
		schema.FormTypeProgramEncounterCancellation, schema.FormTypeIndividualEncounterCancellation:
		enc, err := records.EncounterByLegacyID(ctx, id)
		if err != nil {
			return nil, err
		}
		if formType == schema.FormTypeProgramEncounterCancellation || formType == schema.FormTypeIndividualEncounterCancellation {
			return enc.CancelObservations, nil
		}
		return enc.Observations, nil
	}
	return nil, nil
}
