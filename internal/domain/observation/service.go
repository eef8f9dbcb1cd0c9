package observation

import "github.com/rs/zerolog"

// Service materialises observation requests into a Collection.
type Service struct {
	logger zerolog.Logger
}

// NewService creates a new observation service.
func NewService(logger zerolog.Logger) *Service {
	return &Service{logger: logger.With().Str("component", "observation").Logger()}
}

// CreateObservations builds a Collection from requests. Nil values are
// dropped, and question-group requests become nested collections. An
// empty nested collection is dropped too.
func (s *Service) CreateObservations(requests []Request) Collection {
	out := make(Collection, len(requests))
	for _, r := range requests {
		v := s.value(r.Value)
		if v == nil {
			s.logger.Debug().Str("concept", r.ConceptName).Msg("dropping empty observation")
			continue
		}
		out[r.ConceptUUID] = v
	}
	return out
}

func (s *Service) value(v any) any {
	switch t := v.(type) {
	case nil:
		return nil
	case []Request:
		nested := s.CreateObservations(t)
		if len(nested) == 0 {
			return nil
		}
		return nested
	case []any:
		kept := make([]any, 0, len(t))
		for _, item := range t {
			if item != nil {
				kept = append(kept, item)
			}
		}
		if len(kept) == 0 {
			return nil
		}
		return kept
	case *PhoneNumber:
		if t == nil {
			return nil
		}
		return *t
	}
	return v
}
