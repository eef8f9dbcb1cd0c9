package importer

import (
	"context"
	"encoding/csv"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/avni/avni-server/internal/domain/observation"
	"github.com/avni/avni-server/internal/domain/schema"
)

var phoneNumberPattern = regexp.MustCompile(`^[0-9]{10}$`)

// MediaResolver turns an Image or Video cell into a stored media reference.
// oldValue is the current observation value, nil for new records.
type MediaResolver interface {
	ResolveForUpload(ctx context.Context, token string, oldValue any) (any, error)
}

// IdentityResolver turns a Subject or Location cell into an observation value.
type IdentityResolver interface {
	ResolveForUpload(ctx context.Context, fe *schema.FormElement, token string) (any, error)
}

// Context is what a single field coercion may read besides its own cell.
type Context struct {
	Row      Row
	OldValue any
	FormType schema.FormType
	Index    *schema.Index
}

// FieldResult is the outcome of coercing one field. A nil Value with no
// Errs means the field contributes nothing.
type FieldResult struct {
	Value any
	Errs  []string
}

// Failed reports whether the field produced any error message.
func (r FieldResult) Failed() bool { return len(r.Errs) > 0 }

// CoercerConfig configures value parsing.
type CoercerConfig struct {
	Location  *time.Location
	Delimiter rune
}

// Coercer converts raw cells into typed observation values.
type Coercer struct {
	media     MediaResolver
	subjects  IdentityResolver
	locations IdentityResolver
	loc       *time.Location
	delimiter rune
	logger    zerolog.Logger
}

// NewCoercer creates a coercer. Dates are read in cfg.Location, local time
// when unset, and multi-select cells split on cfg.Delimiter, a comma when
// unset.
func NewCoercer(cfg CoercerConfig, media MediaResolver, subjects, locations IdentityResolver, logger zerolog.Logger) *Coercer {
	if cfg.Location == nil {
		cfg.Location = time.Local
	}
	if cfg.Delimiter == 0 {
		cfg.Delimiter = ','
	}
	return &Coercer{
		media:     media,
		subjects:  subjects,
		locations: locations,
		loc:       cfg.Location,
		delimiter: cfg.Delimiter,
		logger:    logger.With().Str("component", "coercer").Logger(),
	}
}

// Coerce converts raw for fe.
func (c *Coercer) Coerce(ctx context.Context, fe *schema.FormElement, raw string, cc Context) FieldResult {
	concept := fe.Concept
	trimmed := strings.TrimSpace(raw)

	switch dt := concept.DataType; {
	case dt == schema.DataTypeCoded:
		if fe.IsMultiSelect() {
			var uuids []any
			for _, tok := range c.splitMultiSelect(raw) {
				a, err := concept.FindAnswerConcept(tok)
				if err != nil {
					return c.invalid(cc, concept, raw, err)
				}
				uuids = append(uuids, a.UUID)
			}
			return FieldResult{Value: uuids}
		}
		a, err := concept.FindAnswerConcept(trimmed)
		if err != nil {
			return c.invalid(cc, concept, raw, err)
		}
		return FieldResult{Value: a.UUID}

	case dt == schema.DataTypeNumeric:
		f, err := strconv.ParseFloat(trimmed, 64)
		if err != nil {
			return c.invalid(cc, concept, raw, err)
		}
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return c.invalid(cc, concept, raw, fmt.Errorf("%q is not a finite number", trimmed))
		}
		return FieldResult{Value: f}

	case dt.IsDate():
		if trimmed == "" {
			return FieldResult{}
		}
		iso, err := ToISODate(trimmed, c.loc)
		if err != nil {
			return c.invalid(cc, concept, raw, err)
		}
		return FieldResult{Value: iso}

	case dt.IsMedia():
		if c.media == nil {
			return c.invalid(cc, concept, raw, fmt.Errorf("no media store configured"))
		}
		if fe.IsMultiSelect() {
			var res FieldResult
			var refs []any
			for _, tok := range c.splitMultiSelect(raw) {
				ref, err := c.media.ResolveForUpload(ctx, tok, nil)
				if err != nil {
					res.Errs = append(res.Errs, err.Error())
					continue
				}
				refs = append(refs, ref)
			}
			if !res.Failed() {
				res.Value = refs
			}
			return res
		}
		ref, err := c.media.ResolveForUpload(ctx, trimmed, cc.OldValue)
		if err != nil {
			return FieldResult{Errs: []string{err.Error()}}
		}
		return FieldResult{Value: ref}

	case dt == schema.DataTypeSubject:
		return c.identity(ctx, c.subjects, fe, raw, cc)

	case dt == schema.DataTypeLocation:
		return c.identity(ctx, c.locations, fe, raw, cc)

	case dt == schema.DataTypePhoneNumber:
		if trimmed == "" {
			return FieldResult{}
		}
		if !phoneNumberPattern.MatchString(trimmed) {
			return FieldResult{Errs: []string{
				fmt.Sprintf("Invalid %s provided %s. Please provide 10 digit number.", concept.Name, trimmed),
			}}
		}
		return FieldResult{Value: observation.PhoneNumber{PhoneNumber: trimmed, Verified: false}}

	case dt == schema.DataTypeQuestionGroup:
		return c.questionGroup(ctx, fe, cc)

	case dt == schema.DataTypeText, dt == schema.DataTypeNA:
		return FieldResult{Value: trimmed}
	}
	return c.invalid(cc, concept, raw, fmt.Errorf("unsupported data type %s", concept.DataType))
}

func (c *Coercer) identity(ctx context.Context, r IdentityResolver, fe *schema.FormElement, raw string, cc Context) FieldResult {
	if r == nil {
		return c.invalid(cc, fe.Concept, raw, fmt.Errorf("no resolver for %s", fe.Concept.DataType))
	}
	v, err := r.ResolveForUpload(ctx, fe, raw)
	if err != nil {
		return c.invalid(cc, fe.Concept, raw, err)
	}
	return FieldResult{Value: v}
}

// questionGroup coerces every non-blank child cell found at the
// "group|child" header. Children never see an old value.
func (c *Coercer) questionGroup(ctx context.Context, fe *schema.FormElement, cc Context) FieldResult {
	var res FieldResult
	var requests []observation.Request
	if cc.Index == nil {
		return res
	}
	for _, child := range cc.Index.Children(fe) {
		raw := cc.Row.Get(groupHeader(fe, child))
		if strings.TrimSpace(raw) == "" {
			continue
		}
		childRes := c.Coerce(ctx, child, raw, Context{Row: cc.Row, FormType: cc.FormType, Index: cc.Index})
		res.Errs = append(res.Errs, childRes.Errs...)
		requests = append(requests, observation.Request{
			ConceptName: child.Concept.Name,
			ConceptUUID: child.Concept.UUID,
			Value:       childRes.Value,
		})
	}
	res.Value = requests
	return res
}

func (c *Coercer) invalid(cc Context, concept *schema.Concept, raw string, err error) FieldResult {
	c.logger.Error().Err(err).
		Int("line", cc.Row.Line).
		Str("concept", concept.Name).
		Str("value", raw).
		Msg("error processing observation")
	return FieldResult{Errs: []string{fmt.Sprintf("Invalid answer '%s' for '%s'", raw, concept.Name)}}
}

// splitMultiSelect splits on the delimiter. Tokens may be double quoted to
// carry the delimiter itself.
func (c *Coercer) splitMultiSelect(raw string) []string {
	r := csv.NewReader(strings.NewReader(raw))
	r.Comma = c.delimiter
	r.LazyQuotes = true
	r.TrimLeadingSpace = true
	rec, err := r.Read()
	if err != nil {
		rec = strings.Split(raw, string(c.delimiter))
	}
	out := make([]string, 0, len(rec))
	for _, tok := range rec {
		tok = strings.Trim(strings.TrimSpace(tok), `"`)
		if tok != "" {
			out = append(out, tok)
		}
	}
	return out
}

func groupHeader(group, child *schema.FormElement) string {
	return group.Concept.Name + groupSeparator + child.Concept.Name
}
