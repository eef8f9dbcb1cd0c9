package exporter

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/avni/avni-server/internal/domain/observation"
	"github.com/avni/avni-server/internal/domain/schema"
)

const (
	selectedAnswer   = "1"
	unselectedAnswer = "0"

	// DateLayout is how dates are written. Import reads the same layout.
	DateLayout     = "2006-01-02 15:04:05"
	calendarLayout = "2006-01-02"
)

// Quote wraps non-empty text in double quotes, doubling embedded quotes.
func Quote(s string) string {
	if s == "" {
		return s
	}
	return `"` + strings.ReplaceAll(s, `"`, `""`) + `"`
}

// Renderer turns stored values into export cells.
type Renderer struct {
	loc *time.Location
}

func NewRenderer(loc *time.Location) Renderer {
	if loc == nil {
		loc = time.UTC
	}
	return Renderer{loc: loc}
}

// Obs renders the value of one form element. Multi-select coded elements
// yield one cell per answer; everything else yields one cell.
func (r Renderer) Obs(fe *schema.FormElement, val any) []string {
	concept := fe.Concept
	switch dt := concept.DataType; {
	case dt == schema.DataTypeCoded:
		if fe.IsMultiSelect() {
			return r.answerMarkers(concept, val)
		}
		return []string{r.answerName(concept, val)}
	case dt.IsDate():
		return []string{r.date(val)}
	case dt.IsMedia():
		return []string{r.media(val)}
	case dt == schema.DataTypePhoneNumber:
		return []string{Quote(phoneNumber(val))}
	case dt == schema.DataTypeNumeric:
		return []string{Quote(number(val))}
	}
	return []string{Quote(text(val))}
}

// Width is the number of cells Obs yields for fe.
func Width(fe *schema.FormElement) int {
	if fe.Concept.DataType == schema.DataTypeCoded && fe.IsMultiSelect() {
		return len(fe.Concept.SortedAnswers())
	}
	return 1
}

// Static renders a static field value.
func (r Renderer) Static(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return Quote(t)
	case int64:
		return strconv.FormatInt(t, 10)
	case bool:
		return strconv.FormatBool(t)
	case calendarDate:
		return t.Format(calendarLayout)
	case time.Time:
		if t.IsZero() {
			return ""
		}
		return t.In(r.loc).Format(DateLayout)
	}
	return Quote(fmt.Sprint(v))
}

func (r Renderer) answerMarkers(concept *schema.Concept, val any) []string {
	chosen := make(map[string]bool)
	for _, v := range observation.ValueList(val) {
		chosen[fmt.Sprint(v)] = true
	}
	answers := concept.SortedAnswers()
	out := make([]string, len(answers))
	for i, a := range answers {
		if chosen[a.AnswerConcept.UUID] {
			out[i] = selectedAnswer
		} else {
			out[i] = unselectedAnswer
		}
	}
	return out
}

func (r Renderer) answerName(concept *schema.Concept, val any) string {
	list := observation.ValueList(val)
	if len(list) != 1 {
		return ""
	}
	name, ok := concept.AnswerName(fmt.Sprint(list[0]))
	if !ok {
		return ""
	}
	return Quote(name)
}

func (r Renderer) date(val any) string {
	s, ok := val.(string)
	if !ok || s == "" {
		return ""
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return Quote(s)
	}
	return t.In(r.loc).Format(DateLayout)
}

func (r Renderer) media(val any) string {
	var uris []string
	for _, v := range observation.ValueList(val) {
		if v != nil {
			uris = append(uris, fmt.Sprint(v))
		}
	}
	return Quote(strings.Join(uris, ","))
}

func phoneNumber(val any) string {
	switch t := val.(type) {
	case nil:
		return ""
	case observation.PhoneNumber:
		return t.PhoneNumber
	case map[string]any:
		if n, ok := t["phoneNumber"].(string); ok {
			return n
		}
	}
	return text(val)
}

func number(val any) string {
	switch t := val.(type) {
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case json.Number:
		return t.String()
	}
	return text(val)
}

func text(val any) string {
	switch t := val.(type) {
	case nil:
		return ""
	case string:
		return t
	case map[string]any, observation.Collection, []any:
		b, err := json.Marshal(t)
		if err != nil {
			return fmt.Sprint(t)
		}
		return string(b)
	}
	return fmt.Sprint(val)
}
