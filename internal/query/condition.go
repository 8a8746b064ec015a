package query

import (
	"time"

	"github.com/jackc/pgx/v5/pgtype"
	"github.com/rs/zerolog/log"
)

// Condition is a filter resolved against one request.
type Condition struct {
	Field         string   `json:"-"`
	Parameter     string   `json:"field"`
	Relation      Relation `json:"relation"`
	Value         any      `json:"value"`
	CaseSensitive bool     `json:"-"`
}

// Values returns the condition value as a sequence; scalars are wrapped.
func (c Condition) Values() []any {
	if items, ok := sequence(c.Value); ok {
		return items
	}
	if c.Value == nil {
		return nil
	}
	return []any{c.Value}
}

// HTMLValue formats the value the way HTML inputs of the filter's type expect it.
func (c Condition) HTMLValue() any {
	switch v := c.Value.(type) {
	case time.Time:
		if v.Hour() == 0 && v.Minute() == 0 && v.Second() == 0 && v.Nanosecond() == 0 {
			return v.Format("2006-01-02")
		}
		return v.Format("2006-01-02T15:04:05")
	case pgtype.Time:
		d := time.Duration(v.Microseconds) * time.Microsecond
		return time.Time{}.Add(d).Format("15:04:05")
	case pgtype.Numeric:
		f, err := v.Float64Value()
		if err != nil {
			return nil
		}
		return f.Float64
	}
	return c.Value
}

// relations that take a single value; anything else accepts a sequence
var scalarRelations = map[Relation]bool{
	RelGreaterThan:    true,
	RelGreaterOrEqual: true,
	RelLessThan:       true,
	RelLessOrEqual:    true,
	RelStartsWith:     true,
	RelEndsWith:       true,
	RelContains:       true,
}

// Resolve binds request parameters to the definitions, in declaration order.
// Lenient definitions drop conditions they cannot resolve; strict ones return
// a *RelationError or *ValueError.
func Resolve(defs []FilterDefinition, params Params) ([]Condition, error) {
	conditions := make([]Condition, 0, len(defs))
	for _, def := range defs {
		c, ok, err := resolveOne(def, params)
		if err != nil {
			return nil, err
		}
		if ok {
			conditions = append(conditions, c)
		}
	}
	return conditions, nil
}

func resolveOne(def FilterDefinition, params Params) (Condition, bool, error) {
	raw := params.Value(def.ParameterName())

	var rel Relation
	if rawRel, ok := params.First(def.RelationParameterName()); ok && rawRel != "" {
		r, err := def.Relation(rawRel, raw)
		if err != nil {
			return Condition{}, false, err
		}
		rel = r
	} else {
		rel = DefaultRelation(raw)
	}

	if !def.ValidRelation(rel) {
		if def.IsStrict() && !isBlank(raw) {
			return Condition{}, false, &RelationError{Field: def.ParameterName(), Relation: string(rel), Allowed: def.Relations()}
		}
		log.Debug().
			Str("filter", def.ParameterName()).
			Str("relation", string(rel)).
			Msg("Dropping filter: default relation not allowed for kind")
		return Condition{}, false, nil
	}

	c := Condition{
		Field:         def.Name(),
		Parameter:     def.ParameterName(),
		Relation:      rel,
		CaseSensitive: def.IsCaseSensitive(),
	}

	if rel.IsNullCheck() {
		return c, true, nil
	}
	if isBlank(raw) {
		return Condition{}, false, nil
	}

	seq := IsSequence(raw)
	if (rel == RelBetween && !seq) || (scalarRelations[rel] && seq) {
		if def.IsStrict() {
			return Condition{}, false, &ValueError{Field: def.ParameterName(), Kind: def.Kind(), Value: raw}
		}
		log.Debug().
			Str("filter", def.ParameterName()).
			Str("relation", string(rel)).
			Msg("Dropping filter: value shape does not match relation")
		return Condition{}, false, nil
	}

	v, err := def.Cast(raw)
	if err != nil {
		return Condition{}, false, err
	}
	if isBlank(v) {
		log.Debug().
			Str("filter", def.ParameterName()).
			Interface("value", raw).
			Msg("Dropping filter: value could not be cast")
		return Condition{}, false, nil
	}

	c.Value = v
	return c, true, nil
}
