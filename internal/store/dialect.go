package store

import "strconv"

// Dialect covers what differs between the two supported databases: driver
// name, placeholder syntax, bookkeeping DDL and error codes.
type Dialect interface {
	Name() string
	DriverName() string
	NewParamBuilder() ParamBuilder
	SystemTablesSQL() string
	// MapError wraps known constraint failures with ErrUniqueViolation.
	MapError(err error) error
}

// ParamBuilder collects query arguments and hands out numbered placeholders
// ($1 for postgres, ?1 for sqlite).
type ParamBuilder interface {
	Add(v any) string
	Params() []any
}

func NewDialect(driver string) Dialect {
	if driver == "sqlite" {
		return &SQLiteDialect{}
	}
	return &PostgresDialect{}
}

type paramBuilder struct {
	marker string
	params []any
}

func (p *paramBuilder) Add(v any) string {
	p.params = append(p.params, v)
	return p.marker + strconv.Itoa(len(p.params))
}

func (p *paramBuilder) Params() []any { return p.params }
