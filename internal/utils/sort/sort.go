package sort

import (
	"fmt"
	"strings"

	"entgo.io/ent/dialect/sql"
)

// Method orders by one column
type Method struct {
	Name string
	Desc bool
}

func Contains[T comparable](s []T, e T) bool {
	for _, v := range s {
		if v == e {
			return true
		}
	}
	return false
}

// Parse reads "name:desc,created_at" style sort parameters
func Parse(raw string) []Method {
	var methods []Method
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		name, dir, _ := strings.Cut(part, ":")
		methods = append(methods, Method{
			Name: strings.TrimSpace(name),
			Desc: strings.EqualFold(strings.TrimSpace(dir), "desc"),
		})
	}
	return methods
}

// GetSort builds an ORDER BY modifier restricted to the allowed columns
func GetSort(columns []string, sorts []Method) (func(s *sql.Selector), error) {
	for _, m := range sorts {
		if !Contains(columns, m.Name) {
			return nil, fmt.Errorf("column %q not found", m.Name)
		}
	}
	return func(s *sql.Selector) {
		values := make([]string, 0, len(sorts))
		for _, m := range sorts {
			if m.Desc {
				values = append(values, sql.Desc(s.C(m.Name)))
			} else {
				values = append(values, sql.Asc(s.C(m.Name)))
			}
		}
		if len(values) > 0 {
			s.OrderBy(values...)
		}
	}, nil
}
