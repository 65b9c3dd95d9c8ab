package service

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/hsyntes/authentication-authorization-security/internal/core/domain"
	"github.com/hsyntes/authentication-authorization-security/internal/core/ports"
)

const (
	defaultPageLimit = 20
	maxPageLimit     = 100
	// maxPage keeps (page-1)*limit far inside int64.
	maxPage = 1_000_000
)

type fieldKind int

const (
	stringField fieldKind = iota
	timeField
)

// listableFields are the public user fields a listing may filter, sort or
// project on. Credentials, reset tokens and the active flag are absent on
// purpose, so no query can reach them.
var listableFields = map[string]fieldKind{
	"firstname": stringField,
	"lastname":  stringField,
	"username":  stringField,
	"email":     stringField,
	"role":      stringField,
	"birthDate": timeField,
	"createdAt": timeField,
	"updatedAt": timeField,
}

// reservedParams control paging and shaping rather than filtering.
var reservedParams = map[string]bool{
	"page":            true,
	"limit":           true,
	"sort":            true,
	"fields":          true,
	"includeInactive": true,
}

var rangeOps = map[string]ports.FilterOp{
	"gt":  ports.OpGt,
	"gte": ports.OpGte,
	"lt":  ports.OpLt,
	"lte": ports.OpLte,
}

// parseListQuery turns raw query parameters into a ListUsersFilter.
//
//	?role=guide&birthDate[gte]=1990-01-01&sort=-createdAt,username&fields=username,email&page=2&limit=10
func parseListQuery(q map[string][]string) (ports.ListUsersFilter, error) {
	f := ports.ListUsersFilter{Page: 1, Limit: defaultPageLimit}

	keys := make([]string, 0, len(q))
	for k := range q {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, key := range keys {
		values := q[key]
		if len(values) == 0 {
			continue
		}
		last := strings.TrimSpace(values[len(values)-1])

		if reservedParams[key] {
			if err := applyReserved(&f, key, last); err != nil {
				return ports.ListUsersFilter{}, err
			}
			continue
		}

		field, op, err := splitOperator(key)
		if err != nil {
			return ports.ListUsersFilter{}, err
		}
		kind, ok := listableFields[field]
		if !ok {
			return ports.ListUsersFilter{}, badQuery("Unsupported filter field: %s", field)
		}
		for _, raw := range values {
			value, err := convertValue(field, kind, strings.TrimSpace(raw))
			if err != nil {
				return ports.ListUsersFilter{}, err
			}
			f.Conditions = append(f.Conditions, ports.FilterCondition{Field: field, Op: op, Value: value})
		}
	}
	return f, nil
}

func applyReserved(f *ports.ListUsersFilter, key, value string) error {
	switch key {
	case "page":
		n, err := strconv.Atoi(value)
		if err != nil || n < 1 {
			return badQuery("page must be a positive integer")
		}
		if n > maxPage {
			return badQuery("page must be at most %d", maxPage)
		}
		f.Page = n
	case "limit":
		n, err := strconv.Atoi(value)
		if err != nil || n < 1 {
			return badQuery("limit must be a positive integer")
		}
		f.Limit = min(n, maxPageLimit)
	case "includeInactive":
		b, err := strconv.ParseBool(value)
		if err != nil {
			return badQuery("includeInactive must be true or false")
		}
		f.IncludeInactive = b
	case "sort":
		seen := make(map[string]bool)
		for _, part := range splitList(value) {
			desc := strings.HasPrefix(part, "-")
			name := strings.TrimPrefix(part, "-")
			if !selectable(name) {
				return badQuery("Unsupported sort field: %s", name)
			}
			if seen[name] {
				return badQuery("Duplicate sort field: %s", name)
			}
			seen[name] = true
			f.Sort = append(f.Sort, ports.SortField{Field: name, Desc: desc})
		}
	case "fields":
		for _, name := range splitList(value) {
			if !selectable(name) {
				return badQuery("Unsupported field: %s", name)
			}
			f.Fields = append(f.Fields, name)
		}
	}
	return nil
}

// splitOperator splits "birthDate[gte]" into ("birthDate", OpGte).
// A bare name is an equality filter.
func splitOperator(key string) (string, ports.FilterOp, error) {
	open := strings.IndexByte(key, '[')
	if open < 0 {
		return key, ports.OpEq, nil
	}
	if !strings.HasSuffix(key, "]") {
		return "", "", badQuery("Malformed filter: %s", key)
	}
	op, ok := rangeOps[key[open+1:len(key)-1]]
	if !ok {
		return "", "", badQuery("Unsupported operator in filter: %s", key)
	}
	return key[:open], op, nil
}

func convertValue(field string, kind fieldKind, raw string) (any, error) {
	if kind == timeField {
		t, err := parseDate(raw)
		if err != nil {
			return nil, badQuery("%s must be a date", field)
		}
		return t, nil
	}
	if field == "username" || field == "email" {
		return normalize(raw), nil
	}
	return raw, nil
}

func selectable(name string) bool {
	if name == "id" {
		return true
	}
	_, ok := listableFields[name]
	return ok
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// parseDate accepts RFC 3339 timestamps and plain calendar dates.
func parseDate(s string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t.UTC(), nil
	}
	t, err := time.Parse(time.DateOnly, s)
	if err != nil {
		return time.Time{}, err
	}
	return t.UTC(), nil
}

func badQuery(format string, args ...any) error {
	return domain.NewError(domain.KindBadRequest, fmt.Sprintf(format, args...))
}
