package mongo

import (
	"go.mongodb.org/mongo-driver/bson"

	"github.com/hsyntes/authentication-authorization-security/internal/core/ports"
)

// hiddenFields are excluded from every listing projection.
var hiddenFields = []string{
	"password",
	"active",
	"passwordResetToken",
	"passwordResetTokenExpiresIn",
	"emailResetToken",
	"emailResetTokenExpiresIn",
}

// listFilter translates validated listing conditions into a query document.
// Inactive users are excluded unless the filter asks for them.
func listFilter(f ports.ListUsersFilter) bson.D {
	var clauses bson.A
	if !f.IncludeInactive {
		clauses = append(clauses, bson.M{"active": bson.M{"$ne": false}})
	}
	for _, c := range f.Conditions {
		field := documentField(c.Field)
		if c.Op == ports.OpEq {
			clauses = append(clauses, bson.M{field: c.Value})
			continue
		}
		clauses = append(clauses, bson.M{field: bson.M{"$" + string(c.Op): c.Value}})
	}

	if len(clauses) == 0 {
		return bson.D{}
	}
	return bson.D{{Key: "$and", Value: clauses}}
}

// listSort keeps the requested order and breaks ties on _id so paging is stable.
func listSort(fields []ports.SortField) bson.D {
	sort := bson.D{}
	hasID := false
	for _, s := range fields {
		dir := 1
		if s.Desc {
			dir = -1
		}
		key := documentField(s.Field)
		hasID = hasID || key == "_id"
		sort = append(sort, bson.E{Key: key, Value: dir})
	}
	if !hasID {
		sort = append(sort, bson.E{Key: "_id", Value: 1})
	}
	return sort
}

// listProjection includes only the requested public fields, or excludes the
// hidden ones when no selection was made.
func listProjection(fields []string) bson.M {
	proj := bson.M{}
	if len(fields) == 0 {
		for _, f := range hiddenFields {
			proj[f] = 0
		}
		return proj
	}
	for _, f := range fields {
		proj[documentField(f)] = 1
	}
	return proj
}

func documentField(name string) string {
	if name == "id" {
		return "_id"
	}
	return name
}
