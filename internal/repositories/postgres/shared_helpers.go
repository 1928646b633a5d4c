package postgres

import (
	"fmt"

	"gorm.io/gorm"
)

// applySort orders a query by a whitelisted column. Unknown columns fall
// back to created_at so caller input never reaches the ORDER BY clause raw.
func applySort(query *gorm.DB, sortBy, sortOrder string, allowed map[string]string) *gorm.DB {
	column, ok := allowed[sortBy]
	if !ok {
		column = "created_at"
	}
	direction := "DESC"
	if sortOrder == "asc" {
		direction = "ASC"
	}
	return query.Order(fmt.Sprintf("%s %s", column, direction))
}

// applyPagination applies limit/offset with a sane default page size.
func applyPagination(query *gorm.DB, limit, offset int) *gorm.DB {
	if limit <= 0 {
		limit = 20
	}
	if limit > 100 {
		limit = 100
	}
	if offset < 0 {
		offset = 0
	}
	return query.Limit(limit).Offset(offset)
}
