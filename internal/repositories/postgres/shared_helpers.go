package postgres

import (
	"fmt"

	"gorm.io/gorm"

	"github.com/swad-platform/examprint-service/internal/repositories"
)

// getDB prefers an explicit transaction over the repository's base handle.
func getDB(base *gorm.DB, tx *gorm.DB) *gorm.DB {
	if tx != nil {
		return tx
	}
	return base
}

func applyPrintFilters(query *gorm.DB, filters repositories.PrintFilters) *gorm.DB {
	if filters.Sent != nil {
		query = query.Where("sent = ?", *filters.Sent)
	}
	if filters.UserID != nil {
		query = query.Where("user_id = ?", *filters.UserID)
	}
	if filters.DateFrom != nil {
		query = query.Where("started_at >= ?", *filters.DateFrom)
	}
	if filters.DateTo != nil {
		query = query.Where("started_at <= ?", *filters.DateTo)
	}
	return query
}

func applyPrintPaginationAndSort(query *gorm.DB, filters repositories.PrintFilters) *gorm.DB {
	sortBy := filters.SortBy
	switch sortBy {
	case "started_at", "score", "user_id":
	default:
		sortBy = "started_at"
	}
	sortOrder := filters.SortOrder
	if sortOrder != "asc" && sortOrder != "desc" {
		sortOrder = "desc"
	}
	query = query.Order(fmt.Sprintf("%s %s", sortBy, sortOrder))

	if filters.Limit > 0 {
		query = query.Limit(filters.Limit)
	}
	if filters.Offset > 0 {
		query = query.Offset(filters.Offset)
	}
	return query
}
