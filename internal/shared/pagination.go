package shared

// Pagination contains offset metadata for paginated listings.
type Pagination struct {
	Limit   int  `json:"limit"`
	Offset  int  `json:"offset"`
	Total   int  `json:"total"`
	HasMore bool `json:"has_more"`
}

// NewPagination computes pagination metadata. returned is the number of rows
// on the current page.
func NewPagination(limit, offset, total, returned int) Pagination {
	if offset < 0 {
		offset = 0
	}
	return Pagination{
		Limit:   limit,
		Offset:  offset,
		Total:   total,
		HasMore: offset+returned < total,
	}
}
