package store

type OffsetPage[T any] struct {
	Items      []T `json:"items"`
	Total      int `json:"total"`
	Page       int `json:"page"`
	PageSize   int `json:"page_size"`
	TotalPages int `json:"total_pages"`
}

// Paginate slices items for a 1-based page. Out of range pages are empty.
func Paginate[T any](items []T, page, pageSize int) OffsetPage[T] {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = 20
	}

	total := len(items)
	totalPages := total / pageSize
	if total%pageSize > 0 {
		totalPages++
	}

	out := OffsetPage[T]{
		Items:      items[:0],
		Total:      total,
		Page:       page,
		PageSize:   pageSize,
		TotalPages: totalPages,
	}
	if page-1 >= totalPages {
		return out
	}

	start := (page - 1) * pageSize
	end := min(start+pageSize, total)
	out.Items = items[start:end]
	return out
}
