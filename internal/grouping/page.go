package grouping

// DefaultPageSize bounds the number of members shown in a single group.
const DefaultPageSize = 500

// PageCount returns the number of pages needed for n members.
func PageCount(n, pageSize int) int {
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	return (n + pageSize - 1) / pageSize
}

// Page returns the i-th page of members, or nil when out of range.
func Page[S any](members []S, pageSize, i int) []S {
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	start := i * pageSize
	if i < 0 || start >= len(members) {
		return nil
	}
	end := start + pageSize
	if end > len(members) {
		end = len(members)
	}
	return members[start:end]
}

// Paginate splits members into pages of at most pageSize.
func Paginate[S any](members []S, pageSize int) [][]S {
	n := PageCount(len(members), pageSize)
	pages := make([][]S, 0, n)
	for i := 0; i < n; i++ {
		pages = append(pages, Page(members, pageSize, i))
	}
	return pages
}
