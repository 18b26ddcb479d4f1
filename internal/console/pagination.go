package console

import (
	"fmt"
	"strings"
)

// PaginationParams describes one paginated listing.
type PaginationParams struct {
	Title    string
	Lines    []string
	PageSize int
}

// paginate prints Lines page by page. After each page except the last the operator presses
// Enter for the next page or anything else to stop.
func (c *Console) paginate(params PaginationParams) {
	perPage := params.PageSize
	if perPage <= 0 {
		perPage = len(params.Lines)
	}
	if perPage == 0 {
		return
	}
	pages := (len(params.Lines) + perPage - 1) / perPage

	for page := 0; page < pages; page++ {
		start := page * perPage
		end := start + perPage
		if end > len(params.Lines) {
			end = len(params.Lines)
		}

		var b strings.Builder
		b.WriteString(params.Title)
		if pages > 1 {
			fmt.Fprintf(&b, " (page %d of %d)", page+1, pages)
		}
		for i, line := range params.Lines[start:end] {
			fmt.Fprintf(&b, "\n%d. %s", start+i+1, line)
		}
		c.println(b.String())

		if page == pages-1 {
			return
		}
		c.print("Press Enter for more, any other key to stop: ")
		answer, ok := c.readLine()
		if !ok || answer != "" {
			return
		}
	}
}
