package web

//go:generate templ generate -f page.templ

import (
	"fmt"
	"strconv"

	"github.com/JonMunkholm/equipment-analytics/internal/core"
	"github.com/a-h/templ"
)

func uploadedAt(ds core.Dataset) string {
	return ds.CreatedAt.UTC().Format("2006-01-02 15:04 UTC")
}

func twoDecimals(v float64) string {
	return strconv.FormatFloat(v, 'f', 2, 64)
}

// datasetURL links to one of the dataset API routes.
func datasetURL(route string, id int64) templ.SafeURL {
	return templ.SafeURL(fmt.Sprintf("/api/%s/%d", route, id))
}
