package server

import (
	"net/http"
	"reflect"
	"strconv"
)

const (
	defaultPerPage = 50
	maxPerPage     = 200
)

// ListPayload is the paginated list body placed inside the data
// envelope.
type ListPayload struct {
	Items   any `json:"items"`
	Page    int `json:"page"`
	PerPage int `json:"per_page"`
	Total   int `json:"total"`
}

// parsePage reads ?page= (1-based) and ?per_page= with defaults and
// clamping. Non-numeric or non-positive values fall back to defaults.
func parsePage(r *http.Request) (page, perPage int) {
	page = 1
	if v, err := strconv.Atoi(r.URL.Query().Get("page")); err == nil && v > 0 {
		page = v
	}

	perPage = defaultPerPage
	if v, err := strconv.Atoi(r.URL.Query().Get("per_page")); err == nil && v > 0 {
		perPage = v
	}
	if perPage > maxPerPage {
		perPage = maxPerPage
	}
	return page, perPage
}

// JSONPage writes a paginated list envelope. Nil item slices serialize
// as [].
func JSONPage(w http.ResponseWriter, items any, page, perPage, total int) {
	if v := reflect.ValueOf(items); !v.IsValid() || (v.Kind() == reflect.Slice && v.IsNil()) {
		items = []any{}
	}
	JSON(w, http.StatusOK, ListPayload{
		Items:   items,
		Page:    page,
		PerPage: perPage,
		Total:   total,
	})
}
