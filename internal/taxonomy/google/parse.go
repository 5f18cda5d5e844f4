package google

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"trackitall/internal/core"
)

// parseCategories converts a values matrix (as returned by the Sheets API)
// into categories. Blank and "#" comment rows are ignored; rows with a
// non-integer id or an empty name are counted as skipped. The first row
// per id wins.
func parseCategories(values [][]interface{}) ([]core.Category, int) {
	var (
		out     []core.Category
		skipped int
	)
	seen := map[int]struct{}{}
	for _, row := range values {
		idStr := strings.TrimSpace(safeGet(row, 0))
		name := strings.TrimSpace(safeGet(row, 1))
		if idStr == "" && name == "" {
			continue
		}
		if strings.HasPrefix(idStr, "#") {
			continue
		}
		id, ok := parseID(idStr)
		if !ok || name == "" {
			skipped++
			continue
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, core.Category{ID: id, Name: name})
	}
	return out, skipped
}

// parseID accepts "3" as well as the "3.0" form number cells may render as.
func parseID(s string) (int, bool) {
	if id, err := strconv.Atoi(s); err == nil {
		return id, true
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || f != math.Trunc(f) || f < math.MinInt32 || f > math.MaxInt32 {
		return 0, false
	}
	return int(f), true
}

func safeGet(row []interface{}, i int) string {
	if i < 0 || i >= len(row) || row[i] == nil {
		return ""
	}
	return fmt.Sprint(row[i])
}
