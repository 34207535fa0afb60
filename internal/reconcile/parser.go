package reconcile

import (
	"fmt"
	"strconv"
	"strings"
)

// parsedCounts holds one row's numeric inputs after validation.
type parsedCounts struct {
	pack     *float64
	base     *float64
	minStock *float64
	field    InputField
}

// parseCounts validates a row's count cells. errMsg is empty on success.
// A malformed min-stock cell never invalidates the row; the count itself is
// still trusted and only the threshold change is dropped.
func parseCounts(line UploadLine) (parsedCounts, string) {
	var out parsedCounts

	packRaw := strings.TrimSpace(line.PackCount)
	baseRaw := strings.TrimSpace(line.BaseCount)
	if packRaw == "" && baseRaw == "" {
		return out, msgMissingCount
	}
	if packRaw != "" {
		v, err := strconv.ParseFloat(packRaw, 64)
		if err != nil || v < 0 {
			return out, msgInvalidPackStock
		}
		out.pack = &v
	}
	if baseRaw != "" {
		v, err := strconv.ParseFloat(baseRaw, 64)
		if err != nil || v < 0 {
			return out, msgInvalidBaseStock
		}
		out.base = &v
	}

	switch {
	case out.pack != nil && out.base != nil:
		out.field = InputBoth
	case out.pack != nil:
		out.field = InputPack
	default:
		out.field = InputBase
	}

	if minRaw := strings.TrimSpace(line.MinStock); minRaw != "" {
		if v, err := strconv.ParseFloat(minRaw, 64); err == nil && v >= 0 {
			out.minStock = &v
		}
	}
	return out, ""
}

// rawInput renders the row as submitted, for invalid-row reporting.
func rawInput(line UploadLine) string {
	parts := []string{}
	if line.ItemID != 0 {
		parts = append(parts, fmt.Sprintf("id=%d", line.ItemID))
	}
	if line.ItemType != "" || line.ItemName != "" {
		parts = append(parts, fmt.Sprintf("%s/%s", line.ItemType, line.ItemName))
	}
	if line.PackCount != "" {
		parts = append(parts, "pack="+line.PackCount)
	}
	if line.BaseCount != "" {
		parts = append(parts, "base="+line.BaseCount)
	}
	if line.MinStock != "" {
		parts = append(parts, "min="+line.MinStock)
	}
	return strings.Join(parts, " ")
}
