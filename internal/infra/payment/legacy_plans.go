package payment

import (
	"fmt"
	"strings"

	"pix-membership-platform/internal/domain"
)

const legacyPlansMarker = "Plans:["

// ParseLegacyPlanList extracts plan ids from a charge description written by
// older integrations, which embedded them in free text:
//
//	<prefix> | ... - Plans:[id1,id2,...]
//
// It is a compatibility decoder only; new charges carry structured metadata
// and never reach this path.
func ParseLegacyPlanList(description string) ([]string, error) {
	start := strings.Index(description, legacyPlansMarker)
	if start < 0 {
		return nil, fmt.Errorf("%w: no plan list in description", domain.ErrInvalidArgument)
	}
	rest := description[start+len(legacyPlansMarker):]
	end := strings.Index(rest, "]")
	if end < 0 {
		return nil, fmt.Errorf("%w: unterminated plan list", domain.ErrInvalidArgument)
	}
	var ids []string
	for _, part := range strings.Split(rest[:end], ",") {
		if id := strings.TrimSpace(part); id != "" {
			ids = append(ids, id)
		}
	}
	if len(ids) == 0 {
		return nil, fmt.Errorf("%w: empty plan list", domain.ErrInvalidArgument)
	}
	return ids, nil
}

// FormatLegacyDescription writes the description new charges still carry so
// that the legacy decoder can resolve them if metadata is ever stripped.
func FormatLegacyDescription(prefix string, planIDs []string) string {
	return fmt.Sprintf("%s - Plans:[%s]", prefix, strings.Join(planIDs, ","))
}
