package automation

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/monoco-dev/fabric/pkg/eventbus"
)

// parseCondition turns a trigger's small comparison expression into a
// router condition function. Grounded line-for-line on
// AutomationOrchestrator._parse_condition: it supports "==" and "!="
// against a named field's value (stringified before comparing), or a
// bare ">=" threshold check against any top-level payload key when no
// field is named. An expression this parser can't recognize matches
// every event, same as the original's fallback "return True".
func parseCondition(conditionStr, field string) func(eventbus.Event) bool {
	return func(event eventbus.Event) bool {
		if field != "" {
			value, _ := event.Get(field)

			switch {
			case strings.Contains(conditionStr, "=="):
				expected := trimOperand(conditionStr, "==")
				return fmt.Sprint(value) == expected
			case strings.Contains(conditionStr, "!="):
				expected := trimOperand(conditionStr, "!=")
				return fmt.Sprint(value) != expected
			}
		}

		if strings.Contains(conditionStr, ">=") {
			parts := strings.SplitN(conditionStr, ">=", 2)
			if len(parts) != 2 {
				return true
			}

			key := strings.TrimSpace(parts[0])

			threshold, err := strconv.Atoi(strings.TrimSpace(parts[1]))
			if err != nil {
				return true
			}

			count, _ := event.Get(key)

			return toInt(count) >= threshold
		}

		return true
	}
}

func trimOperand(conditionStr, op string) string {
	parts := strings.SplitN(conditionStr, op, 2)
	if len(parts) != 2 {
		return ""
	}

	return strings.Trim(strings.TrimSpace(parts[1]), `'"`)
}

func toInt(v any) int {
	switch n := v.(type) {
	case int:
		return n
	case int64:
		return int(n)
	case float64:
		return int(n)
	default:
		return 0
	}
}
