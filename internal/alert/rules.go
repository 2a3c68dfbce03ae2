package alert

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// exprPattern matches "metric op value".
var exprPattern = regexp.MustCompile(`^(\w+)\s*(>=|<=|==|!=|>|<)\s*([\d.]+)$`)

// Rule defines an alert rule.
type Rule struct {
	Name     string        `mapstructure:"name"`
	Expr     string        `mapstructure:"expr"`
	For      time.Duration `mapstructure:"for"`
	Severity string        `mapstructure:"severity"`
	Message  string        `mapstructure:"message"`
}

type condition struct {
	metric    string
	op        string
	threshold float64
}

func parseExpr(expr string) (condition, error) {
	matches := exprPattern.FindStringSubmatch(strings.TrimSpace(expr))
	if len(matches) != 4 {
		return condition{}, fmt.Errorf("invalid expression %q, want \"metric op value\"", expr)
	}
	threshold, err := strconv.ParseFloat(matches[3], 64)
	if err != nil {
		return condition{}, fmt.Errorf("invalid threshold in %q: %w", expr, err)
	}
	return condition{metric: matches[1], op: matches[2], threshold: threshold}, nil
}

// Validate checks that the rule is named and its expression parses.
func (r *Rule) Validate() error {
	if r.Name == "" {
		return fmt.Errorf("alert rule needs a name")
	}
	if r.For < 0 {
		return fmt.Errorf("alert rule %s: for cannot be negative", r.Name)
	}
	if _, err := parseExpr(r.Expr); err != nil {
		return fmt.Errorf("alert rule %s: %w", r.Name, err)
	}
	return nil
}

// Evaluate evaluates the rule expression against metrics. A malformed
// expression or a missing metric never triggers.
func (r *Rule) Evaluate(metrics map[string]float64) bool {
	cond, err := parseExpr(r.Expr)
	if err != nil {
		return false
	}

	value, exists := metrics[cond.metric]
	if !exists {
		return false
	}

	switch cond.op {
	case ">":
		return value > cond.threshold
	case "<":
		return value < cond.threshold
	case ">=":
		return value >= cond.threshold
	case "<=":
		return value <= cond.threshold
	case "==":
		return value == cond.threshold
	case "!=":
		return value != cond.threshold
	default:
		return false
	}
}

// FormatMessage formats the alert message and appends the current value
// of the rule's metric when it is known.
func (r *Rule) FormatMessage(metrics map[string]float64) string {
	msg := fmt.Sprintf("[%s] %s: %s", strings.ToUpper(r.Severity), r.Name, r.Message)
	if cond, err := parseExpr(r.Expr); err == nil {
		if v, ok := metrics[cond.metric]; ok {
			msg += fmt.Sprintf(" (%s=%s)", cond.metric, strconv.FormatFloat(v, 'f', -1, 64))
		}
	}
	return msg
}
