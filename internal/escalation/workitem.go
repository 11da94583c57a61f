package escalation

import (
	"fmt"
	"strconv"
	"strings"
)

// WorkItem is a single tracker record as returned by a Source. Fields is keyed by
// the tracker's field reference names.
type WorkItem struct {
	ID     int            `json:"id" yaml:"id"`
	Fields map[string]any `json:"fields" yaml:"fields"`
}

// FieldMap names the tracker fields the monitor reads
type FieldMap struct {
	State        string
	CreatedDate  string
	Title        string
	Description  string
	AssignedTo   string
	Severity     string
	Customer     string
	TicketNumber string
	// Platform lists the annotation fields consulted by the platform rule, in order
	Platform []string
}

// DefaultFieldMap returns the reference names used by the support project
func DefaultFieldMap() FieldMap {
	return FieldMap{
		State:        "System.State",
		CreatedDate:  "System.CreatedDate",
		Title:        "System.Title",
		Description:  "System.Description",
		AssignedTo:   "System.AssignedTo",
		Severity:     "Microsoft.VSTS.Common.Severity",
		Customer:     "VaronisSupport.SupportTicket.CustomerName",
		TicketNumber: "VaronisSupport.SupportTicket.TicketNumber",
		Platform:     []string{"VaronisSupport.SupportTicket.Platform", "VaronisSupport.SupportTicket.Product"},
	}
}

// Field returns the string form of a field, or an empty string when the field is
// absent. Identity references resolve to their display name.
func (w WorkItem) Field(name string) string {
	if name == "" || w.Fields == nil {
		return ""
	}
	return stringify(w.Fields[name])
}

// FieldOr returns the field value, or fallback when it is empty
func (w WorkItem) FieldOr(name, fallback string) string {
	if value := strings.TrimSpace(w.Field(name)); value != "" {
		return value
	}
	return fallback
}

func stringify(value any) string {
	switch v := value.(type) {
	case nil:
		return ""
	case string:
		return v
	case int:
		return strconv.Itoa(v)
	case int64:
		return strconv.FormatInt(v, 10)
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(v)
	case map[string]any:
		for _, key := range []string{"displayName", "uniqueName", "name"} {
			if s, ok := v[key].(string); ok && s != "" {
				return s
			}
		}
		return ""
	default:
		return fmt.Sprint(v)
	}
}
