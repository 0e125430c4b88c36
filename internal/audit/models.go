package audit

import (
	"fmt"
	"strings"
	"time"
)

// lineLayout is dd/MM/yyyy HH:mm:ss.
const lineLayout = "02/01/2006 15:04:05"

// Record captures one authenticated inbound request. It is immutable once appended:
// readers receive copies and Roles is never shared with the caller.
type Record struct {
	ID        string    `json:"id"`
	Timestamp time.Time `json:"timestamp"`
	Email     string    `json:"email"`
	Method    string    `json:"method"`
	URL       string    `json:"url"`
	Roles     []string  `json:"roles"`
	RequestID string    `json:"request_id,omitempty"`
}

// Line renders the record in the plain-text audit format:
//
//	19/10/2026 10:00:00| a@b.com| GET | http://svc.example/foo | [admin]
func (r Record) Line() string {
	return fmt.Sprintf("%s| %s| %s | %s | [%s]",
		r.Timestamp.Format(lineLayout), r.Email, r.Method, r.URL, strings.Join(r.Roles, ", "))
}

func (r Record) clone() Record {
	if r.Roles != nil {
		r.Roles = append([]string(nil), r.Roles...)
	}
	return r
}
