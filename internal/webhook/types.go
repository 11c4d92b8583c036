package webhook

import (
	"time"
)

// Event is the JSON body posted to the webhook URL.
type Event struct {
	Type      string      `json:"type"`
	CallID    string      `json:"call_id"`
	Data      interface{} `json:"data"`
	Timestamp time.Time   `json:"timestamp"`
}
