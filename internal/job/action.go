package job

import (
	"net/http"
	"strings"
)

// Action is the outbound HTTP call a job performs when it fires.
type Action struct {
	Method  string            `json:"method"`
	URL     string            `json:"url"`
	Body    string            `json:"body,omitempty"`
	Headers map[string]string `json:"headers,omitempty"`
}

func (a Action) normalized() Action {
	a.Method = strings.ToUpper(strings.TrimSpace(a.Method))
	if a.Method == "" {
		a.Method = http.MethodPost
	}
	a.URL = strings.TrimSpace(a.URL)
	if len(a.Headers) > 0 {
		h := make(map[string]string, len(a.Headers))
		for k, v := range a.Headers {
			h[k] = v
		}
		a.Headers = h
	}
	return a
}
