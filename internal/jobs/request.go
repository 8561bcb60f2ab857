package jobs

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"jobsched/internal/job"
)

// ScheduledRequest creates a recurring job. Start defaults to now.
type ScheduledRequest struct {
	Name     string            `json:"name" validate:"required,max=200"`
	Method   string            `json:"method" validate:"omitempty,httpmethod"`
	URL      string            `json:"url" validate:"required,url"`
	Body     string            `json:"body"`
	Headers  map[string]string `json:"headers" validate:"omitempty,dive,keys,required,endkeys"`
	Interval string            `json:"interval" validate:"required,interval"`
	Start    time.Time         `json:"start"`
	End      time.Time         `json:"end" validate:"required,gtefield=Start"`
}

// OneTimeRequest creates a job that fires once at TriggerTime.
type OneTimeRequest struct {
	Name        string            `json:"name" validate:"required,max=200"`
	Method      string            `json:"method" validate:"omitempty,httpmethod"`
	URL         string            `json:"url" validate:"required,url"`
	Body        string            `json:"body"`
	Headers     map[string]string `json:"headers" validate:"omitempty,dive,keys,required,endkeys"`
	TriggerTime time.Time         `json:"trigger_time" validate:"required"`
}

var methods = map[string]struct{}{
	"GET": {}, "POST": {}, "PUT": {}, "PATCH": {}, "DELETE": {},
}

func newValidator() (*validator.Validate, error) {
	v := validator.New()
	if err := v.RegisterValidation("httpmethod", func(fl validator.FieldLevel) bool {
		_, ok := methods[strings.ToUpper(strings.TrimSpace(fl.Field().String()))]
		return ok
	}); err != nil {
		return nil, err
	}
	if err := v.RegisterValidation("interval", func(fl validator.FieldLevel) bool {
		_, err := job.ParseInterval(fl.Field().String())
		return err == nil
	}); err != nil {
		return nil, err
	}
	return v, nil
}

// FieldError is one failed rule.
type FieldError struct {
	Field string `json:"field"`
	Rule  string `json:"rule"`
	Param string `json:"param,omitempty"`
}

// ValidationError lists every field that failed validation.
type ValidationError struct {
	Fields []FieldError `json:"fields"`
}

func (e *ValidationError) Error() string {
	parts := make([]string, 0, len(e.Fields))
	for _, f := range e.Fields {
		if f.Param != "" {
			parts = append(parts, fmt.Sprintf("%s: %s=%s", f.Field, f.Rule, f.Param))
		} else {
			parts = append(parts, fmt.Sprintf("%s: %s", f.Field, f.Rule))
		}
	}
	return "invalid request: " + strings.Join(parts, "; ")
}

func (s *Service) validate(req any) error {
	err := s.validator.Struct(req)
	if err == nil {
		return nil
	}
	verrs, ok := err.(validator.ValidationErrors)
	if !ok {
		return err
	}
	out := &ValidationError{Fields: make([]FieldError, 0, len(verrs))}
	for _, fe := range verrs {
		out.Fields = append(out.Fields, FieldError{Field: fe.Field(), Rule: fe.Tag(), Param: fe.Param()})
	}
	return out
}

func action(method, url, body string, headers map[string]string) job.Action {
	return job.Action{Method: method, URL: url, Body: body, Headers: headers}
}
