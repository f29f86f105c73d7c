package broker

import (
	"encoding/json"
	"net/url"
	"strings"

	"github.com/border-inspection/tourgen/tour"

	"github.com/google/uuid"
	"github.com/gorilla/schema"
	"github.com/pkg/errors"
)

var InvalidJobErr = errors.New("invalid job")

// Job is a request to generate the tour of one boundary.
//
// Options is a URL query string with per-job overrides of the tour
// configuration, e.g. "kmh=80&split=250000&ccw=true".
type Job struct {
	ID      string `json:"id"`
	Source  string `json:"source"`
	Options string `json:"options,omitempty"`
}

// ParseJob decodes a message body. Jobs without an identifier are given a
// random one.
func ParseJob(body []byte) (*Job, error) {
	job := &Job{}
	if err := json.Unmarshal(body, job); err != nil {
		return nil, errors.Wrap(InvalidJobErr, err.Error())
	}
	if strings.TrimSpace(job.Source) == "" {
		return nil, errors.Wrap(InvalidJobErr, "source is empty")
	}
	if job.ID == "" {
		job.ID = uuid.New().String()
	}
	if _, err := job.Overrides(); err != nil {
		return nil, err
	}
	return job, nil
}

var decoder = func() *schema.Decoder {
	d := schema.NewDecoder()
	d.IgnoreUnknownKeys(false)
	return d
}()

// Overrides decodes the options of the job.
func (j *Job) Overrides() (tour.Overrides, error) {
	var o tour.Overrides
	if j.Options == "" {
		return o, nil
	}
	values, err := url.ParseQuery(strings.TrimPrefix(j.Options, "?"))
	if err != nil {
		return o, errors.Wrapf(InvalidJobErr, "options: %s", err)
	}
	if err := decoder.Decode(&o, values); err != nil {
		return o, errors.Wrapf(InvalidJobErr, "options: %s", err)
	}
	return o, nil
}

// Status of a handled job.
type Status string

const (
	StatusDone   Status = "done"
	StatusFailed Status = "failed"
)

// Result is published once a job has been handled.
type Result struct {
	ID         string   `json:"id"`
	Source     string   `json:"source"`
	Status     Status   `json:"status"`
	Name       string   `json:"name,omitempty"`
	DistanceKm float64  `json:"distanceKm,omitempty"`
	Frames     int      `json:"frames,omitempty"`
	Parts      int      `json:"parts,omitempty"`
	Files      []string `json:"files,omitempty"`
	Warnings   []string `json:"warnings,omitempty"`
	Error      string   `json:"error,omitempty"`
}
