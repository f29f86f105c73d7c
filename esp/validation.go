package esp

import (
	_ "embed"
	"fmt"
	"sync"

	"github.com/pkg/errors"
	"github.com/xeipuuv/gojsonschema"
)

//go:embed schema/project.json
var projectSchema string

var (
	schemaOnce sync.Once
	schema     *gojsonschema.Schema
	schemaErr  error
)

func loadSchema() (*gojsonschema.Schema, error) {
	schemaOnce.Do(func() {
		schema, schemaErr = gojsonschema.NewSchema(gojsonschema.NewStringLoader(projectSchema))
	})
	return schema, schemaErr
}

type ValidationError struct {
	Errors []ValidationErrorDetail
}

type ValidationErrorDetail struct {
	Message string `json:"message"`
	Path    string `json:"path"`
}

func (err ValidationError) Error() string {
	return fmt.Sprintf("validation issues: %+v", err.Errors)
}

// Validate checks a project document against the embedded schema. Schema
// violations are returned as a ValidationError.
func Validate(doc []byte) error {
	s, err := loadSchema()
	if err != nil {
		return errors.Wrap(err, "cannot load project schema")
	}
	res, err := s.Validate(gojsonschema.NewBytesLoader(doc))
	if err != nil {
		return errors.Wrap(err, "cannot decode project")
	}
	if res.Valid() {
		return nil
	}
	verr := ValidationError{}
	for _, e := range res.Errors() {
		verr.Errors = append(verr.Errors, ValidationErrorDetail{
			Message: e.Description(),
			Path:    e.Field(),
		})
	}
	return verr
}
