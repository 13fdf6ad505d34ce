package storage

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/xeipuuv/gojsonschema"

	"github.com/cimetrics/reporter/types"
)

// recordSchema describes the documents publishers have written over time.
// build_id and pr_id were stored as strings by older publishers, so both
// shapes are accepted.
const recordSchema = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "object",
  "required": ["metrics"],
  "properties": {
    "created": {"type": ["string", "null"]},
    "build_id": {
      "oneOf": [
        {"type": "integer", "minimum": 0},
        {"type": "string", "pattern": "^[0-9]*$"},
        {"type": "null"}
      ]
    },
    "build_number": {"type": ["string", "integer", "null"]},
    "branch": {"type": ["string", "null"]},
    "is_pr": {"type": ["boolean", "null"]},
    "commit": {"type": ["string", "null"]},
    "pr_id": {"type": ["string", "integer", "null"]},
    "target_branch": {"type": ["string", "null"]},
    "metrics": {
      "type": "object",
      "additionalProperties": {
        "type": "object",
        "required": ["value"],
        "properties": {
          "value": {"type": ["number", "null"]},
          "group": {"type": ["string", "null"]}
        }
      }
    }
  }
}`

var (
	schemaOnce     sync.Once
	compiledSchema *gojsonschema.Schema
	schemaErr      error
)

func loadSchema() (*gojsonschema.Schema, error) {
	schemaOnce.Do(func() {
		compiledSchema, schemaErr = gojsonschema.NewSchema(gojsonschema.NewStringLoader(recordSchema))
	})
	return compiledSchema, schemaErr
}

// InvalidDocumentError is returned by DecodeDocument for documents that do
// not match the record schema.
type InvalidDocumentError struct {
	Reasons []string
}

func (e *InvalidDocumentError) Error() string {
	return "invalid metric document: " + strings.Join(e.Reasons, "; ")
}

// ValidateDocument checks a raw JSON document against the record schema.
func ValidateDocument(data []byte) error {
	schema, err := loadSchema()
	if err != nil {
		return fmt.Errorf("failed to compile record schema: %w", err)
	}

	result, err := schema.Validate(gojsonschema.NewBytesLoader(data))
	if err != nil {
		return &InvalidDocumentError{Reasons: []string{err.Error()}}
	}
	if !result.Valid() {
		reasons := make([]string, len(result.Errors()))
		for i, e := range result.Errors() {
			reasons[i] = e.String()
		}
		return &InvalidDocumentError{Reasons: reasons}
	}
	return nil
}

// DecodeDocument validates and converts one stored document into a record.
// A null metric value decodes to NaN, i.e. a missing cell.
func DecodeDocument(data []byte) (*types.MetricRecord, error) {
	if err := ValidateDocument(data); err != nil {
		return nil, err
	}

	var w wireRecord
	if err := json.Unmarshal(data, &w); err != nil {
		return nil, &InvalidDocumentError{Reasons: []string{err.Error()}}
	}

	rec := &types.MetricRecord{
		BuildID:      int64(w.BuildID),
		BuildNumber:  string(w.BuildNumber),
		Branch:       w.Branch,
		IsPR:         w.IsPR,
		Commit:       w.Commit,
		PRID:         string(w.PRID),
		TargetBranch: w.TargetBranch,
		Metrics:      make(map[string]types.Metric, len(w.Metrics)),
	}
	if w.Created != nil {
		rec.Created = *w.Created
	}
	for name, m := range w.Metrics {
		metric := types.Metric{Value: math.NaN()}
		if m.Value != nil {
			metric.Value = *m.Value
		}
		if m.Group != nil {
			metric.Group = *m.Group
		}
		rec.Metrics[name] = metric
	}
	return rec, nil
}

// EncodeDocument renders a record in the stored document shape.
func EncodeDocument(rec *types.MetricRecord) ([]byte, error) {
	w := wireRecord{
		Created:      &rec.Created,
		BuildID:      flexInt(rec.BuildID),
		BuildNumber:  flexString(rec.BuildNumber),
		Branch:       rec.Branch,
		IsPR:         rec.IsPR,
		Commit:       rec.Commit,
		PRID:         flexString(rec.PRID),
		TargetBranch: rec.TargetBranch,
		Metrics:      make(map[string]wireMetric, len(rec.Metrics)),
	}
	for name, m := range rec.Metrics {
		wm := wireMetric{}
		if !math.IsNaN(m.Value) && !math.IsInf(m.Value, 0) {
			v := m.Value
			wm.Value = &v
		}
		if m.Group != "" {
			g := m.Group
			wm.Group = &g
		}
		w.Metrics[name] = wm
	}
	return json.Marshal(w)
}

type wireRecord struct {
	Created      *time.Time            `json:"created,omitempty"`
	BuildID      flexInt               `json:"build_id"`
	BuildNumber  flexString            `json:"build_number,omitempty"`
	Branch       string                `json:"branch"`
	IsPR         bool                  `json:"is_pr"`
	Commit       string                `json:"commit"`
	PRID         flexString            `json:"pr_id,omitempty"`
	TargetBranch string                `json:"target_branch,omitempty"`
	Metrics      map[string]wireMetric `json:"metrics"`
}

type wireMetric struct {
	Value *float64 `json:"value"`
	Group *string  `json:"group,omitempty"`
}

// flexInt accepts a JSON number, a decimal string or null
type flexInt int64

func (f *flexInt) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*f = 0
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		if s == "" {
			*f = 0
			return nil
		}
		v, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return fmt.Errorf("build_id %q: %w", s, err)
		}
		*f = flexInt(v)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return err
	}
	if v, err := n.Int64(); err == nil {
		*f = flexInt(v)
		return nil
	}
	v, err := n.Float64()
	if err != nil {
		return err
	}
	*f = flexInt(int64(v))
	return nil
}

// flexString accepts a JSON string, a number or null
type flexString string

func (f *flexString) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*f = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*f = flexString(s)
		return nil
	}
	*f = flexString(data)
	return nil
}
