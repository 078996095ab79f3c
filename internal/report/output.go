package report

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strconv"

	"github.com/joho/godotenv"

	"github.com/waabox/pipemetrics/internal/domain"
)

// JSONWriter is a Publisher that prints the record as indented JSON. It backs --dry-run.
type JSONWriter struct {
	W io.Writer
}

// Deliver writes rec to w.
func (j JSONWriter) Deliver(_ context.Context, rec domain.PipelineMetricsRecord) error {
	enc := json.NewEncoder(j.W)
	enc.SetIndent("", "  ")
	if err := enc.Encode(rec); err != nil {
		return fmt.Errorf("writing record: %w", err)
	}
	return nil
}

// Outputs returns the step outputs derived from rec. Absent metrics have no key.
func Outputs(rec domain.PipelineMetricsRecord) map[string]string {
	out := map[string]string{
		"PIPELINE_STATUS":    string(rec.Status),
		"PIPELINE_MODE":      string(rec.Mode),
		"PIPELINE_JOB_COUNT": strconv.Itoa(len(rec.Jobs)),
	}
	if rec.DurationSeconds != nil {
		out["PIPELINE_DURATION_SECONDS"] = strconv.FormatInt(*rec.DurationSeconds, 10)
	}
	if rec.ComputeSeconds != nil {
		out["PIPELINE_COMPUTE_SECONDS"] = strconv.FormatInt(*rec.ComputeSeconds, 10)
	}
	return out
}

// WriteOutputs writes the outputs of rec to path in dotenv format.
func WriteOutputs(path string, rec domain.PipelineMetricsRecord) error {
	if err := godotenv.Write(Outputs(rec), path); err != nil {
		return fmt.Errorf("writing outputs to %s: %w", path, err)
	}
	return nil
}
