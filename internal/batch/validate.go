package batch

import (
	"errors"
	"fmt"
	"strings"

	"github.com/withObsrvr/binder-annotator/internal/results"
	"github.com/withObsrvr/binder-annotator/internal/submissions"
)

// ErrValidation is returned when a batch fails its pre-commit checks.
var ErrValidation = errors.New("batch validation failed")

// ValidationResult is the outcome of ValidateBatch.
type ValidationResult struct {
	Passed   bool
	Errors   []string
	Warnings []string
}

// Err returns nil when the batch passed.
func (v ValidationResult) Err() error {
	if v.Passed {
		return nil
	}
	return fmt.Errorf("%w: %s", ErrValidation, strings.Join(v.Errors, "; "))
}

// ValidateBatch checks an encoded batch before it is published:
// every submission of the slice has exactly one row, row status and error
// agree, and the artifact bytes match their checksum.
func ValidateBatch(slice []submissions.Submission, rows []results.Row, data []byte, checksum string) ValidationResult {
	res := ValidationResult{Passed: true}
	fail := func(format string, args ...any) {
		res.Errors = append(res.Errors, fmt.Sprintf(format, args...))
		res.Passed = false
	}

	if len(rows) == 0 {
		fail("batch has no rows")
	}
	if len(rows) != len(slice) {
		fail("row count mismatch: have %d, expected %d", len(rows), len(slice))
	}

	// Submission tables may repeat an id; each occurrence needs its own row.
	want := make(map[string]int, len(slice))
	for _, sub := range slice {
		want[sub.ID]++
	}
	seen := make(map[string]int, len(rows))
	for _, row := range rows {
		seen[row.ID]++
		switch {
		case want[row.ID] == 0:
			fail("row for unknown submission %s", row.ID)
		case seen[row.ID] > want[row.ID]:
			fail("duplicate row for submission %s", row.ID)
		}

		switch row.Status {
		case results.StatusFailed:
			if row.Error == "" {
				fail("failed row %s has no error message", row.ID)
			}
		case results.StatusSuccess:
			if row.Error != "" {
				fail("successful row %s carries error %q", row.ID, row.Error)
			}
			if row.FeatureFailures != "" {
				res.Warnings = append(res.Warnings,
					fmt.Sprintf("row %s is missing features: %s", row.ID, row.FeatureFailures))
			}
		default:
			fail("row %s has unexpected status %q", row.ID, row.Status)
		}
	}
	for id, n := range want {
		if seen[id] < n {
			fail("no row for submission %s", id)
		}
	}

	if len(data) == 0 {
		fail("empty artifact")
	}
	if !strings.HasPrefix(checksum, "sha256:") {
		fail("checksum in non-standard format: %s", checksum[:min(20, len(checksum))])
	} else if !results.VerifyChecksum(data, checksum) {
		fail("artifact does not match checksum %s", checksum)
	}

	return res
}
