package generator

import "fmt"

// ModelError indicates the model call itself failed after the retry budget
// was exhausted, or failed in a way that retrying cannot fix.
type ModelError struct {
	Model string
	Err   error
}

func (e *ModelError) Error() string {
	return fmt.Sprintf("model call failed (%s): %v", e.Model, e.Err)
}

func (e *ModelError) Unwrap() error { return e.Err }

// SchemaError indicates the model responded, but its output was not a valid
// task artifact. Schema failures are reported per job and never retried; a
// model that produced malformed output once is unlikely to do better on the
// same prompt.
type SchemaError struct {
	Reason string
}

func (e *SchemaError) Error() string {
	return fmt.Sprintf("generated task failed schema validation: %s", e.Reason)
}
