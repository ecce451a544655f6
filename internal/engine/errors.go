package engine

import "fmt"

// storeError marks a persistence call failure during sample processing.
// It aborts the remaining steps for that sample; in-memory trajectory and
// collection state keep whatever was already computed.
type storeError struct {
	op  string
	err error
}

func (e *storeError) Error() string {
	return fmt.Sprintf("%s: %v", e.op, e.err)
}

func (e *storeError) Unwrap() error {
	return e.err
}
