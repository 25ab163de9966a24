package eventbus

import "github.com/alcionai/clues"

// panicToError normalizes a recovered panic value into an error so it
// can flow through the same fault.Bus path as a returned handler error.
func panicToError(r any) error {
	if err, ok := r.(error); ok {
		return clues.Wrap(err, "subscriber panic")
	}

	return clues.New("subscriber panic").With("value", r)
}
