package manager

// notReadyError signals an inference call before the relevant model slot
// reached ready state. Never retried internally; callers fail fast.
type notReadyError struct{ what string }

func (e notReadyError) Error() string { return e.what + " not ready" }

// ErrNotReady constructs a notReadyError for the given capability.
func ErrNotReady(what string) error { return notReadyError{what: what} }

// IsNotReady reports whether err indicates a model slot not yet loaded.
func IsNotReady(err error) bool {
	_, ok := err.(notReadyError)
	return ok
}

// busyError signals a switch attempted while another load is in flight.
type busyError struct{ loading string }

func (e busyError) Error() string { return "switch in progress: " + e.loading }

// IsBusy reports whether err indicates a rejected concurrent switch.
func IsBusy(err error) bool {
	_, ok := err.(busyError)
	return ok
}

// modelNotFoundError signals a referenced model file absent from disk.
type modelNotFoundError struct{ name string }

func (e modelNotFoundError) Error() string { return "model not found: " + e.name }

// ErrModelNotFound constructs a modelNotFoundError.
func ErrModelNotFound(name string) error { return modelNotFoundError{name: name} }

// IsModelNotFound reports whether the error indicates a missing model.
func IsModelNotFound(err error) bool {
	_, ok := err.(modelNotFoundError)
	return ok
}

// dependencyUnavailableError signals a missing runtime dependency
// (e.g. a binary built without llama support) so the protocol layer can
// return 503 instead of 500.
type dependencyUnavailableError struct{ msg string }

func (e dependencyUnavailableError) Error() string { return e.msg }

// ErrDependencyUnavailable constructs a dependencyUnavailableError.
func ErrDependencyUnavailable(msg string) error { return dependencyUnavailableError{msg: msg} }

// IsDependencyUnavailable reports whether err indicates a missing runtime dependency.
func IsDependencyUnavailable(err error) bool {
	_, ok := err.(dependencyUnavailableError)
	return ok
}
