package signup

// ValidationError is a request that misses a required field.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

// ProviderError wraps a rejected provider or profile store call. Its
// message is the remote message, unchanged.
type ProviderError struct {
	Op  string
	Err error
}

func (e *ProviderError) Error() string {
	return e.Err.Error()
}

func (e *ProviderError) Unwrap() error {
	return e.Err
}

// InternalError is a provider answer the flow cannot continue with.
type InternalError struct {
	Message string
}

func (e *InternalError) Error() string {
	return e.Message
}

func providerError(op string, err error) error {
	return &ProviderError{Op: op, Err: err}
}
