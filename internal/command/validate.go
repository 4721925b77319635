package command

// validationErrorPrefix matches the message format watchman clients key on.
// The command name is substituted verbatim; JSON string escaping is the only
// transformation applied on the wire.
const validationErrorPrefix = "watchman::CommandValidationError: failed to validate command: unknown command "

// ValidationError reports a command name absent from the registry. It is
// never raised to the process boundary: the server converts it into a normal
// JSON response whose error field carries Error()'s exact text.
type ValidationError struct {
	Command string
}

func (e *ValidationError) Error() string {
	return validationErrorPrefix + e.Command
}

// Validate checks name against the registry. It returns nil for a known
// command and a *ValidationError otherwise. Validation is a pure function of
// the registry and the name: no normalization, no side effects. An empty
// name is unknown like any other unregistered name.
func (r *Registry) Validate(name string) *ValidationError {
	if _, ok := r.handlers[name]; ok {
		return nil
	}
	return &ValidationError{Command: name}
}
