package httpapi

import "fmt"

// InvalidRoleError reports a ChatML role outside {system, user, assistant}.
type InvalidRoleError struct {
	Role string
}

func (e *InvalidRoleError) Error() string {
	return fmt.Sprintf("httpapi: invalid chatml role %q", e.Role)
}
