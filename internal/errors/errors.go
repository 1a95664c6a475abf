package errors

import (
	"fmt"
)

// ConnectivityError represents a failure to reach the local store or the panel
type ConnectivityError struct {
	Target string
	Err    error
}

// Error returns the error message
func (e *ConnectivityError) Error() string {
	return fmt.Sprintf("cannot reach %s: %v", e.Target, e.Err)
}

// Unwrap returns the underlying transport error
func (e *ConnectivityError) Unwrap() error {
	return e.Err
}

// ValidationError represents an error when validation fails
type ValidationError struct {
	Field   string
	Message string
}

// Error returns the error message
func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error for %s: %s", e.Field, e.Message)
}

// PanelAPIError represents a non-2xx response from the Marzban API
type PanelAPIError struct {
	Operation string
	Status    int
	Body      string
}

// Error returns the error message
func (e *PanelAPIError) Error() string {
	return fmt.Sprintf("Marzban API error during %s (status %d): %s", e.Operation, e.Status, e.Body)
}

// StateError represents an error related to user state
type StateError struct {
	UserID  int64
	State   string
	Message string
}

// Error returns the error message
func (e *StateError) Error() string {
	return fmt.Sprintf("state error for user %d in state %s: %s", e.UserID, e.State, e.Message)
}

// PermissionError represents an error related to permissions
type PermissionError struct {
	UserID         int64
	AccessType     string
	RequiredAccess string
}

// Error returns the error message
func (e *PermissionError) Error() string {
	return fmt.Sprintf("permission error for user %d: has %s access, requires %s access", e.UserID, e.AccessType, e.RequiredAccess)
}

// ConfigError represents an error related to configuration
type ConfigError struct {
	Section string
	Message string
}

// Error returns the error message
func (e *ConfigError) Error() string {
	return fmt.Sprintf("configuration error in %s: %s", e.Section, e.Message)
}
