package model

// Status is the presence status of a target as reported by the provider.
type Status string

const (
	StatusUnknown  Status = "unknown"
	StatusOnline   Status = "online"
	StatusOffline  Status = "offline"
	StatusRecently Status = "recently"
)

// Valid reports whether s is one of the recognized statuses.
func (s Status) Valid() bool {
	switch s {
	case StatusUnknown, StatusOnline, StatusOffline, StatusRecently:
		return true
	}
	return false
}
