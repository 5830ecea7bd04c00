package dto

// UpsertAvailabilityRequest declares or edits a weekly window.
type UpsertAvailabilityRequest struct {
	DayOfWeek string `json:"dayOfWeek" validate:"required"`
	StartTime string `json:"startTime" validate:"required,len=5"`
	EndTime   string `json:"endTime" validate:"required,len=5"`
}
