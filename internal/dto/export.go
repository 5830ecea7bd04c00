package dto

// ScheduleExportQuery selects the mentor schedule to download. MentorID is
// only honoured for admins; mentors always export their own schedule.
type ScheduleExportQuery struct {
	MentorID string `form:"mentor_id"`
	From     string `form:"from" validate:"required,datetime=2006-01-02"`
	To       string `form:"to" validate:"required,datetime=2006-01-02"`
	Format   string `form:"format" validate:"omitempty,oneof=csv pdf"`
}
