package models

// Schedule is an entry in the Schedule Queue: a program the operator
// intends to record, annotated with why it is scheduled and whether it
// is still active.
type Schedule struct {
	Program  Program `json:"program"`
	PlanID   PlanID  `json:"plan_id"`
	IsActive bool    `json:"is_active"`
}

// RecordingTaskDescription is the handle a Recording Pool entry carries
// for the task it is (or will be) running: which program to record, and
// where to save it.
type RecordingTaskDescription struct {
	Program      Program `json:"program"`
	SaveLocation string  `json:"save_location"`
}
