package ports

import "time"

type SchedulerService interface {
	Start()
	Stop()

	// ScheduleEvery runs task on a fixed interval, never overlapping runs.
	ScheduleEvery(interval time.Duration, task func()) error
}
