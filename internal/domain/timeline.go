package domain

import "time"

// TimelineEventCreated — тип события создания заказа; остальные события
// таймлайна носят имя целевого статуса перехода.
const TimelineEventCreated = "created"

// TimelineEvent — запись аудита жизненного цикла заказа: создание и каждый
// переход статуса с причиной.
type TimelineEvent struct {
	OrderID  string
	Type     string
	Reason   string
	Occurred time.Time
}
