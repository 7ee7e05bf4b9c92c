package amqp

import (
	"encoding/json"
	"time"
)

// TaskEventMessage is the lightweight envelope published on task lifecycle
// changes. It carries only identifiers; the worker fetches the full task
// from the database when handling it.
type TaskEventMessage struct {
	TaskID    int64     `json:"taskId"`
	UserID    string    `json:"userId"`
	Event     string    `json:"event"`
	Timestamp time.Time `json:"timestamp"`
}

func NewTaskEventMessage(taskID int64, userID, event string) *TaskEventMessage {
	return &TaskEventMessage{
		TaskID:    taskID,
		UserID:    userID,
		Event:     event,
		Timestamp: time.Now(),
	}
}

func (m *TaskEventMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

func TaskEventMessageFromJSON(data []byte) (*TaskEventMessage, error) {
	var msg TaskEventMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}
