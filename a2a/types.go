package a2a

import "time"

// Role identifies the sender of a Message.
type Role string

const (
	RoleUser  Role = "user"
	RoleAgent Role = "agent"
)

// PartKind discriminates the content of a Part.
type PartKind string

const (
	PartKindText PartKind = "text"
	PartKindData PartKind = "data"
)

// Part is one piece of message or artifact content.
type Part struct {
	Kind     PartKind       `json:"kind"`
	Text     string         `json:"text,omitempty"`
	Data     map[string]any `json:"data,omitempty"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// TextPart builds a text part.
func TextPart(text string) Part { return Part{Kind: PartKindText, Text: text} }

// DataPart builds a structured data part.
func DataPart(data map[string]any, metadata map[string]any) Part {
	return Part{Kind: PartKindData, Data: data, Metadata: metadata}
}

// Message is a protocol message exchanged between client and agent.
type Message struct {
	MessageID string         `json:"messageId"`
	ContextID string         `json:"contextId,omitempty"`
	TaskID    string         `json:"taskId,omitempty"`
	Role      Role           `json:"role"`
	Parts     []Part         `json:"parts"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

// TaskState is the lifecycle state of a task.
type TaskState string

const (
	TaskStateSubmitted     TaskState = "submitted"
	TaskStateWorking       TaskState = "working"
	TaskStateInputRequired TaskState = "input-required"
	TaskStateAuthRequired  TaskState = "auth-required"
	TaskStateCompleted     TaskState = "completed"
	TaskStateCanceled      TaskState = "canceled"
	TaskStateFailed        TaskState = "failed"
)

// TaskStatus is a task state plus the message that explains it.
type TaskStatus struct {
	State     TaskState `json:"state"`
	Message   *Message  `json:"message,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Artifact is a named output of a task.
type Artifact struct {
	ArtifactID string         `json:"artifactId"`
	Name       string         `json:"name,omitempty"`
	Parts      []Part         `json:"parts"`
	Metadata   map[string]any `json:"metadata,omitempty"`
}

// OutboundEvent is either a *TaskStatusUpdateEvent or a
// *TaskArtifactUpdateEvent.
type OutboundEvent interface {
	outbound()
}

// TaskStatusUpdateEvent reports a change of task state.
type TaskStatusUpdateEvent struct {
	Kind      string         `json:"kind"`
	TaskID    string         `json:"taskId"`
	ContextID string         `json:"contextId"`
	Status    TaskStatus     `json:"status"`
	Final     bool           `json:"final"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

func (*TaskStatusUpdateEvent) outbound() {}

// TaskArtifactUpdateEvent delivers (a chunk of) an artifact.
type TaskArtifactUpdateEvent struct {
	Kind      string         `json:"kind"`
	TaskID    string         `json:"taskId"`
	ContextID string         `json:"contextId"`
	Artifact  Artifact       `json:"artifact"`
	Append    bool           `json:"append,omitempty"`
	LastChunk bool           `json:"lastChunk,omitempty"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

func (*TaskArtifactUpdateEvent) outbound() {}

const (
	kindStatusUpdate   = "status-update"
	kindArtifactUpdate = "artifact-update"
)

// NewStatusUpdate builds a status update event.
func NewStatusUpdate(taskID, contextID string, state TaskState, msg *Message, final bool) *TaskStatusUpdateEvent {
	return &TaskStatusUpdateEvent{
		Kind:      kindStatusUpdate,
		TaskID:    taskID,
		ContextID: contextID,
		Status:    TaskStatus{State: state, Message: msg, Timestamp: time.Now().UTC()},
		Final:     final,
	}
}
