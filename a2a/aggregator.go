package a2a

// TaskStateAggregator watches the outbound events of one task and decides its
// terminal state. Observed states rank failed > auth-required >
// input-required > working; a lower-ranked state never replaces a higher one.
type TaskStateAggregator struct {
	state   TaskState
	message *Message
}

// NewTaskStateAggregator returns an aggregator in the working state.
func NewTaskStateAggregator() *TaskStateAggregator {
	return &TaskStateAggregator{state: TaskStateWorking}
}

func rank(s TaskState) int {
	switch s {
	case TaskStateFailed:
		return 3
	case TaskStateAuthRequired:
		return 2
	case TaskStateInputRequired:
		return 1
	default:
		return 0
	}
}

// Observe folds ev into the aggregate. Artifact updates are ignored.
func (a *TaskStateAggregator) Observe(ev OutboundEvent) {
	up, ok := ev.(*TaskStatusUpdateEvent)
	if !ok {
		return
	}
	s := up.Status.State
	if rank(s) == 0 && s != TaskStateWorking {
		return
	}
	if rank(s) >= rank(a.state) {
		a.state = s
		a.message = up.Status.Message
	}
}

// State returns the highest-ranked state observed so far.
func (a *TaskStateAggregator) State() TaskState { return a.state }

// Message returns the message of the status that set the current state.
func (a *TaskStateAggregator) Message() *Message { return a.message }

// Final returns the terminal state: completed when nothing above working was
// observed.
func (a *TaskStateAggregator) Final() TaskState {
	if a.state == TaskStateWorking {
		return TaskStateCompleted
	}
	return a.state
}
