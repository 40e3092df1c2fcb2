package tasks

import "github.com/agentforge/orchestrator/internal/engine/types"

// queuedTask is a submission waiting for a free concurrency slot.
type queuedTask struct {
	task       types.Task
	descriptor Descriptor
}

// priorityQueue holds three FIFO lanes. pop drains high before normal
// before low; within a lane, submission order is preserved. This is
// deliberately simple rather than a heap: lane counts stay small
// (bounded by the configured queue depth) so linear pop is cheap.
type priorityQueue struct {
	high, normal, low []*queuedTask
}

func (q *priorityQueue) push(priority string, item *queuedTask) {
	switch priority {
	case "high":
		q.high = append(q.high, item)
	case "low":
		q.low = append(q.low, item)
	default:
		q.normal = append(q.normal, item)
	}
}

func (q *priorityQueue) pop() *queuedTask {
	if len(q.high) > 0 {
		item := q.high[0]
		q.high = q.high[1:]
		return item
	}
	if len(q.normal) > 0 {
		item := q.normal[0]
		q.normal = q.normal[1:]
		return item
	}
	if len(q.low) > 0 {
		item := q.low[0]
		q.low = q.low[1:]
		return item
	}
	return nil
}

func (q *priorityQueue) len() int {
	return len(q.high) + len(q.normal) + len(q.low)
}

// removeByID drops a not-yet-dispatched task from whichever lane holds
// it. Used by Cancel on tasks that never reached a running slot.
func (q *priorityQueue) removeByID(id string) bool {
	for _, lane := range []*[]*queuedTask{&q.high, &q.normal, &q.low} {
		for i, item := range *lane {
			if item.task.ID == id {
				*lane = append((*lane)[:i], (*lane)[i+1:]...)
				return true
			}
		}
	}
	return false
}
