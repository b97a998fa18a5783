package action

// envelope tags a goal, feedback, or result payload with the goal id
// it belongs to, so a client tracking one in-flight goal can ignore
// another client's traffic sharing the same topic.
type envelope[TPayload any] struct {
	GoalID  uint64
	Payload TPayload
}
