package session

// Phase is the position of a session in the exam-taking flow.
type Phase string

const (
	PhaseAuth         Phase = "auth"
	PhaseInstructions Phase = "instructions"
	PhaseQuestions    Phase = "questions"
	PhaseResult       Phase = "result"
	PhaseReview       Phase = "review"
)

// Trigger names what caused an attempt to be finalized.
type Trigger string

const (
	TriggerSubmit Trigger = "submit"
	TriggerExpiry Trigger = "expiry"
)
