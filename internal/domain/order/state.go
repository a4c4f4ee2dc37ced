package order

type Status string

const (
	StatusPending           Status = "pending"
	StatusPaymentProcessing Status = "payment_processing"
	StatusConfirmed         Status = "confirmed"
	StatusProcessing        Status = "processing"
	StatusShipped           Status = "shipped"
	StatusDelivered         Status = "delivered"
	StatusCancelled         Status = "cancelled"
	StatusRefunded          Status = "refunded"
)

// transitions is the single adjacency table for the order lifecycle.
var transitions = map[Status][]Status{
	StatusPending:           {StatusPaymentProcessing, StatusCancelled},
	StatusPaymentProcessing: {StatusConfirmed, StatusCancelled},
	StatusConfirmed:         {StatusProcessing, StatusShipped, StatusCancelled},
	StatusProcessing:        {StatusShipped, StatusCancelled},
	StatusShipped:           {StatusDelivered},
	StatusCancelled:         {StatusRefunded},
	StatusDelivered:         nil,
	StatusRefunded:          nil,
}

func ParseStatus(s string) (Status, error) {
	st := Status(s)
	if !st.Valid() {
		return "", ErrInvalidStatus
	}
	return st, nil
}

func (s Status) Valid() bool {
	_, ok := transitions[s]
	return ok
}

// Cancellable reports whether cancelOrder may run from s.
func (s Status) Cancellable() bool {
	return CanTransition(s, StatusCancelled)
}

// Transient statuses are only held while createOrder is running.
func (s Status) Transient() bool {
	return s == StatusPending || s == StatusPaymentProcessing
}

// SagaOwned statuses are entered only by the orchestrator, never by a manual update.
func (s Status) SagaOwned() bool {
	return s.Transient() || s == StatusRefunded
}

func CanTransition(from, to Status) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// CanProgress allows manual fulfilment moves along the transition table.
// Steps may be skipped (confirmed -> delivered) but never repeated or
// reversed, and the walk never passes through a cancelled or saga-owned status.
func CanProgress(from, to Status) bool {
	if from == to || !manual(from) || !manual(to) {
		return false
	}
	seen := map[Status]bool{from: true}
	queue := []Status{from}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		for _, next := range transitions[cur] {
			if seen[next] || !manual(next) {
				continue
			}
			if next == to {
				return true
			}
			seen[next] = true
			queue = append(queue, next)
		}
	}
	return false
}

// manual statuses are the ones an operator may move an order between.
func manual(s Status) bool {
	return s.Valid() && !s.SagaOwned() && s != StatusCancelled
}
