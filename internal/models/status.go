package models

var orderTransitions = map[OrderStatus][]OrderStatus{
	OrderStatusPending:    {OrderStatusPicking, OrderStatusCancelled, OrderStatusError},
	OrderStatusPicking:    {OrderStatusPacked, OrderStatusCancelled, OrderStatusError},
	OrderStatusPacked:     {OrderStatusDispatched, OrderStatusCancelled},
	OrderStatusDispatched: {OrderStatusDelivered, OrderStatusReturned},
	OrderStatusError:      {OrderStatusPending, OrderStatusCancelled},
}

// External fulfilment reports its outcome straight from pending.
var externalTransitions = map[OrderStatus][]OrderStatus{
	OrderStatusPending: {OrderStatusDelivered, OrderStatusError},
}

func (s OrderStatus) Valid() bool {
	switch s {
	case OrderStatusPending, OrderStatusPicking, OrderStatusPacked, OrderStatusDispatched,
		OrderStatusDelivered, OrderStatusReturned, OrderStatusCancelled, OrderStatusError:
		return true
	}
	return false
}

// Terminal reports whether no further transition is allowed.
func (s OrderStatus) Terminal() bool {
	return len(orderTransitions[s]) == 0
}

func (s OrderStatus) CanTransitionTo(next OrderStatus) bool {
	return contains(orderTransitions[s], next)
}

func (s OrderStatus) CanSyncTo(next OrderStatus) bool {
	return contains(externalTransitions[s], next)
}

func contains(list []OrderStatus, s OrderStatus) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
