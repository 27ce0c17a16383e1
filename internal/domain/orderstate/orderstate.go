// Package orderstate holds the allowed transitions of an order's status and payment_status.
//
// The two fields move independently; Apply validates each field's step and then
// the resulting pair.
package orderstate

import (
	"errors"
	"fmt"

	"storefront/internal/domain/model"
)

var (
	ErrUnknownStatus     = errors.New("unknown status")
	ErrInvalidTransition = errors.New("invalid transition")
	ErrInconsistentPair  = errors.New("inconsistent status and payment_status")
)

var statusNext = map[model.OrderStatus][]model.OrderStatus{
	model.OrderStatusPending:   {model.OrderStatusShipped, model.OrderStatusCancelled},
	model.OrderStatusShipped:   {model.OrderStatusDelivered, model.OrderStatusCancelled},
	model.OrderStatusDelivered: nil,
	model.OrderStatusCancelled: nil,
}

// paid と verified は別の証明方式の「入金済み」なので相互に移れる
var paymentNext = map[model.PaymentStatus][]model.PaymentStatus{
	model.PaymentStatusPending:        {model.PaymentStatusPaid, model.PaymentStatusProofPending},
	model.PaymentStatusProofPending:   {model.PaymentStatusProofSubmitted},
	model.PaymentStatusProofSubmitted: {model.PaymentStatusVerified, model.PaymentStatusRejected},
	model.PaymentStatusPaid:           {model.PaymentStatusVerified},
	model.PaymentStatusVerified:       {model.PaymentStatusPaid},
	model.PaymentStatusRejected:       nil,
}

func ValidStatus(s model.OrderStatus) bool {
	_, ok := statusNext[s]
	return ok
}

func ValidPaymentStatus(s model.PaymentStatus) bool {
	_, ok := paymentNext[s]
	return ok
}

// CanTransitionStatus reports whether status may move from -> to. Staying put is allowed.
func CanTransitionStatus(from, to model.OrderStatus) bool {
	if from == to {
		return ValidStatus(from)
	}
	for _, s := range statusNext[from] {
		if s == to {
			return true
		}
	}
	return false
}

// CanTransitionPayment reports whether payment_status may move from -> to. Staying put is allowed.
func CanTransitionPayment(from, to model.PaymentStatus) bool {
	if from == to {
		return ValidPaymentStatus(from)
	}
	for _, s := range paymentNext[from] {
		if s == to {
			return true
		}
	}
	return false
}

// 届いたのに支払いが却下、は許さない
func PairAllowed(status model.OrderStatus, payment model.PaymentStatus) bool {
	return !(status == model.OrderStatusDelivered && payment == model.PaymentStatusRejected)
}

// Change is a partial update; nil fields are left as they are.
type Change struct {
	Status        *model.OrderStatus
	PaymentStatus *model.PaymentStatus
}

func (c Change) Empty() bool {
	return c.Status == nil && c.PaymentStatus == nil
}

type Result struct {
	Status        model.OrderStatus
	PaymentStatus model.PaymentStatus

	// 今回の変更でdeliveredになった（通知を出す）
	BecameDelivered bool
}

// Apply validates ch against the current state of o and returns the new pair.
func Apply(o model.Order, ch Change) (Result, error) {
	res := Result{Status: o.Status, PaymentStatus: o.PaymentStatus}

	if ch.Status != nil {
		to := *ch.Status
		if !ValidStatus(to) {
			return Result{}, fmt.Errorf("%w: status %q", ErrUnknownStatus, to)
		}
		if !CanTransitionStatus(o.Status, to) {
			return Result{}, fmt.Errorf("%w: status %s -> %s", ErrInvalidTransition, o.Status, to)
		}
		res.Status = to
	}

	if ch.PaymentStatus != nil {
		to := *ch.PaymentStatus
		if !ValidPaymentStatus(to) {
			return Result{}, fmt.Errorf("%w: payment_status %q", ErrUnknownStatus, to)
		}
		if !CanTransitionPayment(o.PaymentStatus, to) {
			return Result{}, fmt.Errorf("%w: payment_status %s -> %s", ErrInvalidTransition, o.PaymentStatus, to)
		}
		res.PaymentStatus = to
	}

	if !PairAllowed(res.Status, res.PaymentStatus) {
		return Result{}, fmt.Errorf("%w: %s with %s", ErrInconsistentPair, res.Status, res.PaymentStatus)
	}

	res.BecameDelivered = o.Status != model.OrderStatusDelivered && res.Status == model.OrderStatusDelivered
	return res, nil
}

// InitialPaymentStatus seeds payment_status at checkout. Both methods start pending;
// a proof attached at checkout is then recorded with SubmitProof.
func InitialPaymentStatus(_ model.PaymentMethod) model.PaymentStatus {
	return model.PaymentStatusPending
}

// SubmitProof is the customer's proof upload. From pending it steps through proof_pending,
// and each step is checked against the same table as admin edits.
func SubmitProof(o model.Order) (Result, error) {
	from := o.PaymentStatus
	if from == model.PaymentStatusProofSubmitted {
		return Result{}, fmt.Errorf("%w: proof already submitted", ErrInvalidTransition)
	}
	if from == model.PaymentStatusPending && CanTransitionPayment(from, model.PaymentStatusProofPending) {
		from = model.PaymentStatusProofPending
	}
	if !CanTransitionPayment(from, model.PaymentStatusProofSubmitted) {
		return Result{}, fmt.Errorf("%w: payment_status %s -> %s", ErrInvalidTransition, o.PaymentStatus, model.PaymentStatusProofSubmitted)
	}

	res := Result{Status: o.Status, PaymentStatus: model.PaymentStatusProofSubmitted}
	if !PairAllowed(res.Status, res.PaymentStatus) {
		return Result{}, fmt.Errorf("%w: %s with %s", ErrInconsistentPair, res.Status, res.PaymentStatus)
	}
	return res, nil
}
