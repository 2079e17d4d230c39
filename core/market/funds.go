package market

import (
	"context"
	"fmt"
	"log/slog"
	"math/big"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"deliverynet/core/events"
	"deliverynet/core/types"
	"deliverynet/observability/logging"
)

// OnFundsReceived handles a transfer of amount from payer carrying the
// instruction msg ("<tag>|<json>"). The returned decimal string is the amount
// to hand back to the payer. Rejected instructions return amount unchanged
// with a nil error and no state change. Fatal failures also return amount,
// together with the error, after the transaction has been rolled back.
func (e *Engine) OnFundsReceived(ctx context.Context, payer string, amount *big.Int, msg string) (string, error) {
	paid := types.CloneAmount(amount)
	_, span := e.tracer.Start(ctx, "market.OnFundsReceived")
	defer span.End()

	inst, err := ParseInstruction(msg)
	if err != nil {
		return e.reject(payer, "", paid, err), nil
	}
	span.SetAttributes(attribute.String("instruction.tag", inst.Tag()))

	var change *big.Int
	switch in := inst.(type) {
	case PlaceOrderInstruction:
		e.mu.Lock()
		precision := e.precision
		e.mu.Unlock()
		var receipt *Receipt
		receipt, err = e.PlaceOrder(payer, paid, in.Cart, precision)
		if err == nil {
			change = receipt.Change
			span.SetAttributes(attribute.String("order.id", receipt.OrderID))
		}
	case ApproveProposalInstruction:
		var receipt *ApprovalReceipt
		receipt, err = e.ApproveProposal(payer, paid, in.Approval)
		if err == nil {
			change = receipt.Change
			span.SetAttributes(attribute.String("order.id", receipt.OrderID))
		}
	default:
		err = fmt.Errorf("%w: %q", ErrUnknownInstruction, inst.Tag())
	}

	switch {
	case err == nil:
		e.metrics.RecordInstruction(inst.Tag(), "accepted")
		return change.String(), nil
	case IsRecoverable(err):
		return e.reject(payer, inst.Tag(), paid, err), nil
	default:
		e.metrics.RecordInstruction(inst.Tag(), "error")
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		e.mu.Lock()
		logger := e.logger
		e.mu.Unlock()
		logger.Error("funds-received instruction aborted",
			slog.String("tag", inst.Tag()),
			logging.MaskField("payer", payer),
			slog.String("amount", paid.String()),
			slog.String("error", err.Error()))
		return paid.String(), err
	}
}

func (e *Engine) reject(payer, tag string, amount *big.Int, cause error) string {
	e.metrics.RecordInstruction(tag, "rejected")
	e.mu.Lock()
	defer e.mu.Unlock()
	e.logger.Info("funds-received instruction rejected",
		slog.String("tag", tag),
		logging.MaskField("payer", payer),
		slog.String("amount", amount.String()),
		slog.String("reason", cause.Error()))
	e.emitter.Emit(events.InstructionRejected{Payer: payer, Tag: tag, Amount: amount, Reason: cause.Error()})
	return amount.String()
}

// Refund returns the hold under (payer, escrowID) to the payer's balance and
// reports the receiver the hold was addressed to.
func (e *Engine) Refund(payer, escrowID string) (string, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	var receiver string
	err := e.apply("refund", func() error {
		lock, err := e.escrow.Peek(payer, escrowID, "")
		if err != nil {
			return err
		}
		receiver, err = e.escrow.Release(payer, escrowID)
		if err != nil {
			return err
		}
		e.metrics.RecordEscrow("released", lock.Amount)
		return nil
	})
	return receiver, err
}
