package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"

	"privacymixer/internal/business"
	"privacymixer/internal/ledger"
	"privacymixer/internal/models"
	"privacymixer/internal/observability"
)

const (
	maxErrorCount = 3 // consecutive transient failures before a command is dropped

	outcomeOK       = "ok"
	outcomeRejected = "rejected"
	outcomeRetry    = "retry"
	outcomeDropped  = "dropped"
)

// ErrUnknownAction is reported for commands whose action is not recognised
var ErrUnknownAction = errors.New("unknown action")

// CommandHandler applies commands from the command queue to the mixer service
type CommandHandler struct {
	svc     *business.MixerService
	metrics *observability.Metrics
	log     *logrus.Entry

	errorCounts   map[string]int
	errorCountsMu sync.Mutex
}

// NewCommandHandler creates a handler for svc. metrics may be nil.
func NewCommandHandler(svc *business.MixerService, metrics *observability.Metrics) *CommandHandler {
	return &CommandHandler{
		svc:         svc,
		metrics:     metrics,
		log:         logrus.WithField("component", "worker"),
		errorCounts: make(map[string]int),
	}
}

// Func adapts Handle to the consumer callback signature
func (h *CommandHandler) Func(ctx context.Context) func([]byte) error {
	return func(body []byte) error {
		return h.Handle(ctx, body)
	}
}

// Handle decodes and applies one command. Malformed commands and ledger rejections are
// answered with a command_rejected event and acknowledged. Only transient failures are
// returned, so the message goes back on the queue.
func (h *CommandHandler) Handle(ctx context.Context, body []byte) error {
	var cmd models.Command
	if err := json.Unmarshal(body, &cmd); err != nil {
		h.log.WithError(err).Error("failed to unmarshal command")
		h.reject("", fmt.Sprintf("malformed command: %v", err))
		return nil
	}

	logger := h.log.WithField("action", cmd.Action)
	logger.Debugf("received command: %+v", cmd)

	var err error
	switch cmd.Action {
	case models.ActionDepositObserved:
		_, err = h.svc.Deposit(ctx, ledger.CreateDepositRequest{
			OwnerAddress:        cmd.OwnerAddress,
			Currency:            cmd.Currency,
			Amount:              cmd.Amount,
			TransactionHash:     cmd.TransactionHash,
			LockDurationSeconds: cmd.LockDurationSeconds,
		})
	case models.ActionWithdrawalRequested:
		_, err = h.svc.Withdraw(ctx, cmd.DepositID, cmd.WithdrawAddress, cmd.UseRelayer)
	case models.ActionResetDemo:
		_, err = h.svc.ResetDemo(ctx)
	default:
		err = fmt.Errorf("%w: %q", ErrUnknownAction, cmd.Action)
	}

	if err == nil {
		h.resetErrorCount(cmd.Action)
		h.metrics.RecordCommand(cmd.Action, outcomeOK)
		return nil
	}

	if isPermanent(err) {
		logger.WithError(err).Warn("command rejected")
		h.metrics.RecordCommand(cmd.Action, outcomeRejected)
		h.reject(cmd.Action, err.Error())
		return nil
	}

	count := h.incrementErrorCount(cmd.Action)
	if count >= maxErrorCount {
		logger.WithError(err).Errorf("error count exceeded threshold, dropping command")
		h.resetErrorCount(cmd.Action)
		h.metrics.RecordCommand(cmd.Action, outcomeDropped)
		h.reject(cmd.Action, err.Error())
		return nil
	}

	h.metrics.RecordCommand(cmd.Action, outcomeRetry)
	return err
}

// isPermanent reports errors that a retry cannot fix
func isPermanent(err error) bool {
	return errors.Is(err, ErrUnknownAction) || ledger.Reason(err) != "internal"
}

func (h *CommandHandler) reject(action, reason string) {
	h.svc.RejectCommand(action, reason)
}

// incrementErrorCount increments the consecutive failure count for action
func (h *CommandHandler) incrementErrorCount(action string) int {
	h.errorCountsMu.Lock()
	defer h.errorCountsMu.Unlock()

	h.errorCounts[action]++
	count := h.errorCounts[action]
	h.log.Warnf("error count for action %s: %d/%d", action, count, maxErrorCount)
	return count
}

func (h *CommandHandler) resetErrorCount(action string) {
	h.errorCountsMu.Lock()
	defer h.errorCountsMu.Unlock()

	if h.errorCounts[action] > 0 {
		h.log.Debugf("resetting error count for action %s (was %d)", action, h.errorCounts[action])
		delete(h.errorCounts, action)
	}
}
