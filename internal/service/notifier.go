package service

import (
	"context"
	"log"
	"time"

	"backoffice/internal/model"
	"backoffice/internal/repository"

	"github.com/google/uuid"
)

// DefaultPollInterval matches the refresh cadence approval list views expect.
const DefaultPollInterval = 30 * time.Second

// NewApprovalsFunc receives the pending requests created since the previous
// poll. Delivery is best effort: a subscriber that is not running misses the
// signal entirely, so nothing downstream may depend on it firing.
type NewApprovalsFunc func(requests []model.ApprovalRequest)

// ApprovalNotifier drives soft real-time UI refresh by polling the record
// store for newly created pending requests.
type ApprovalNotifier interface {
	Subscribe(ctx context.Context, facilityID uuid.UUID, interval time.Duration, fn NewApprovalsFunc) *Subscription
}

type approvalNotifier struct {
	approvalRepo repository.ApprovalRepository
}

func NewApprovalNotifier(approvalRepo repository.ApprovalRepository) ApprovalNotifier {
	return &approvalNotifier{approvalRepo: approvalRepo}
}

// Subscription is a handle for one polling loop. Stop cancels the loop and
// waits for an in-flight tick to settle.
type Subscription struct {
	cancel context.CancelFunc
	done   chan struct{}
}

func (s *Subscription) Stop() {
	s.cancel()
	<-s.done
}

// Subscribe starts a polling loop on the given interval. Ticks run one at a
// time; the next tick does not start before the callback returns. lastCheck
// always advances to the tick's own timestamp, found or not, so a quiet
// stretch never grows the scan window.
func (n *approvalNotifier) Subscribe(ctx context.Context, facilityID uuid.UUID, interval time.Duration, fn NewApprovalsFunc) *Subscription {
	if interval <= 0 {
		interval = DefaultPollInterval
	}

	loopCtx, cancel := context.WithCancel(ctx)
	sub := &Subscription{cancel: cancel, done: make(chan struct{})}

	go func() {
		defer close(sub.done)

		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		lastCheck := time.Now()
		for {
			select {
			case <-loopCtx.Done():
				return
			case <-ticker.C:
				tickTime := time.Now()
				requests, err := n.approvalRepo.PendingCreatedSince(loopCtx, facilityID, lastCheck)
				if err != nil {
					// Best-effort signal: log and try again next tick.
					log.Printf("approval notifier poll failed: %v", err)
					lastCheck = tickTime
					continue
				}
				if len(requests) > 0 {
					fn(requests)
				}
				lastCheck = tickTime
			}
		}
	}()

	return sub
}
