// Package crmsync pushes freshly authenticated identities to the CRM. It
// is a best-effort side channel: failures are recorded and swallowed.
package crmsync

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/sourcegraph/conc"
	"github.com/sourcegraph/conc/panics"
	"go.uber.org/zap"

	"auth-bridge/internal/auth"
	"auth-bridge/internal/crm"
	"auth-bridge/internal/monitoring"
)

const defaultTimeout = 10 * time.Second

// CustomerAPI is the part of the CRM client the synchronizer needs.
type CustomerAPI interface {
	SearchByEmail(ctx context.Context, email string) ([]crm.Customer, error)
	Create(ctx context.Context, c crm.Customer) (*crm.Customer, error)
	UpdateTags(ctx context.Context, id int64, tags string) (*crm.Customer, error)
}

type Outcome string

const (
	OutcomeCreated Outcome = "created"
	OutcomeUpdated Outcome = "updated"
	OutcomeSkipped Outcome = "skipped"
	OutcomeFailed  Outcome = "failed"
)

type Synchronizer struct {
	api       CustomerAPI
	markerTag string
	timeout   time.Duration
	logger    *zap.Logger

	wg conc.WaitGroup
}

// New builds a synchronizer. A nil api disables synchronization; every
// identity is then skipped.
func New(api CustomerAPI, markerTag string, timeout time.Duration, logger *zap.Logger) *Synchronizer {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Synchronizer{
		api:       api,
		markerTag: markerTag,
		timeout:   timeout,
		logger:    logger.Named("crmsync"),
	}
}

// SyncIdentity upserts the identity's CRM customer by email. An existing
// customer gets the marker tag merged into its tags; otherwise a customer
// is created with the tag, a verified email and marketing opt-in. Errors
// wrap auth.ErrSyncFailed.
func (s *Synchronizer) SyncIdentity(ctx context.Context, id auth.Identity) (Outcome, error) {
	if s.api == nil || !id.HasEmail() {
		return OutcomeSkipped, nil
	}

	existing, err := s.api.SearchByEmail(ctx, id.Email)
	if err != nil {
		return OutcomeFailed, fmt.Errorf("%w: search: %w", auth.ErrSyncFailed, err)
	}

	if len(existing) > 0 {
		cu := existing[0]
		if _, err := s.api.UpdateTags(ctx, cu.ID, MergeTag(cu.Tags, s.markerTag)); err != nil {
			return OutcomeFailed, fmt.Errorf("%w: update customer %d: %w", auth.ErrSyncFailed, cu.ID, err)
		}
		return OutcomeUpdated, nil
	}

	first, last := splitName(id.DisplayName)
	_, err = s.api.Create(ctx, crm.Customer{
		Email:            id.Email,
		FirstName:        first,
		LastName:         last,
		Tags:             s.markerTag,
		VerifiedEmail:    true,
		AcceptsMarketing: true,
	})
	if err != nil {
		return OutcomeFailed, fmt.Errorf("%w: create: %w", auth.ErrSyncFailed, err)
	}
	return OutcomeCreated, nil
}

// Dispatch runs SyncIdentity in the background with its own deadline,
// detached from any request. It never blocks on the CRM.
func (s *Synchronizer) Dispatch(id auth.Identity) {
	s.wg.Go(func() {
		ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
		defer cancel()

		var pc panics.Catcher
		pc.Try(func() { s.run(ctx, id) })
		if r := pc.Recovered(); r != nil {
			monitoring.SyncOutcome(string(OutcomeFailed))
			monitoring.CaptureError(r.AsError(), map[string]string{"component": "crmsync"})
			s.logger.Error("crm sync panicked", zap.Error(r.AsError()))
		}
	})
}

func (s *Synchronizer) run(ctx context.Context, id auth.Identity) {
	start := time.Now()
	outcome, err := s.SyncIdentity(ctx, id)
	monitoring.SyncOutcome(string(outcome))

	fields := []zap.Field{
		zap.String("provider", id.Provider),
		zap.String("external_id", id.ExternalID),
		zap.String("outcome", string(outcome)),
		zap.Duration("duration", time.Since(start)),
	}
	if err != nil {
		monitoring.CaptureError(err, map[string]string{
			"component": "crmsync",
			"provider":  id.Provider,
		})
		s.logger.Warn("crm sync failed", append(fields, zap.Error(err))...)
		return
	}
	s.logger.Info("crm sync finished", fields...)
}

// Wait blocks until dispatched syncs finish or ctx is done.
func (s *Synchronizer) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// MergeTag adds tag to a comma-separated tag list unless it is already
// present in any letter case. Blank entries are dropped.
func MergeTag(tags, tag string) string {
	tag = strings.TrimSpace(tag)
	var out []string
	found := tag == ""
	for _, t := range strings.Split(tags, ",") {
		t = strings.TrimSpace(t)
		if t == "" {
			continue
		}
		if strings.EqualFold(t, tag) {
			found = true
		}
		out = append(out, t)
	}
	if !found {
		out = append(out, tag)
	}
	return strings.Join(out, ", ")
}

func splitName(name string) (string, string) {
	first, last, _ := strings.Cut(strings.TrimSpace(name), " ")
	return first, strings.TrimSpace(last)
}
