package sharing

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"contact-manager/core/storage"
	"contact-manager/feature/contacts"
	"contact-manager/feature/contacts/models"

	"github.com/minio/minio-go/v7"
	"go.uber.org/zap"
)

// Strategy stores one isolated shared copy per (contact, recipient) pair.
// Each copy is written under two mirrored keys so that both the owner and
// the recipient can enumerate their shares with a single prefix listing,
// and revoking one recipient is a constant-time object removal that cannot
// affect any other recipient.
type Strategy struct {
	client storage.Client
	bucket string
	owner  string
	logger *zap.Logger
	now    func() time.Time
}

// NewStrategy creates a sharing strategy acting as the given owner.
func NewStrategy(client storage.Client, bucket, owner string, logger *zap.Logger) *Strategy {
	return &Strategy{
		client: client,
		bucket: bucket,
		owner:  owner,
		logger: logger,
		now:    time.Now,
	}
}

// ShareOutcome reports what a single share operation did.
type ShareOutcome string

const (
	// OutcomeShared means a new grant and a new shared copy were created.
	OutcomeShared ShareOutcome = "shared"
	// OutcomeAlreadyShared means the grant existed and its copies were intact.
	OutcomeAlreadyShared ShareOutcome = "already_shared"
	// OutcomeRepaired means the grant existed but a missing copy was rewritten.
	OutcomeRepaired ShareOutcome = "repaired"
)

// Share grants a recipient access to the contact. It is idempotent: sharing
// an already-shared contact verifies the stored copies and repopulates any
// that are missing, without touching the existing permission or appending a
// duplicate grant. The contact is mutated in place; the caller persists it.
func (s *Strategy) Share(ctx context.Context, c *models.Contact, recipient string, perm models.SharePermission) (ShareOutcome, error) {
	if recipient == s.owner {
		return "", fmt.Errorf("cannot share contact %s with its owner", c.ContactID)
	}

	env, existing, already := s.claimGrant(c, recipient, perm)
	if already {
		repaired, err := s.repairCopies(ctx, c, recipient, existing)
		if err != nil {
			return "", err
		}
		if repaired {
			return OutcomeRepaired, nil
		}
		return OutcomeAlreadyShared, nil
	}

	err := s.writeCopies(ctx, env)
	s.settleClaim(c, env, err)
	if err != nil {
		return "", err
	}
	return OutcomeShared, nil
}

// claimGrant records a new grant on the contact, or reports the existing one.
// It only touches metadata; the caller writes the copies and then settles the
// claim with settleClaim. Splitting the mutation from the storage writes lets
// a fan-out hold its lock only around the metadata.
func (s *Strategy) claimGrant(c *models.Contact, recipient string, perm models.SharePermission) (env *SharedEnvelope, existing models.SharePermission, already bool) {
	if c.Metadata.Sharing.IsSharedWith(recipient) {
		return nil, c.Metadata.Sharing.Permissions[recipient], true
	}
	now := s.now()
	perm.SharedAt = now
	env = NewEnvelope(s.owner, recipient, c, perm, now)
	c.Metadata.Sharing.AddGrant(recipient, perm)
	return env, perm, false
}

// settleClaim finalizes a claimed grant: the history entry on success, a
// rollback when the copy writes failed so no grant lingers without copies.
func (s *Strategy) settleClaim(c *models.Contact, env *SharedEnvelope, writeErr error) {
	if writeErr != nil {
		c.Metadata.Sharing.RemoveGrant(env.Recipient)
		return
	}
	c.Metadata.Sharing.AppendHistory(models.ShareEvent{
		Action:   "granted",
		Username: env.Recipient,
		At:       env.SharedAt,
	}, contacts.MaxShareHistoryEntries)
}

// Revoke removes a recipient's access: both mirror copies are deleted and the
// grant is dropped. Revoking a user that was never granted is a no-op.
func (s *Strategy) Revoke(ctx context.Context, c *models.Contact, recipient string) (bool, error) {
	existed := c.Metadata.Sharing.RemoveGrant(recipient)
	if !existed {
		return false, nil
	}

	for _, key := range copyKeys(s.owner, recipient, c.ContactID) {
		err := s.client.RemoveObject(ctx, s.bucket, key, minio.RemoveObjectOptions{})
		if err != nil && !isNotFound(err) {
			// Roll nothing back: the grant is gone and the sweep will not
			// resurrect a copy without a grant. Report the failure.
			return true, fmt.Errorf("failed to remove shared copy %s: %w", key, err)
		}
	}

	c.Metadata.Sharing.AppendHistory(models.ShareEvent{
		Action:   "revoked",
		Username: recipient,
		At:       s.now(),
	}, contacts.MaxShareHistoryEntries)
	return true, nil
}

// Refresh rewrites the shared copies of every current grant with the
// contact's latest content. It is called after a local edit so recipients
// see the new version.
func (s *Strategy) Refresh(ctx context.Context, c *models.Contact) error {
	for _, recipient := range c.Metadata.Sharing.SharedWith {
		perm := c.Metadata.Sharing.Permissions[recipient]
		env := NewEnvelope(s.owner, recipient, c, perm, s.now())
		env.SharedAt = perm.SharedAt
		if err := s.writeCopies(ctx, env); err != nil {
			return err
		}
	}
	return nil
}

// EnsureShares verifies that every grant on the contact has intact stored
// copies and rewrites the ones that are missing. Permissions are never
// modified: restoration heals storage, not access decisions. It returns the
// number of repaired grants.
func (s *Strategy) EnsureShares(ctx context.Context, c *models.Contact) (int, error) {
	repairedCount := 0
	for _, recipient := range c.Metadata.Sharing.SharedWith {
		perm := c.Metadata.Sharing.Permissions[recipient]
		repaired, err := s.repairCopies(ctx, c, recipient, perm)
		if err != nil {
			return repairedCount, err
		}
		if repaired {
			repairedCount++
		}
	}
	return repairedCount, nil
}

// BatchResult summarizes a share fan-out over many recipients.
type BatchResult struct {
	SuccessCount       int               `json:"success_count"`
	AlreadySharedCount int               `json:"already_shared_count"`
	ErrorCount         int               `json:"error_count"`
	PerUser            map[string]string `json:"per_user"`
	Duration           time.Duration     `json:"duration"`
}

// ShareWithMany fans a share out to many recipients using a bounded worker
// pool. Each recipient is isolated: one failure never aborts the batch.
func (s *Strategy) ShareWithMany(ctx context.Context, c *models.Contact, recipients []string, perm models.SharePermission, workers int) *BatchResult {
	start := s.now()
	result := &BatchResult{PerUser: make(map[string]string, len(recipients))}
	if len(recipients) == 0 {
		return result
	}

	if workers <= 0 {
		workers = 8
	}
	if workers > len(recipients) {
		workers = len(recipients)
	}

	type userOutcome struct {
		user    string
		outcome ShareOutcome
		err     error
	}

	recipientsCh := make(chan string, len(recipients))
	outcomeCh := make(chan userOutcome, len(recipients))
	for _, r := range recipients {
		recipientsCh <- r
	}
	close(recipientsCh)

	// The contact's grant metadata is shared mutable state. Only the claim
	// and the settlement hold the lock; the copy writes target disjoint
	// per-recipient keys and run concurrently across workers.
	var mu sync.Mutex
	var wg sync.WaitGroup
	wg.Add(workers)
	for i := 0; i < workers; i++ {
		go func() {
			defer wg.Done()
			for recipient := range recipientsCh {
				if recipient == s.owner {
					outcomeCh <- userOutcome{
						user: recipient,
						err:  fmt.Errorf("cannot share contact %s with its owner", c.ContactID),
					}
					continue
				}

				mu.Lock()
				env, existing, already := s.claimGrant(c, recipient, perm)
				mu.Unlock()

				if already {
					repaired, err := s.repairCopies(ctx, c, recipient, existing)
					outcome := OutcomeAlreadyShared
					if repaired {
						outcome = OutcomeRepaired
					}
					outcomeCh <- userOutcome{user: recipient, outcome: outcome, err: err}
					continue
				}

				err := s.writeCopies(ctx, env)
				mu.Lock()
				s.settleClaim(c, env, err)
				mu.Unlock()
				outcomeCh <- userOutcome{user: recipient, outcome: OutcomeShared, err: err}
			}
		}()
	}
	wg.Wait()
	close(outcomeCh)

	for out := range outcomeCh {
		switch {
		case out.err != nil:
			result.ErrorCount++
			result.PerUser[out.user] = out.err.Error()
		case out.outcome == OutcomeAlreadyShared:
			result.AlreadySharedCount++
			result.PerUser[out.user] = string(out.outcome)
		default:
			result.SuccessCount++
			result.PerUser[out.user] = string(out.outcome)
		}
	}

	result.Duration = s.now().Sub(start)
	s.logger.Info("Share fan-out finished",
		zap.String("contact_id", c.ContactID),
		zap.Int("recipients", len(recipients)),
		zap.Int("shared", result.SuccessCount),
		zap.Int("already_shared", result.AlreadySharedCount),
		zap.Int("errors", result.ErrorCount),
		zap.Duration("duration", result.Duration))
	return result
}

// ListIncoming enumerates every shared copy addressed to the recipient,
// grouped by sharer. A listing failure is returned as an error and never as
// an empty result, so callers can distinguish "nothing shared" from "could
// not list".
func (s *Strategy) ListIncoming(ctx context.Context, recipient string) (map[string][]*SharedEnvelope, error) {
	prefix := IncomingPrefix(recipient)
	objects := s.client.ListObjects(ctx, s.bucket, minio.ListObjectsOptions{
		Prefix:    prefix,
		Recursive: true,
	})

	out := make(map[string][]*SharedEnvelope)
	for obj := range objects {
		if obj.Err != nil {
			return nil, fmt.Errorf("failed to list shares under %s: %w", prefix, obj.Err)
		}
		sharer, _, ok := parseIncomingKey(obj.Key)
		if !ok {
			continue
		}

		env, err := s.readEnvelope(ctx, obj.Key)
		if err != nil {
			return nil, err
		}
		out[sharer] = append(out[sharer], env)
	}
	return out, nil
}

func (s *Strategy) writeCopies(ctx context.Context, env *SharedEnvelope) error {
	data, err := env.Encode()
	if err != nil {
		return err
	}
	for _, key := range copyKeys(env.Owner, env.Recipient, env.ContactID) {
		_, err := s.client.PutObject(ctx, s.bucket, key,
			bytes.NewReader(data), int64(len(data)),
			minio.PutObjectOptions{ContentType: "application/json"})
		if err != nil {
			return fmt.Errorf("failed to store shared copy %s: %w", key, err)
		}
	}
	return nil
}

// repairCopies rewrites any missing mirror copy of an existing grant.
func (s *Strategy) repairCopies(ctx context.Context, c *models.Contact, recipient string, perm models.SharePermission) (bool, error) {
	missing := false
	for _, key := range copyKeys(s.owner, recipient, c.ContactID) {
		_, err := s.client.StatObject(ctx, s.bucket, key, minio.StatObjectOptions{})
		if err == nil {
			continue
		}
		if !isNotFound(err) {
			return false, fmt.Errorf("failed to check shared copy %s: %w", key, err)
		}
		missing = true
		break
	}
	if !missing {
		return false, nil
	}

	env := NewEnvelope(s.owner, recipient, c, perm, s.now())
	env.SharedAt = perm.SharedAt
	if err := s.writeCopies(ctx, env); err != nil {
		return false, err
	}
	s.logger.Info("Repopulated missing shared copy",
		zap.String("contact_id", c.ContactID),
		zap.String("recipient", recipient))
	return true, nil
}

func (s *Strategy) readEnvelope(ctx context.Context, key string) (*SharedEnvelope, error) {
	reader, err := s.client.GetObject(ctx, s.bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, fmt.Errorf("failed to get shared copy %s: %w", key, err)
	}
	defer reader.Close()

	data, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("failed to read shared copy %s: %w", key, err)
	}
	return DecodeEnvelope(data)
}

func copyKeys(owner, recipient, contactID string) []string {
	return []string{
		OutgoingKey(owner, recipient, contactID),
		IncomingKey(recipient, owner, contactID),
	}
}

func isNotFound(err error) bool {
	resp := minio.ToErrorResponse(err)
	return resp.Code == "NoSuchKey" || resp.StatusCode == 404
}
