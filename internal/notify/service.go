package notify

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/homequest/homequest-notify/internal/push"
)

// casRetries bounds the optimistic lastSent update loop. Two events for the
// same (owner, type) racing is the common case; three losses in a row means
// the type is being throttled anyway.
const casRetries = 3

// Service wires the notification core to its stores and the push transport.
// All methods are safe for concurrent use.
type Service struct {
	prefs     PreferenceStore
	notifs    NotificationStore
	tokens    DeviceTokenStore
	reminders ReminderLog
	sender    push.Sender
	logger    *slog.Logger
	now       func() time.Time
}

// NewService creates a Service. A nil sender disables actual delivery
// (dispatch marks everything failed with a transport-unavailable reason).
func NewService(prefs PreferenceStore, notifs NotificationStore, tokens DeviceTokenStore, reminders ReminderLog, sender push.Sender, logger *slog.Logger) *Service {
	return &Service{
		prefs:     prefs,
		notifs:    notifs,
		tokens:    tokens,
		reminders: reminders,
		sender:    sender,
		logger:    logger,
		now:       time.Now,
	}
}

// SetClock overrides the service clock. Test hook.
func (s *Service) SetClock(now func() time.Time) { s.now = now }

// --------------------------------------------------------------------------
// Request processing (EventIngestor → PreferenceResolver → Factory → store)
// --------------------------------------------------------------------------

// ProcessRequest resolves preferences for a request, materializes
// notifications, and persists them. Returns how many were created.
// Suppression (disabled, quiet hours, throttled) is a silent no-op.
func (s *Service) ProcessRequest(ctx context.Context, req Request) (int, error) {
	if err := NewValidationError(req.Validate()); err != nil {
		return 0, err
	}
	if req.UserID == "" {
		if req.TargetRole != "" {
			return s.processBroadcast(ctx, req)
		}
		return s.processFamily(ctx, req)
	}
	created, err := s.processSingle(ctx, req)
	if err != nil {
		return 0, err
	}
	if created {
		return 1, nil
	}
	return 0, nil
}

// ProcessEvents ingests typed domain events and processes every resulting
// request. One malformed event fails the whole call; suppressed requests
// do not.
func (s *Service) ProcessEvents(ctx context.Context, events ...Event) (int, error) {
	total := 0
	for _, e := range events {
		reqs, problems := e.Ingest()
		if err := NewValidationError(problems); err != nil {
			return total, err
		}
		for _, req := range reqs {
			n, err := s.ProcessRequest(ctx, req)
			if err != nil {
				return total, err
			}
			total += n
		}
	}
	return total, nil
}

// processSingle creates at most one notification for one recipient. The
// lastSent update is a compare-and-set loop: losing the race to another
// writer re-reads the preference and re-evaluates the throttle.
func (s *Service) processSingle(ctx context.Context, req Request) (bool, error) {
	for attempt := 0; attempt < casRetries; attempt++ {
		p, err := s.prefs.GetPreference(ctx, req.UserID, req.Type)
		if err == ErrNotFound {
			s.logger.Debug("no preference, suppressing",
				"owner", req.UserID, "type", req.Type)
			return false, nil
		}
		if err != nil {
			return false, fmt.Errorf("get preference: %w", err)
		}

		now := s.now()
		n := Build(req, p, now)
		if n == nil {
			return false, nil
		}

		ok, err := s.prefs.CompareAndSetLastSent(ctx, p.OwnerID, p.Type, p.LastSent, now)
		if err != nil {
			return false, fmt.Errorf("update last_sent: %w", err)
		}
		if !ok {
			continue
		}

		if err := s.notifs.InsertNotification(ctx, n); err != nil {
			return false, fmt.Errorf("insert notification: %w", err)
		}
		return true, nil
	}
	s.logger.Warn("last_sent contention, suppressing",
		"owner", req.UserID, "type", req.Type)
	return false, nil
}

// processFamily fans a family-wide request out to member preferences,
// producing independent notification records.
func (s *Service) processFamily(ctx context.Context, req Request) (int, error) {
	prefs, err := s.prefs.ListFamilyPreferences(ctx, req.FamilyID, req.Type)
	if err != nil {
		return 0, fmt.Errorf("list family preferences: %w", err)
	}

	created := 0
	for i := range prefs {
		if req.Excludes(prefs[i].OwnerID) {
			continue
		}
		member := req
		member.UserID = prefs[i].OwnerID
		member.FamilyID = ""
		member.TargetRole = ""
		ok, err := s.processSingle(ctx, member)
		if err != nil {
			s.logger.Warn("family fan-out member failed",
				"family", req.FamilyID, "owner", prefs[i].OwnerID, "error", err)
			continue
		}
		if ok {
			created++
		}
	}
	return created, nil
}

// processBroadcast persists one family-wide record whose audience is
// resolved from device tokens at dispatch time, filtered to the target
// role. Per-member preferences do not apply: role-targeted broadcasts come
// from the authenticated admin surface, and token role is not a field
// preferences carry.
func (s *Service) processBroadcast(ctx context.Context, req Request) (int, error) {
	now := s.now()
	n := &Notification{
		ID:         uuid.NewString(),
		FamilyID:   req.FamilyID,
		TargetRole: req.TargetRole,
		Type:       req.Type,
		Title:      req.Title,
		Message:    req.Message,
		Data:       req.Data,
		Channels:   []Channel{ChannelPush},
		Priority:   PriorityHigh,
		Status:     StatusPending,
		ExpiresAt:  req.ExpiresAt,
		CreatedAt:  now,
	}
	if err := s.notifs.InsertNotification(ctx, n); err != nil {
		return 0, fmt.Errorf("insert broadcast: %w", err)
	}
	return 1, nil
}

// --------------------------------------------------------------------------
// Manual/admin entry point
// --------------------------------------------------------------------------

// CustomSend is a manual notification submitted by an authenticated caller.
type CustomSend struct {
	TargetType string            `json:"target_type"` // "child" | "user" | "family"
	TargetID   string            `json:"target_id"`
	// Role narrows a family target to one member role ("parent" or
	// "child"): the send becomes a single broadcast record delivered to
	// that role's device tokens. Empty fans out per member preference.
	Role       string            `json:"target_role,omitempty"`
	Title      string            `json:"title"`
	Body       string            `json:"body"`
	Type       NotificationType  `json:"notification_type,omitempty"`
	CustomData map[string]string `json:"custom_data,omitempty"`
}

// SendCustom dispatches a manual notification to a child, user, or family.
// Returns ErrUnauthenticated for an empty caller and ErrInvalidTarget for
// an unknown target type or role.
func (s *Service) SendCustom(ctx context.Context, caller string, cs CustomSend) (int, error) {
	if caller == "" {
		return 0, ErrUnauthenticated
	}
	t := cs.Type
	if t == "" {
		t = TypeCustom
	}
	req := Request{
		Type:    t,
		Title:   cs.Title,
		Message: cs.Body,
		Data:    cs.CustomData,
	}
	switch cs.TargetType {
	case "child", "user":
		req.UserID = cs.TargetID
	case "family":
		req.FamilyID = cs.TargetID
		switch cs.Role {
		case "", "parent", "child":
			req.TargetRole = cs.Role
		default:
			return 0, fmt.Errorf("%w: role %q", ErrInvalidTarget, cs.Role)
		}
	default:
		return 0, fmt.Errorf("%w: %q", ErrInvalidTarget, cs.TargetType)
	}
	return s.ProcessRequest(ctx, req)
}

// --------------------------------------------------------------------------
// Dispatch (Scheduler → DeliveryDispatcher → token health)
// --------------------------------------------------------------------------

// DispatchDue claims up to batchSize due notifications and delivers them
// across a worker pool. One recipient's failure never aborts the batch.
// Safe to invoke concurrently with itself: claims do not overlap.
func (s *Service) DispatchDue(ctx context.Context, batchSize, workers int) (sent, failed int, err error) {
	claimed, err := s.notifs.ClaimDue(ctx, s.now(), batchSize)
	if err != nil {
		return 0, 0, fmt.Errorf("claim due notifications: %w", err)
	}
	if len(claimed) == 0 {
		return 0, 0, nil
	}

	if workers < 1 {
		workers = 1
	}
	if workers > len(claimed) {
		workers = len(claimed)
	}

	ch := make(chan *Notification, len(claimed))
	for _, n := range claimed {
		ch <- n
	}
	close(ch)

	var mu sync.Mutex
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for n := range ch {
				ok := s.dispatchOne(ctx, n)
				mu.Lock()
				if ok {
					sent++
				} else {
					failed++
				}
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	return sent, failed, nil
}

// dispatchOne delivers a single notification to its recipient's active
// device tokens and updates its status. Reports whether the notification
// reached at least one token.
func (s *Service) dispatchOne(ctx context.Context, n *Notification) bool {
	now := s.now()

	tokens, err := s.recipientTokens(ctx, n)
	if err != nil {
		s.logger.Warn("resolve tokens failed", "notification_id", n.ID, "error", err)
		s.fail(ctx, n, "resolve tokens: "+err.Error(), now)
		return false
	}
	if len(tokens) == 0 {
		// No active devices is not an error: leave the record pending.
		s.logger.Info("no active tokens, skipping",
			"notification_id", n.ID, "user_id", n.UserID, "family_id", n.FamilyID)
		_ = s.notifs.UpdateNotification(ctx, n)
		return false
	}

	if s.sender == nil {
		s.fail(ctx, n, "push transport not configured", now)
		return false
	}

	res, err := s.sender.SendMulticast(ctx, tokens, push.Payload{
		Title: n.Title,
		Body:  n.Message,
		Data:  n.Data,
	})
	if err != nil {
		s.logger.Warn("multicast send failed", "notification_id", n.ID, "error", err)
		s.fail(ctx, n, err.Error(), now)
		return false
	}

	dead := deadTokens(tokens, res)

	if res.SuccessCount == 0 {
		reason := "all tokens failed"
		for _, r := range res.Responses {
			if r.ErrorCode != "" {
				reason = r.ErrorCode
				break
			}
		}
		s.fail(ctx, n, reason, now)
	} else {
		if err := n.Transition(StatusSent, now); err == nil && res.SuccessCount == len(tokens) {
			// Every token accepted the message: count it delivered.
			_ = n.Transition(StatusDelivered, now)
		}
		if err := s.notifs.UpdateNotification(ctx, n); err != nil {
			s.logger.Warn("status update failed", "notification_id", n.ID, "error", err)
		}
	}

	// Token health runs after the status write and never blocks it.
	if len(dead) > 0 {
		if err := s.tokens.DeactivateTokens(ctx, dead); err != nil {
			s.logger.Warn("token deactivation failed",
				"notification_id", n.ID, "tokens", len(dead), "error", err)
		} else {
			s.logger.Info("deactivated dead tokens",
				"notification_id", n.ID, "tokens", len(dead))
		}
	}
	return res.SuccessCount > 0
}

func (s *Service) recipientTokens(ctx context.Context, n *Notification) ([]string, error) {
	if n.UserID != "" {
		return s.tokens.ActiveTokensForUser(ctx, n.UserID)
	}
	return s.tokens.ActiveTokensForFamily(ctx, n.FamilyID, n.TargetRole)
}

func (s *Service) fail(ctx context.Context, n *Notification, reason string, now time.Time) {
	if err := n.Fail(reason, now); err != nil {
		s.logger.Warn("mark failed rejected", "notification_id", n.ID, "error", err)
		return
	}
	if err := s.notifs.UpdateNotification(ctx, n); err != nil {
		s.logger.Warn("persist failure status", "notification_id", n.ID, "error", err)
	}
}

// deadTokens maps per-token responses back onto the token slice and
// returns the tokens whose error codes mean permanent death.
func deadTokens(tokens []string, res *push.Result) []string {
	var dead []string
	for i, r := range res.Responses {
		if i >= len(tokens) {
			break
		}
		if !r.Success && push.TokenDead(r.ErrorCode) {
			dead = append(dead, tokens[i])
		}
	}
	return dead
}

// --------------------------------------------------------------------------
// Receipts and cancellation
// --------------------------------------------------------------------------

// MarkDelivered records a delivery receipt for a sent notification.
func (s *Service) MarkDelivered(ctx context.Context, id string) error {
	return s.advance(ctx, id, StatusDelivered)
}

// MarkRead records a read receipt for a delivered notification.
func (s *Service) MarkRead(ctx context.Context, id string) error {
	return s.advance(ctx, id, StatusRead)
}

func (s *Service) advance(ctx context.Context, id string, to Status) error {
	n, err := s.notifs.GetNotification(ctx, id)
	if err != nil {
		return err
	}
	if err := n.Transition(to, s.now()); err != nil {
		return err
	}
	return s.notifs.UpdateNotification(ctx, n)
}

// CancelNotification cancels a pending notification. Cancellation is
// advisory and has no effect once dispatch has started.
func (s *Service) CancelNotification(ctx context.Context, id string) error {
	n, err := s.notifs.GetNotification(ctx, id)
	if err != nil {
		return err
	}
	if err := n.Cancel(); err != nil {
		return err
	}
	return s.notifs.UpdateNotification(ctx, n)
}

// --------------------------------------------------------------------------
// Scheduled passes (reminders, digests)
// --------------------------------------------------------------------------

// RunReminderPass creates quest-deadline reminders. Idempotent under
// concurrent or repeated invocation: each deadline is keyed
// questID_reminderType_date in the durable reminder log, and a duplicate
// pass that finds the key present skips silently.
func (s *Service) RunReminderPass(ctx context.Context, deadlines []QuestDeadlineEvent) (int, error) {
	created := 0
	for _, d := range deadlines {
		key := fmt.Sprintf("%s_deadline_%s", d.QuestID, d.Deadline.Format("2006-01-02"))
		first, err := s.reminders.ClaimReminder(ctx, key)
		if err != nil {
			return created, fmt.Errorf("claim reminder %s: %w", key, err)
		}
		if !first {
			continue
		}
		n, err := s.ProcessEvents(ctx, d)
		if err != nil {
			s.logger.Warn("reminder failed", "key", key, "error", err)
			continue
		}
		created += n
	}
	return created, nil
}

// CancelExpiredNotifications moves expired pending notifications to
// cancelled so they stop occupying the pending queue.
func (s *Service) CancelExpiredNotifications(ctx context.Context) (int64, error) {
	return s.notifs.CancelExpired(ctx, s.now())
}

// RunDigestPass creates daily or weekly summary notifications for every
// owner whose digest schedule matches now.
func (s *Service) RunDigestPass(ctx context.Context, t NotificationType) (int, error) {
	if t != TypeDailySummary && t != TypeWeeklySummary {
		return 0, fmt.Errorf("not a digest type: %q", t)
	}
	prefs, err := s.prefs.ListScheduled(ctx, t)
	if err != nil {
		return 0, fmt.Errorf("list scheduled preferences: %w", err)
	}

	title, msg := "Your daily summary", "Here's what your family got done today"
	if t == TypeWeeklySummary {
		title, msg = "Your weekly summary", "Here's what your family got done this week"
	}

	created := 0
	now := s.now()
	for i := range prefs {
		p := &prefs[i]
		if !ShouldSendScheduled(p, now) {
			continue
		}
		ok, err := s.processSingle(ctx, Request{
			Type:    t,
			UserID:  p.OwnerID,
			Title:   title,
			Message: msg,
		})
		if err != nil {
			s.logger.Warn("digest failed", "owner", p.OwnerID, "type", t, "error", err)
			continue
		}
		if ok {
			created++
		}
	}
	return created, nil
}
