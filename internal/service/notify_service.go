package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"ColdChainAPI/internal/config"
	"ColdChainAPI/internal/logger"
	"ColdChainAPI/internal/models"
	"ColdChainAPI/internal/notify"
	redisx "ColdChainAPI/internal/redis"
	"ColdChainAPI/internal/repository"
)

// deliveryJob is what travels through the redis stream between the enqueue
// path and the dispatch workers.
type deliveryJob struct {
	DeliveryID     string `json:"delivery_id"`
	OrganizationID string `json:"organization_id"`
	AlertID        string `json:"alert_id"`
	UnitID         string `json:"unit_id"`
	UnitName       string `json:"unit_name"`
	Channel        string `json:"channel"`
	ContactName    string `json:"contact_name"`
	ContactAddress string `json:"contact_address"`
	Severity       string `json:"severity"`
	TempTenths     int    `json:"temp_tenths"`
	Bound          string `json:"bound"`
	Level          int    `json:"level"`
	TriggeredAt    string `json:"triggered_at"`
}

// NotifyService fans alerts out to escalation contacts. Enqueueing writes a
// pending delivery row then publishes a job to a redis stream; a pool of
// consumer-group workers performs the actual sends with retry, so a crashed
// worker's jobs are redelivered to its peers.
type NotifyService struct {
	db           *sql.DB
	cache        *redisx.Client
	contactRepo  *repository.ContactRepository
	deliveryRepo *repository.DeliveryRepository
	audit        *AuditService
	providers    map[string]notify.Provider
	cfg          config.NotifyConfig
	log          *logger.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewNotifyService(
	db *sql.DB,
	cache *redisx.Client,
	contactRepo *repository.ContactRepository,
	deliveryRepo *repository.DeliveryRepository,
	audit *AuditService,
	providers map[string]notify.Provider,
	cfg config.NotifyConfig,
	log *logger.Logger,
) *NotifyService {
	ctx, cancel := context.WithCancel(context.Background())
	return &NotifyService{
		db:           db,
		cache:        cache,
		contactRepo:  contactRepo,
		deliveryRepo: deliveryRepo,
		audit:        audit,
		providers:    providers,
		cfg:          cfg,
		log:          log,
		ctx:          ctx,
		cancel:       cancel,
	}
}

// EnqueueAlert creates delivery records for every contact at or below the
// given tier and queues one job per record. Contacts on channels with no
// configured provider are skipped up front rather than left to fail.
func (s *NotifyService) EnqueueAlert(ctx context.Context, unit *models.StorageUnit, alert *models.Alert, tier int) error {
	contacts, err := s.contactRepo.GetUpToTier(ctx, unit.OrganizationID, unit.SiteID, tier)
	if err != nil {
		return err
	}

	if len(contacts) == 0 {
		s.log.Warn("No escalation contacts up to tier %d for organization %s", tier, unit.OrganizationID)
		return nil
	}

	for _, contact := range contacts {
		if _, ok := s.providers[contact.Channel]; !ok {
			s.log.Warn("No provider configured for channel %s, skipping contact %s", contact.Channel, contact.Name)
			continue
		}

		delivery := &models.NotificationDelivery{
			AlertID:        alert.ID,
			Tier:           contact.Tier,
			Channel:        contact.Channel,
			ContactName:    contact.Name,
			ContactAddress: contact.Address,
		}
		if err := s.deliveryRepo.Create(ctx, delivery); err != nil {
			return err
		}

		job := deliveryJob{
			DeliveryID:     delivery.ID,
			OrganizationID: unit.OrganizationID,
			AlertID:        alert.ID,
			UnitID:         unit.UnitID,
			UnitName:       unit.Name,
			Channel:        contact.Channel,
			ContactName:    contact.Name,
			ContactAddress: contact.Address,
			Severity:       alert.Severity,
			TempTenths:     alert.TriggerTempTenths,
			Bound:          alert.ThresholdViolated,
			Level:          tier,
			TriggeredAt:    alert.TriggeredAt.UTC().Format(time.RFC3339),
		}

		payload, err := json.Marshal(job)
		if err != nil {
			return fmt.Errorf("failed to encode delivery job: %w", err)
		}

		if _, err := redisx.PublishToStream(ctx, s.cache, s.cfg.Stream, map[string]interface{}{"job": payload}); err != nil {
			return err
		}
	}

	return nil
}

// HandleCallback applies an asynchronous gateway status update.
func (s *NotifyService) HandleCallback(ctx context.Context, providerMessageID, status string) error {
	switch status {
	case models.DeliveryDelivered, models.DeliveryFailed:
	default:
		return fmt.Errorf("%w: unknown delivery status %q", models.ErrValidation, status)
	}
	return s.deliveryRepo.UpdateStatusByProviderMessageID(ctx, providerMessageID, status)
}

func (s *NotifyService) StartWorkers() error {
	if err := redisx.CreateConsumerGroup(s.ctx, s.cache, s.cfg.Stream, s.cfg.ConsumerGroup); err != nil {
		return err
	}

	for i := 0; i < s.cfg.Workers; i++ {
		s.wg.Add(1)
		go s.workerLoop(fmt.Sprintf("dispatcher-%d", i))
	}

	s.log.Info("Notification workers started (workers: %d, stream: %s)", s.cfg.Workers, s.cfg.Stream)
	return nil
}

func (s *NotifyService) Shutdown() {
	s.cancel()
	s.wg.Wait()
	s.log.Info("Notification workers stopped")
}

func (s *NotifyService) workerLoop(consumer string) {
	defer s.wg.Done()

	for {
		select {
		case <-s.ctx.Done():
			return
		default:
		}

		messages, err := redisx.ReadFromStream(s.ctx, s.cache, s.cfg.Stream, s.cfg.ConsumerGroup, consumer, 10)
		if err != nil {
			if s.ctx.Err() != nil {
				return
			}
			s.log.Error("Worker %s failed to read stream: %v", consumer, err)
			time.Sleep(time.Second)
			continue
		}

		for _, msg := range messages {
			s.processMessage(consumer, msg)
		}
	}
}

func (s *NotifyService) processMessage(consumer string, msg redisx.StreamMessage) {
	raw, ok := msg.Values["job"].(string)
	if !ok {
		s.log.Error("Worker %s got malformed stream entry %s, discarding", consumer, msg.ID)
		s.ack(msg)
		return
	}

	var job deliveryJob
	if err := json.Unmarshal([]byte(raw), &job); err != nil {
		s.log.Error("Worker %s failed to decode job %s: %v", consumer, msg.ID, err)
		s.ack(msg)
		return
	}

	s.deliver(&job)
	s.ack(msg)
}

// deliver attempts the send up to MaxAttempts times with doubling backoff.
// Every attempt is recorded on the delivery row, and both outcomes land in
// the audit trail: the chain covers sends as well as exhausted retries.
func (s *NotifyService) deliver(job *deliveryJob) {
	provider, ok := s.providers[job.Channel]
	if !ok {
		s.markFailed(job, 0, "no provider for channel")
		return
	}

	message := s.renderMessage(job)
	backoff := s.cfg.InitialBackoff

	for attempt := 1; attempt <= s.cfg.MaxAttempts; attempt++ {
		providerMessageID, err := provider.Send(s.ctx, message)
		if err == nil {
			var msgID *string
			if providerMessageID != "" {
				msgID = &providerMessageID
			}
			if err := s.deliveryRepo.MarkAttempt(s.ctx, job.DeliveryID, models.DeliverySent, attempt, msgID); err != nil {
				s.log.Error("Failed to record sent delivery %s: %v", job.DeliveryID, err)
			}
			s.auditDelivery(job, "delivery.sent", map[string]interface{}{
				"alert_id": job.AlertID,
				"channel":  job.Channel,
				"contact":  job.ContactAddress,
				"attempts": attempt,
			})
			return
		}

		s.log.Warn("Delivery %s attempt %d/%d failed: %v", job.DeliveryID, attempt, s.cfg.MaxAttempts, err)

		if attempt < s.cfg.MaxAttempts {
			if err := s.deliveryRepo.MarkAttempt(s.ctx, job.DeliveryID, models.DeliveryPending, attempt, nil); err != nil {
				s.log.Error("Failed to record delivery attempt %s: %v", job.DeliveryID, err)
			}
			select {
			case <-s.ctx.Done():
				return
			case <-time.After(backoff):
			}
			backoff *= 2
			continue
		}

		s.markFailed(job, attempt, err.Error())
	}
}

func (s *NotifyService) markFailed(job *deliveryJob, attempts int, reason string) {
	if err := s.deliveryRepo.MarkAttempt(s.ctx, job.DeliveryID, models.DeliveryFailed, attempts, nil); err != nil {
		s.log.Error("Failed to record failed delivery %s: %v", job.DeliveryID, err)
	}

	s.auditDelivery(job, "delivery.failed", map[string]interface{}{
		"alert_id": job.AlertID,
		"channel":  job.Channel,
		"contact":  job.ContactAddress,
		"attempts": attempts,
		"reason":   reason,
	})
}

// auditDelivery appends one delivery outcome to the audit chain in its own
// transaction. A write here never fails the delivery itself.
func (s *NotifyService) auditDelivery(job *deliveryJob, action string, payload map[string]interface{}) {
	tx, err := s.db.BeginTx(s.ctx, nil)
	if err != nil {
		s.log.Error("Failed to open audit transaction for delivery %s: %v", job.DeliveryID, err)
		return
	}
	defer tx.Rollback()

	if err := s.audit.Append(s.ctx, tx, job.OrganizationID, "delivery", job.DeliveryID, action, nil, payload); err != nil {
		s.log.Error("Failed to audit delivery %s: %v", job.DeliveryID, err)
		return
	}
	if err := tx.Commit(); err != nil {
		s.log.Error("Failed to commit delivery audit for %s: %v", job.DeliveryID, err)
	}
}

func (s *NotifyService) renderMessage(job *deliveryJob) notify.Message {
	bound := "below minimum"
	if job.Bound == models.BoundMax {
		bound = "above maximum"
	}

	subject := fmt.Sprintf("[%s] Temperature alert: %s", job.Severity, job.UnitName)
	body := fmt.Sprintf(
		"Unit %s recorded %.1f°C (%s threshold).\nAlert %s triggered at %s, escalation level %d.\nPlease acknowledge in the dashboard.",
		job.UnitName,
		float64(job.TempTenths)/10,
		bound,
		job.AlertID,
		job.TriggeredAt,
		job.Level,
	)

	return notify.Message{
		To:      job.ContactAddress,
		Subject: subject,
		Body:    body,
	}
}

func (s *NotifyService) ack(msg redisx.StreamMessage) {
	if err := redisx.AckMessage(context.Background(), s.cache, s.cfg.Stream, s.cfg.ConsumerGroup, msg.ID); err != nil {
		s.log.Error("Failed to ack stream entry %s: %v", msg.ID, err)
	}
}
