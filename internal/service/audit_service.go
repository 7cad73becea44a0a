package service

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"

	"ColdChainAPI/internal/logger"
	"ColdChainAPI/internal/models"
	"ColdChainAPI/internal/repository"
)

// AuditService appends tamper-evident records of state transitions and
// delivery attempts. Each organization has its own hash chain:
// hash = sha256(prev_hash || canonical payload).
type AuditService struct {
	auditRepo *repository.AuditRepository
	log       *logger.Logger
}

func NewAuditService(auditRepo *repository.AuditRepository, log *logger.Logger) *AuditService {
	return &AuditService{
		auditRepo: auditRepo,
		log:       log,
	}
}

// Canonicalize produces a stable byte form of a payload: JSON with
// lexicographically ordered keys, so the same logical payload always hashes
// identically.
func Canonicalize(payload interface{}) ([]byte, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal audit payload: %w", err)
	}

	// Round-trip through a map: encoding/json sorts map keys on output.
	var generic interface{}
	if err := json.Unmarshal(raw, &generic); err != nil {
		return nil, fmt.Errorf("failed to canonicalize audit payload: %w", err)
	}

	canonical, err := json.Marshal(generic)
	if err != nil {
		return nil, fmt.Errorf("failed to canonicalize audit payload: %w", err)
	}

	return canonical, nil
}

// ComputeHash links one payload onto the chain.
func ComputeHash(prevHash string, canonical []byte) string {
	h := sha256.New()
	h.Write([]byte(prevHash))
	h.Write(canonical)
	return hex.EncodeToString(h.Sum(nil))
}

// Append writes one chain link inside the caller's transaction, so the audit
// record commits or rolls back together with the state change it describes.
func (s *AuditService) Append(ctx context.Context, q repository.Querier, organizationID, entityType, entityID, action string, actorID *string, payload interface{}) error {
	if err := s.auditRepo.LockChain(ctx, q, organizationID); err != nil {
		return err
	}

	prevHash, err := s.auditRepo.GetLastHash(ctx, q, organizationID)
	if err != nil {
		return err
	}

	canonical, err := Canonicalize(payload)
	if err != nil {
		return err
	}

	event := &models.AuditEvent{
		OrganizationID: organizationID,
		EntityType:     entityType,
		EntityID:       entityID,
		Action:         action,
		ActorID:        actorID,
		PrevHash:       prevHash,
		Hash:           ComputeHash(prevHash, canonical),
		Payload:        canonical,
	}

	if err := s.auditRepo.Append(ctx, q, event); err != nil {
		return err
	}

	return nil
}

// VerifyChain recomputes an organization's full chain and reports the first
// broken link, if any.
func (s *AuditService) VerifyChain(ctx context.Context, organizationID string) (*models.ChainVerifyReport, error) {
	events, err := s.auditRepo.ListByOrganization(ctx, organizationID)
	if err != nil {
		return nil, err
	}

	report := &models.ChainVerifyReport{OK: true}
	prevHash := ""

	for _, event := range events {
		expected := ComputeHash(prevHash, event.Payload)
		if event.PrevHash != prevHash || event.Hash != expected {
			report.OK = false
			report.FirstBreakID = event.ID
			break
		}
		prevHash = event.Hash
		report.Checked++
		report.LastHash = event.Hash
	}

	return report, nil
}
