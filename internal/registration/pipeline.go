package registration

import (
	"context"
	"errors"
	"log"
	"strings"
	"time"

	"github.com/screenfleet/server/internal/credentials"
	"github.com/screenfleet/server/internal/model"
	"github.com/screenfleet/server/internal/repo"
)

// Request is the caller-supplied registration payload.
type Request struct {
	DeviceName      string
	OrgCode         string
	RegistrationKey string
	HardwareID      string
	MACAddresses    []string
	Capabilities    []string
}

// ClientContext carries the network-level context of the registration call.
type ClientContext struct {
	IP        string
	UserAgent string
	Headers   map[string]string
}

// Result is returned on a successful registration.
type Result struct {
	Device      model.DeviceIdentity
	RiskScore   float64
	Credentials credentials.Credentials
}

// Pipeline orchestrates key validation, uniqueness checks, risk scoring,
// rate limiting, and persistence into a single device registration flow.
type Pipeline struct {
	keys      repo.KeyRepo
	devices   repo.DeviceRepo
	companies repo.CompanyRepo
	attempts  repo.AttemptRepo
	limiter   *RateLimiter
	issuer    credentials.Issuer

	highRisk float64
	now      func() time.Time
}

// NewPipeline creates a registration pipeline
func NewPipeline(
	keys repo.KeyRepo,
	devices repo.DeviceRepo,
	companies repo.CompanyRepo,
	attempts repo.AttemptRepo,
	limiter *RateLimiter,
	issuer credentials.Issuer,
	highRiskThreshold float64,
) *Pipeline {
	return &Pipeline{
		keys:      keys,
		devices:   devices,
		companies: companies,
		attempts:  attempts,
		limiter:   limiter,
		issuer:    issuer,
		highRisk:  highRiskThreshold,
		now:       time.Now,
	}
}

// Register runs the ordered registration steps. Each validation step
// short-circuits with a typed error and records the failed attempt; any
// unexpected error is logged and surfaced as a generic failure without
// leaking internals.
func (p *Pipeline) Register(ctx context.Context, req Request, client ClientContext) (*Result, error) {
	// Snapshot before Allow records the current call, so the risk signals
	// reflect history prior to this attempt.
	priorFailures, recentAttempts := p.limiter.Snapshot(client.IP)

	if !p.limiter.Allow(client.IP) {
		p.recordAttempt(ctx, req, client, false, "rate limited")
		return nil, ErrRateLimited
	}

	key, err := p.keys.GetByKey(ctx, req.RegistrationKey)
	if err != nil {
		if errors.Is(err, repo.ErrKeyNotFound) {
			return nil, p.fail(ctx, req, client, ErrInvalidKey)
		}
		return nil, p.internal(ctx, req, client, err)
	}
	if key.Used {
		return nil, p.fail(ctx, req, client, ErrKeyAlreadyUsed)
	}
	if p.now().After(key.ExpiresAt) {
		return nil, p.fail(ctx, req, client, ErrKeyExpired)
	}

	company, err := p.companies.GetByID(ctx, key.CompanyID)
	if err != nil {
		if errors.Is(err, repo.ErrCompanyNotFound) {
			return nil, p.fail(ctx, req, client, ErrCompanyNotFound)
		}
		return nil, p.internal(ctx, req, client, err)
	}

	existing, err := p.devices.ListByCompany(ctx, company.ID)
	if err != nil {
		return nil, p.internal(ctx, req, client, err)
	}
	normalized := normalizeName(req.DeviceName)
	for _, d := range existing {
		if d.Name == req.DeviceName {
			return nil, p.fail(ctx, req, client, ErrDuplicateName)
		}
		if normalizeName(d.Name) == normalized {
			return nil, p.fail(ctx, req, client, ErrSimilarNameExists)
		}
	}

	fingerprint := Fingerprint(req.DeviceName, req.OrgCode, client.Headers, req.Capabilities)
	score := Score(Signals{
		PriorFailures:     priorFailures,
		AttemptsLast10Min: recentAttempts,
		RequestTime:       p.now(),
		HardwareID:        req.HardwareID,
		MACCount:          len(req.MACAddresses),
		UserAgent:         client.UserAgent,
	})

	status := model.DeviceStatusActive
	if score >= p.highRisk {
		status = model.DeviceStatusPendingReview
		profile := model.SecurityProfile{
			Fingerprint: fingerprint,
			IP:          client.IP,
			UserAgent:   client.UserAgent,
			RiskScore:   score,
			Timestamp:   p.now(),
		}
		log.Printf("high-risk registration gated for review: ip=%s fingerprint=%s score=%.1f ua=%q",
			profile.IP, profile.Fingerprint, profile.RiskScore, profile.UserAgent)
	}

	device, err := p.devices.Create(ctx, model.DeviceIdentity{
		CompanyID:    company.ID,
		Name:         req.DeviceName,
		Status:       status,
		Fingerprint:  fingerprint,
		IPAddress:    client.IP,
		MACAddresses: req.MACAddresses,
	})
	if err != nil {
		return nil, p.internal(ctx, req, client, err)
	}

	creds, err := p.issuer.Issue(ctx, device.ID, company.ID, company.Name)
	if err != nil {
		p.rollback(ctx, device)
		p.recordFailure(ctx, req, client, ErrCredentialIssuance.Error())
		return nil, ErrCredentialIssuance
	}

	claimed, err := p.keys.MarkUsed(ctx, key.Key, device.ID)
	if err != nil {
		p.rollback(ctx, device)
		return nil, p.internal(ctx, req, client, err)
	}
	if !claimed {
		// Lost the race for the key: exactly one concurrent registration
		// may win, everyone else rolls their device back.
		p.rollback(ctx, device)
		return nil, p.fail(ctx, req, client, ErrKeyAlreadyUsed)
	}

	p.limiter.RecordSuccess(client.IP)
	p.recordAttempt(ctx, req, client, true, "")

	return &Result{
		Device:      device,
		RiskScore:   score,
		Credentials: creds,
	}, nil
}

// fail records a typed validation failure and returns the error unchanged.
func (p *Pipeline) fail(ctx context.Context, req Request, client ClientContext, cause error) error {
	p.recordFailure(ctx, req, client, cause.Error())
	return cause
}

// internal logs an unexpected error with context and hides it from the caller.
func (p *Pipeline) internal(ctx context.Context, req Request, client ClientContext, cause error) error {
	log.Printf("registration failed internally: ip=%s device=%q err=%v", client.IP, req.DeviceName, cause)
	p.recordFailure(ctx, req, client, "internal error")
	return errors.New("registration failed")
}

func (p *Pipeline) recordFailure(ctx context.Context, req Request, client ClientContext, reason string) {
	p.limiter.RecordFailure(client.IP)
	p.recordAttempt(ctx, req, client, false, reason)
}

func (p *Pipeline) recordAttempt(ctx context.Context, req Request, client ClientContext, success bool, reason string) {
	err := p.attempts.Insert(ctx, model.RegistrationAttempt{
		SourceIP:      client.IP,
		DeviceName:    req.DeviceName,
		KeyPrefix:     truncateKey(req.RegistrationKey),
		Success:       success,
		FailureReason: reason,
	})
	if err != nil {
		log.Printf("failed to record registration attempt: %v", err)
	}
}

func (p *Pipeline) rollback(ctx context.Context, device model.DeviceIdentity) {
	if err := p.devices.Delete(ctx, device.ID); err != nil {
		log.Printf("failed to roll back device %s: %v", device.ID, err)
	}
}

// normalizeName collapses case, whitespace, and hyphens so typo duplicates
// like "Lobby Screen-1" vs "lobby-screen 1" are caught.
func normalizeName(name string) string {
	s := strings.ToLower(name)
	s = strings.ReplaceAll(s, " ", "")
	s = strings.ReplaceAll(s, "-", "")
	s = strings.ReplaceAll(s, "_", "")
	return s
}

// truncateKey keeps only a prefix of the key for audit records.
func truncateKey(key string) string {
	if len(key) <= 8 {
		return key
	}
	return key[:8]
}
