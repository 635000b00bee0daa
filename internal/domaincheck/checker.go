// Package domaincheck verifies custom domains against the hosting provider's
// domain configuration.
package domaincheck

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"go_sitegen/internal/db"
	"go_sitegen/internal/deploy"
	"go_sitegen/internal/domainutil"
	"go_sitegen/internal/events"
	"go_sitegen/internal/hosting"
	"go_sitegen/internal/httpx"
	"go_sitegen/internal/model"
)

const (
	defaultARecord     = "76.76.21.21"
	defaultCNAMETarget = "cname.vercel-dns.com"
)

// Config holds the configuration for the checker
type Config struct {
	DB          *gorm.DB
	Provider    hosting.DomainConfigProvider
	Events      events.Publisher
	BaseDomain  string
	MaxAttempts int // 0 = retry forever
	ARecord     string
	CNAMETarget string
	Logger      *logrus.Entry
}

// Result is the outcome of one check
type Result struct {
	DomainID      int                `json:"domainId"`
	Domain        string             `json:"domain"`
	Verified      bool               `json:"verified"`
	Status        model.DomainStatus `json:"status"`
	DNSConfigured bool               `json:"dnsConfigured"`
	Hint          string             `json:"hint,omitempty"`
	RecordType    string             `json:"recordType,omitempty"`
	RecordValue   string             `json:"recordValue,omitempty"`
}

// Checker reconciles Domain rows with the provider's view of DNS
type Checker struct {
	db          *gorm.DB
	provider    hosting.DomainConfigProvider
	events      events.Publisher
	baseDomain  string
	maxAttempts int
	aRecord     string
	cnameTarget string
	log         *logrus.Entry
	now         func() time.Time
}

// NewChecker creates a new domain checker
func NewChecker(cfg *Config) *Checker {
	logger := cfg.Logger
	if logger == nil {
		logger = logrus.NewEntry(logrus.StandardLogger())
	}
	pub := cfg.Events
	if pub == nil {
		pub = events.Nop{}
	}
	c := &Checker{
		db:          cfg.DB,
		provider:    cfg.Provider,
		events:      pub,
		baseDomain:  cfg.BaseDomain,
		maxAttempts: cfg.MaxAttempts,
		aRecord:     cfg.ARecord,
		cnameTarget: cfg.CNAMETarget,
		log:         logger.WithField("component", "domain-checker"),
		now:         time.Now,
	}
	if c.aRecord == "" {
		c.aRecord = defaultARecord
	}
	if c.cnameTarget == "" {
		c.cnameTarget = defaultCNAMETarget
	}
	return c
}

// Attach registers a custom domain for a project as pending
func (c *Checker) Attach(ctx context.Context, userID, projectID int, fqdn string) (*model.Domain, error) {
	name, err := domainutil.Normalize(fqdn)
	if err != nil {
		return nil, httpx.ErrValidation(err.Error())
	}
	if c.baseDomain != "" && domainutil.IsUnder(name, c.baseDomain) {
		return nil, httpx.ErrValidation("platform subdomains are assigned on publish")
	}
	if _, err := domainutil.EffectiveApex(name); err != nil {
		return nil, httpx.ErrValidation(err.Error())
	}

	var count int64
	if err := c.db.WithContext(ctx).Model(&model.Project{}).
		Where("id = ? AND user_id = ?", projectID, userID).
		Count(&count).Error; err != nil {
		return nil, fmt.Errorf("failed to check project ownership: %w", err)
	}
	if count == 0 {
		return nil, httpx.ErrNotFound("project not found")
	}

	d := &model.Domain{
		ProjectID:  &projectID,
		UserID:     userID,
		Domain:     name,
		DomainType: model.DomainTypeCustom,
		Status:     model.DomainStatusPending,
	}
	if err := c.db.WithContext(ctx).Create(d).Error; err != nil {
		if db.IsDuplicateKey(err) {
			return nil, httpx.ErrConflict(fmt.Sprintf("domain %s is already attached", name))
		}
		return nil, fmt.Errorf("failed to create domain: %w", err)
	}

	c.log.WithFields(logrus.Fields{"domain": name, "project_id": projectID}).Info("custom domain attached")
	return d, nil
}

// Check verifies a domain owned by userID. Other users' domains are reported as not found.
func (c *Checker) Check(ctx context.Context, userID, domainID int) (*Result, error) {
	var d model.Domain
	err := c.db.WithContext(ctx).Where("id = ? AND user_id = ?", domainID, userID).First(&d).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, httpx.ErrNotFound("domain not found")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load domain: %w", err)
	}
	return c.check(ctx, &d)
}

// check asks the provider about d and records state changes
func (c *Checker) check(ctx context.Context, d *model.Domain) (*Result, error) {
	result := &Result{
		DomainID:      d.ID,
		Domain:        d.Domain,
		Status:        d.Status,
		DNSConfigured: d.DNSConfigured,
	}

	switch d.Status {
	case model.DomainStatusActive:
		result.Verified = true
		return result, nil
	case model.DomainStatusFailed:
		result.Hint = fmt.Sprintf("Verification of %s was abandoned after %d attempts. Remove and attach the domain again.", d.Domain, d.CheckAttempts)
		return result, nil
	case model.DomainStatusPending:
	}

	log := c.log.WithFields(logrus.Fields{"domain": d.Domain, "domain_id": d.ID})

	cfg, err := c.provider.GetDomainConfig(ctx, d.Domain)
	if err != nil {
		log.WithError(err).Warn("domain config query failed")
		return nil, deploy.ClassifyError(ctx, "domain config query failed", err)
	}

	now := c.now()
	if cfg.Configured && cfg.Verified {
		if err := c.activate(ctx, d, now); err != nil {
			return nil, err
		}
		result.Verified = true
		result.Status = model.DomainStatusActive
		result.DNSConfigured = true
		log.Info("domain verified")
		c.publish(ctx, d, model.EventDomainVerified, nil)
		return result, nil
	}

	result.DNSConfigured = cfg.Configured
	result.RecordType, result.RecordValue = c.expectedRecord(d.Domain)
	if cfg.Configured {
		result.Hint = fmt.Sprintf("DNS record detected for %s, verification pending.", d.Domain)
	} else {
		result.Hint = fmt.Sprintf("No DNS record detected yet for %s. Add a %s record pointing to %s.", d.Domain, result.RecordType, result.RecordValue)
	}

	updates := map[string]interface{}{}
	if cfg.Configured != d.DNSConfigured {
		updates["dns_configured"] = cfg.Configured
	}
	if c.maxAttempts > 0 {
		attempts := d.CheckAttempts + 1
		updates["check_attempts"] = attempts
		updates["last_checked_at"] = now
		if attempts >= c.maxAttempts && d.Status.CanTransitionTo(model.DomainStatusFailed) {
			updates["status"] = model.DomainStatusFailed
			result.Status = model.DomainStatusFailed
		}
	}
	if len(updates) == 0 {
		return result, nil
	}

	res := c.db.WithContext(ctx).Model(&model.Domain{}).
		Where("id = ? AND status = ?", d.ID, model.DomainStatusPending).
		Updates(updates)
	if res.Error != nil {
		return nil, fmt.Errorf("failed to update domain: %w", res.Error)
	}
	if result.Status == model.DomainStatusFailed && res.RowsAffected > 0 {
		log.WithField("attempts", updates["check_attempts"]).Warn("domain verification abandoned")
		c.publish(ctx, d, model.EventDomainFailed, map[string]interface{}{"attempts": updates["check_attempts"]})
	}
	return result, nil
}

func (c *Checker) activate(ctx context.Context, d *model.Domain, now time.Time) error {
	res := c.db.WithContext(ctx).Model(&model.Domain{}).
		Where("id = ? AND status = ?", d.ID, model.DomainStatusPending).
		Updates(map[string]interface{}{
			"status":          model.DomainStatusActive,
			"dns_configured":  true,
			"verified_at":     now,
			"last_checked_at": now,
		})
	if res.Error != nil {
		return fmt.Errorf("failed to activate domain: %w", res.Error)
	}
	// RowsAffected == 0 means another check activated it first
	return nil
}

// expectedRecord is the DNS record the user must create: A for apex, CNAME otherwise
func (c *Checker) expectedRecord(domain string) (string, string) {
	if apex, err := domainutil.IsApex(domain); err == nil && apex {
		return "A", c.aRecord
	}
	return "CNAME", c.cnameTarget
}

func (c *Checker) publish(ctx context.Context, d *model.Domain, eventType string, extra map[string]interface{}) {
	if d.ProjectID == nil {
		return
	}
	payload := map[string]interface{}{"domainId": d.ID, "domain": d.Domain}
	for k, v := range extra {
		payload[k] = v
	}
	c.events.Publish(ctx, *d.ProjectID, eventType, payload)
}
