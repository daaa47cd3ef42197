package service

import (
	"sync"
	"testing"
	"time"

	"tempiemail/backend/internal/config"
	"tempiemail/backend/internal/domain"
	"tempiemail/backend/internal/security"
	"tempiemail/backend/internal/storage/memory"
)

const scenarioAddress = "swift-fox482@disposable.email"

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

// recordingPublisher 记录收到的推送
type recordingPublisher struct {
	mu        sync.Mutex
	published []*domain.Message
}

func (p *recordingPublisher) Publish(_ string, message *domain.Message) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.published = append(p.published, message)
}

func (p *recordingPublisher) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.published)
}

type testEnv struct {
	clock     *fakeClock
	registry  *memory.Registry
	store     *memory.Store
	filter    *security.Filter
	generator *Generator
	mailbox   *MailboxService
	messages  *MessageService
	delivery  *DeliveryService
	sweeper   *Sweeper
	publisher *recordingPublisher
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	clock := &fakeClock{now: time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)}
	cfg := &config.Config{
		Mailbox: config.MailboxConfig{
			Domains:        []string{"disposable.email", "tempiemail.com"},
			AddressTTL:     48 * time.Hour,
			MessageTTL:     24 * time.Hour,
			Retention:      100,
			SweepInterval:  time.Hour,
			MaxExtendHours: 168,
		},
		Provision: config.ProvisionConfig{MaxBatch: 10},
	}

	registry := memory.NewRegistry(cfg.Mailbox.AddressTTL)
	registry.SetClock(clock.Now)
	store := memory.NewStore(registry, cfg.Mailbox.MessageTTL, cfg.Mailbox.Retention)

	filter := security.NewFilter(security.Config{
		MaxMessageBytes: 1 << 20,
		MaxPerHour:      50,
		MaxLinks:        10,
		BlockedDomains:  []string{"spam.com"},
	}, nil)
	filter.SetClock(clock.Now)

	generator, err := NewGenerator(cfg.Mailbox.Domains)
	if err != nil {
		t.Fatalf("new generator: %v", err)
	}

	publisher := &recordingPublisher{}
	delivery := NewDeliveryService(registry, store, filter, publisher, nil)
	delivery.SetClock(clock.Now)

	return &testEnv{
		clock:     clock,
		registry:  registry,
		store:     store,
		filter:    filter,
		generator: generator,
		mailbox:   NewMailboxService(registry, store, generator, cfg, nil),
		messages:  NewMessageService(store, nil),
		delivery:  delivery,
		sweeper:   NewSweeper(registry, store, filter, time.Hour, nil),
		publisher: publisher,
	}
}
