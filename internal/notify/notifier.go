package notify

import (
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/dipscan/dipscan/internal/batch"
	"github.com/dipscan/dipscan/internal/config"
)

const defaultCooldown = 15 * time.Minute

// Notification is one rule firing for one finished batch.
type Notification struct {
	RuleName string    `json:"rule_name"`
	TargetID int       `json:"kic_number"`
	Severity string    `json:"severity"`
	Message  string    `json:"message"`
	Value    float64   `json:"value"`
	FiredAt  time.Time `json:"fired_at"`
}

// Notifier evaluates configured rules against finished batch results and
// delivers webhook notifications for the ones that fire.
//
// Notifier is safe for concurrent use. A Notifier with no rules is valid —
// BatchDone becomes a no-op.
type Notifier struct {
	mu       sync.Mutex
	rules    []config.Rule
	webhooks []config.WebhookConfig
	lastFire map[string]time.Time // key: "ruleName:targetID"
	client   *http.Client
	now      func() time.Time // injectable for deterministic tests
}

// New creates a Notifier from the notify section of the config.
func New(cfg config.NotifyConfig) *Notifier {
	return &Notifier{
		rules:    cfg.Rules,
		webhooks: cfg.Webhooks,
		lastFire: make(map[string]time.Time),
		client:   &http.Client{Timeout: 10 * time.Second},
		now:      time.Now,
	}
}

// SetConfig replaces the rules and webhook targets, e.g. after a config
// hot-reload. Cooldown state is kept.
func (n *Notifier) SetConfig(cfg config.NotifyConfig) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.rules = cfg.Rules
	n.webhooks = cfg.Webhooks
}

// BatchDone tests all rules against res. Rules that fire (and are outside
// their per-target cooldown) trigger asynchronous webhook delivery.
func (n *Notifier) BatchDone(res *batch.Result) {
	n.mu.Lock()
	rules := n.rules
	n.mu.Unlock()

	for _, rule := range rules {
		fires, value := evalCondition(rule.Condition, res)
		if !fires {
			continue
		}

		key := fmt.Sprintf("%s:%d", rule.Name, res.Meta.KICNumber)
		cooldown := rule.Cooldown
		if cooldown <= 0 {
			cooldown = defaultCooldown
		}

		n.mu.Lock()
		now := n.now()
		if now.Sub(n.lastFire[key]) <= cooldown {
			n.mu.Unlock()
			continue
		}
		n.lastFire[key] = now
		n.mu.Unlock()

		sev := rule.Severity
		if sev == "" {
			sev = "warning"
		}
		note := Notification{
			RuleName: rule.Name,
			TargetID: res.Meta.KICNumber,
			Severity: sev,
			Value:    value,
			Message: fmt.Sprintf("[%s] %s fired for KIC %d: %s (value %.2f)",
				sev, rule.Name, res.Meta.KICNumber, rule.Condition, value),
			FiredAt: now,
		}

		slog.Warn("notify: rule fired",
			"rule", rule.Name,
			"kic", res.Meta.KICNumber,
			"value", value,
			"severity", sev,
		)
		go n.deliver(note)
	}
}
