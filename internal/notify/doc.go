// Package notify evaluates config-driven rules against finished batch runs
// ("skipped_pct > 50", "status == all_skipped", ...) and delivers webhook
// notifications, with a per-(rule, target) cooldown. Webhook URLs are
// resolved from environment variables named in the config.
package notify
