package notifier

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Config governs the cooldown-gated dedup policy of spec §7/§4.9. SMTP
// transport credentials live here too since they are, per spec §6's
// environment table, recognized configuration — the transport itself
// is an external collaborator (spec §1), so only the address/cooldown
// policy is consumed inside this module.
type Config struct {
	Cooldown time.Duration `envconfig:"NOTIFIER_COOLDOWN" default:"5m"`

	SMTPHost string `envconfig:"SMTP_HOST" default:""`
	SMTPPort int    `envconfig:"SMTP_PORT" default:"587"`
	SMTPUser string `envconfig:"SMTP_USER" default:""`
	SMTPPass string `envconfig:"SMTP_PASS" default:""`
	FromAddr string `envconfig:"SMTP_FROM" default:""`
	ToAddr   string `envconfig:"SMTP_TO" default:""`
}

func GetConfig() Config {
	var config Config
	if err := envconfig.Process("", &config); err != nil {
		panic(fmt.Errorf("error processing notifier env config: %w", err))
	}
	return config
}
