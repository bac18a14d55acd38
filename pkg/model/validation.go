package model

import (
	"fmt"
	"strings"

	"github.com/gorhill/cronexpr"
)

// ValidateCronExpression validates a cron expression format.
// Returns an error if the expression cannot be parsed.
func ValidateCronExpression(cronExpr string) error {
	if cronExpr == "" {
		return fmt.Errorf("cron expression cannot be empty")
	}

	_, err := cronexpr.Parse(cronExpr)
	if err != nil {
		return fmt.Errorf("invalid cron expression '%s': %v", cronExpr, err)
	}

	return nil
}

// ValidateRecipientDomains validates that every address in the raw
// recipient list matches the allowed domain whitelist. An empty
// whitelist allows all domains.
func ValidateRecipientDomains(recipients []string, allowedDomains []string) error {
	if len(allowedDomains) == 0 {
		return nil
	}

	for _, email := range recipients {
		email = strings.TrimSpace(email)
		if email == "" {
			continue
		}

		domain := extractDomain(email)
		if domain == "" {
			return fmt.Errorf("invalid email address format: %s", email)
		}

		if !isDomainAllowed(domain, allowedDomains) {
			return fmt.Errorf("email domain '%s' is not allowed (email: %s). Allowed domains: %v", domain, email, allowedDomains)
		}
	}

	return nil
}

// extractDomain extracts the domain part from an email address
func extractDomain(email string) string {
	parts := strings.Split(email, "@")
	if len(parts) != 2 {
		return ""
	}
	return strings.ToLower(strings.TrimSpace(parts[1]))
}

// isDomainAllowed checks if a domain matches any entry in the allowed domains list
// Supports exact matches and wildcard patterns (e.g., "*.example.com")
func isDomainAllowed(domain string, allowedDomains []string) bool {
	domain = strings.ToLower(domain)

	for _, allowed := range allowedDomains {
		allowed = strings.ToLower(strings.TrimSpace(allowed))

		if domain == allowed {
			return true
		}

		// Wildcard pattern (e.g., "*.example.com")
		if strings.HasPrefix(allowed, "*.") {
			baseDomain := allowed[2:]
			if domain == baseDomain || strings.HasSuffix(domain, "."+baseDomain) {
				return true
			}
		}
	}

	return false
}

// ValidateSchedule checks a schedule is internally consistent before it
// is accepted by the management surface.
func ValidateSchedule(s *Schedule) error {
	if err := ValidateCronExpression(s.CronExpr); err != nil {
		return err
	}

	switch s.TargetKind {
	case TargetDashboard:
		if s.DashboardID == 0 {
			return fmt.Errorf("dashboard schedule requires a dashboard id")
		}
	case TargetChart:
		if s.ChartID == 0 {
			return fmt.Errorf("chart schedule requires a chart id")
		}
		switch s.ChartFormat {
		case FormatData, FormatVisualization:
		default:
			return fmt.Errorf("unknown chart format '%s'", s.ChartFormat)
		}
	default:
		return fmt.Errorf("unknown target kind '%s'", s.TargetKind)
	}

	switch s.DeliveryMode {
	case DeliveryAttachment, DeliveryInline:
	default:
		return fmt.Errorf("unknown delivery mode '%s'", s.DeliveryMode)
	}

	if s.Recipients == "" && s.SlackChannel == "" {
		return fmt.Errorf("schedule needs at least one delivery channel (recipients or slack channel)")
	}

	return nil
}
