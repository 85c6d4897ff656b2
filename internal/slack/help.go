package slack

import "strings"

// HelpText is returned for an empty command or "help".
const HelpText = "Please provide search criteria.\n\n" +
	"*Format:*\n" +
	"`/lead-magnet keywords=vape shops | industry=General Retail | seniority=Founder/Owner,C-Suite | target=25`\n\n" +
	"*Filters:*\n" +
	"• `keywords=` Keywords for company and product matching (comma-separated). Recommended.\n" +
	"• `industry=` Company industries, exact Prospeo values (comma-separated). \"General\" is invalid, use \"General Retail\". " +
	"All values: https://prospeo.io/api-docs/enum/industries\n" +
	"• `location=` Locations (comma-separated). Accepted but not yet applied to discovery.\n" +
	"• `seniority=` Seniority levels (comma-separated): Founder/Owner, C-Suite, Partner, Vice President, Head, Director, Manager, Senior, Intern, Entry\n" +
	"• `verified-email=true` Only companies with verified emails.\n" +
	"• `target=` Number of qualified leads to collect.\n" +
	"• `max=` Maximum companies to evaluate before stopping.\n" +
	"• `context=\"...\"` Your company description, used when judging product fit.\n\n" +
	"Quote values that contain `|` or `,`. Emails are enriched only after a company qualifies."

// IsHelp reports whether the command text asks for help.
func IsHelp(text string) bool {
	switch strings.ToLower(strings.TrimSpace(text)) {
	case "", "help", "?", "-h", "--help":
		return true
	}
	return false
}
