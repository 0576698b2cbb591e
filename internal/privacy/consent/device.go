package consent

import (
	"github.com/mssola/useragent"
)

// describeDevice condenses a raw User-Agent header into a short human-readable
// label for the consent record, e.g. "Chrome 120.0 on Linux x86_64". Consent
// evidence keeps the raw header too; this is for operator-facing views.
func describeDevice(rawUA string) string {
	if rawUA == "" {
		return ""
	}

	ua := useragent.New(rawUA)
	name, version := ua.Browser()
	if name == "" {
		return rawUA
	}

	label := name
	if version != "" {
		label += " " + version
	}
	if os := ua.OS(); os != "" {
		label += " on " + os
	}
	if ua.Mobile() {
		label += " (mobile)"
	}
	if ua.Bot() {
		label += " (bot)"
	}
	return label
}
