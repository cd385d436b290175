package transform

import (
	"github.com/mssola/useragent"

	"github.com/siddharthsingh10/streaming-data-pipeline/internal/event"
)

// parseUserAgent extracts browser, OS, and device class from a raw user-agent
// string. Anything unparsable degrades to the unknown placeholder; this never
// fails the transform.
func parseUserAgent(raw string) event.UserAgentInfo {
	if raw == "" {
		return event.UnknownUserAgent()
	}

	ua := useragent.New(raw)

	info := event.UnknownUserAgent()
	if name, _ := ua.Browser(); name != "" {
		info.Browser = name
	}
	if os := ua.OSInfo().Name; os != "" {
		info.OS = os
	}
	if info.Browser == "unknown" && info.OS == "unknown" {
		// Nothing recognizable in the string.
		return event.UnknownUserAgent()
	}
	switch {
	case ua.Bot():
		info.DeviceType = "bot"
	case ua.Mobile():
		info.DeviceType = "mobile"
	default:
		info.DeviceType = "desktop"
	}
	return info
}
