// Vigia - Presence and Geo-Distribution Telemetry for PlenaVideo
// Copyright 2026 Plena Video
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/plenavideo/vigia

// Package device classifies clients as mobile, tablet or desktop from
// their declared user-agent string.
package device

import (
	"strings"

	"github.com/plenavideo/vigia/internal/models"
)

// tabletTokens are checked before mobileTokens: iPad and Android tablet
// user agents frequently also contain "mobile".
var tabletTokens = []string{
	"ipad",
	"tablet",
	"kindle",
	"silk",
	"playbook",
}

var mobileTokens = []string{
	"iphone",
	"ipod",
	"android",
	"windows phone",
	"blackberry",
	"opera mini",
	"mobile",
}

// Classify returns the device type for a user-agent string. Unknown or
// empty user agents default to desktop.
func Classify(userAgent string) models.DeviceType {
	ua := strings.ToLower(userAgent)

	for _, token := range tabletTokens {
		if strings.Contains(ua, token) {
			return models.DeviceTablet
		}
	}

	for _, token := range mobileTokens {
		if strings.Contains(ua, token) {
			return models.DeviceMobile
		}
	}

	return models.DeviceDesktop
}
