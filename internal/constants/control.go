package constants

// Loopback control server port range. The first free port wins.
const (
	ControlPortStart = 64120
	ControlPortEnd   = 64130
)

const (
	StatusEndpoint      = "/sonarlint/api/status"
	ShowHotspotEndpoint = "/sonarlint/api/hotspots/show"

	ParamProject = "project"
	ParamHotspot = "hotspot"
	ParamServer  = "server"
)

// CodeScan cloud hosts. Requests from these origins are trusted over HTTPS.
const (
	CodeScanUSURL    = "https://app.codescan.io"
	CodeScanEUURL    = "https://app-eu.codescan.io"
	CodeScanUSDomain = "app.codescan.io"
	CodeScanEUDomain = "app-eu.codescan.io"
)

// Brand labels shown on server notification alerts.
const (
	CloudBrandLabel      = "CodeScan"
	SelfHostedBrandLabel = "SonarQube"
)
