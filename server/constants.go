package server

import "github.com/nedpals/umbral-nfc/buildinfo"

// mDNS service discovery
var (
	MDNSServiceType = buildinfo.ServiceType
	MDNSServiceName = buildinfo.DisplayName
	MDNSDomain      = "local."
)

// CORS configuration
const (
	CORSAllowOrigin  = "*"
	CORSAllowMethods = "GET, POST, OPTIONS"
	CORSAllowHeaders = "Content-Type, Authorization"
)

const apiV1 = "/api/v1"
