package graph

// Mode selects the scope-control policy a Manager applies to discovered
// hosts.
type Mode string

const (
	ModeSingleDomain Mode = "SINGLE_DOMAIN"
	ModeCrossDomain  Mode = "CROSS_DOMAIN"
	ModeWhitelist    Mode = "WHITELIST"
	ModeGraph        Mode = "GRAPH"
	// ModeFocused is reserved: it is currently treated identically to
	// ModeGraph plus the prioritizer's keyword-priority bias. It does not
	// reject off-topic pages.
	ModeFocused Mode = "FOCUSED"
)
