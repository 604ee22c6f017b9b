package entity

// WalletRole is the structural role of a wallet derived from its flows
type WalletRole string

const (
	RoleSource       WalletRole = "SOURCE"       // mostly sends funds out
	RoleSink         WalletRole = "SINK"         // mostly receives funds
	RoleIntermediary WalletRole = "INTERMEDIARY" // passes funds through
	RoleExchange     WalletRole = "EXCHANGE"     // externally labeled exchange wallet
)

// RiskLevel represents the composite risk level of a pattern analysis
type RiskLevel string

const (
	RiskLevelLow      RiskLevel = "LOW"
	RiskLevelMedium   RiskLevel = "MEDIUM"
	RiskLevelHigh     RiskLevel = "HIGH"
	RiskLevelCritical RiskLevel = "CRITICAL"
)

// RiskLevelFromScore maps a weighted pattern score onto the risk level table
// Low < 1.0 <= Medium < 2.0 <= High < 3.0 <= Critical
func RiskLevelFromScore(score float64) RiskLevel {
	switch {
	case score >= 3.0:
		return RiskLevelCritical
	case score >= 2.0:
		return RiskLevelHigh
	case score >= 1.0:
		return RiskLevelMedium
	default:
		return RiskLevelLow
	}
}

// SignalKind identifies one evidence signal of the side-wallet model
type SignalKind string

const (
	SignalConnectivity         SignalKind = "connectivity"
	SignalSharedFunders        SignalKind = "shared_funders"
	SignalSharedCounterparties SignalKind = "shared_counterparties"
	SignalBehavioral           SignalKind = "behavioral"
	SignalTemporal             SignalKind = "temporal"
)

// SignalKinds lists every signal in scoring order
var SignalKinds = []SignalKind{
	SignalConnectivity,
	SignalSharedFunders,
	SignalSharedCounterparties,
	SignalBehavioral,
	SignalTemporal,
}

// Direction describes how a candidate is connected to the main wallet
type Direction string

const (
	DirectionInbound       Direction = "inbound"
	DirectionOutbound      Direction = "outbound"
	DirectionBidirectional Direction = "bidirectional"
)

// WashPatternType classifies a wash trading cycle by its length
type WashPatternType string

const (
	WashDirectBackAndForth WashPatternType = "DIRECT_BACK_AND_FORTH"
	WashCircularThreeWay   WashPatternType = "CIRCULAR_THREE_WAY"
	WashMultiHop           WashPatternType = "MULTI_HOP"
)
