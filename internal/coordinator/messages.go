package coordinator

// Schema names of the direct request API and health protocol.
const (
	KindAirbnbRequest  = "airbnb_request"
	KindAirbnbResponse = "airbnb_response"
	KindHealthCheck    = "health_check"
	KindAgentHealth    = "agent_health"
)

// Request types.
const (
	RequestSearch  = "search"
	RequestDetails = "details"
)

// AirbnbRequest is both the extraction target shape and the direct API
// request.
type AirbnbRequest struct {
	RequestType string         `json:"request_type" jsonschema:"one of search or details"`
	Parameters  map[string]any `json:"parameters" jsonschema:"parameters of the request"`
}

// Kind implements agent.Message.
func (AirbnbRequest) Kind() string { return KindAirbnbRequest }

// AirbnbResponse answers a direct request.
type AirbnbResponse struct {
	Results string `json:"results"`
}

// Kind implements agent.Message.
func (AirbnbResponse) Kind() string { return KindAirbnbResponse }

// HealthCheck probes the agent.
type HealthCheck struct{}

// Kind implements agent.Message.
func (HealthCheck) Kind() string { return KindHealthCheck }

// HealthStatus is healthy while the tool connection is live.
type HealthStatus string

const (
	Healthy   HealthStatus = "healthy"
	Unhealthy HealthStatus = "unhealthy"
)

// AgentHealth answers a HealthCheck.
type AgentHealth struct {
	AgentName string       `json:"agent_name"`
	Status    HealthStatus `json:"status"`
}

// Kind implements agent.Message.
func (AgentHealth) Kind() string { return KindAgentHealth }

// User-facing chat replies.
const (
	msgUnknown = "Sorry, I couldn't understand what Airbnb information you're looking for. " +
		"Please specify if you want to search for listings in a location or get details about a specific listing."
	msgParseError      = "I had trouble understanding the request. Please try rephrasing your question."
	msgEmptyRequest    = "I couldn't identify the request type or parameters. Please provide more details for your Airbnb query."
	msgMissingLocation = "I need a location to search for Airbnb listings. Please specify where you want to stay."
	msgMissingID       = "I need a listing ID to get details. Please provide the ID of the Airbnb listing you're interested in."
	msgSearchFailed    = "Sorry, I couldn't find any listings: %s"
	msgDetailsFailed   = "Sorry, I couldn't get the listing details: %s"
	msgUnknownType     = "I don't recognize the request type '%s'. Please ask for a 'search' or 'details'."
	msgUnexpected      = "Sorry, I encountered an unexpected error while processing your request. Please try again later."

	msgWatchdogNotice   = "I'm having trouble getting a response from my AI assistant. Let me try a direct search instead."
	msgWatchdogFailed   = "I'm sorry, I couldn't search for Airbnb listings at this time. Error: %s"
	msgWatchdogThanks   = "Thank you for using Airbnb Assistant."
	msgFallbackFollowUp = "These are the best available Airbnb rentals I could find for your dates."
)

// Direct API errors.
const (
	errMissingLocation = "Missing location parameter"
	errMissingID       = "Missing listing_id parameter"
	errUnknownType     = "Unknown request type: %s"
)
