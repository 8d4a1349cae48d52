package feed

// LiveBus is one vehicle entry in the live feed response.
type LiveBus struct {
	TripID       string `json:"trip_id"`
	Route        string `json:"route"`
	Headsign     string `json:"headsign"`
	Direction    string `json:"direction"`
	DueInSeconds int    `json:"dueInSeconds"`
}

// LiveResponse is the payload served by the upstream live-arrivals endpoint.
type LiveResponse struct {
	CurrentTimestamp int64     `json:"current_timestamp"`
	Live             []LiveBus `json:"live"`
}
