package models

// EventSignalUpdate is the event name subscribers listen for.
const EventSignalUpdate = "signal-update"

// SignalData is the "newData" object the dashboard merges into its instrument card.
type SignalData struct {
	Signal     SignalKind `json:"signal"`
	Conviction int        `json:"conviction"`
	DNA        [3]int     `json:"dna"`
	Analysis   string     `json:"analysis"`
}

// SignalPayload is the payload of a signal-update event.
type SignalPayload struct {
	Instrument Instrument `json:"instrument"`
	NewData    SignalData `json:"newData"`
}

// Envelope frames every message written to a subscriber.
type Envelope struct {
	Type string        `json:"type"`
	Data SignalPayload `json:"data"`
}

// Payload converts an update into its wire shape.
func (u SignalUpdate) Payload() SignalPayload {
	return SignalPayload{
		Instrument: u.Instrument,
		NewData: SignalData{
			Signal:     u.Signal,
			Conviction: u.Conviction,
			DNA:        u.DNA,
			Analysis:   u.Analysis,
		},
	}
}

// Update converts a wire payload back into an update (used by relays).
func (p SignalPayload) Update() SignalUpdate {
	return SignalUpdate{
		Instrument: p.Instrument,
		Signal:     p.NewData.Signal,
		Conviction: p.NewData.Conviction,
		DNA:        p.NewData.DNA,
		Analysis:   p.NewData.Analysis,
	}
}
