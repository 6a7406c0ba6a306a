package bus

import (
	"time"

	"github.com/google/uuid"
)

// Type identifies one kind of event. Values are namespaced by the domain
// that produces them (system.*, audio.*, speech.*, tts.*, gui.*, skill.*).
type Type string

const (
	// System events.
	EventStartup  Type = "system.startup"
	EventShutdown Type = "system.shutdown"
	EventError    Type = "system.error"

	// Audio events.
	EventAudioStart Type = "audio.start"
	EventAudioStop  Type = "audio.stop"
	EventAudioLevel Type = "audio.level"

	// Speech recognition events.
	EventSpeechStart      Type = "speech.start"
	EventSpeechEnd        Type = "speech.end"
	EventSpeechResult     Type = "speech.result"
	EventSpeechRecognized Type = "speech.recognized"

	// TTS events.
	EventTTSStart Type = "tts.start"
	EventTTSEnd   Type = "tts.end"
	EventTTSSay   Type = "tts.say"

	// GUI events.
	EventGUIReady  Type = "gui.ready"
	EventGUIUpdate Type = "gui.update"

	// Skill events.
	EventSkillLoaded   Type = "skill.loaded"
	EventSkillError    Type = "skill.error"
	EventSkillResponse Type = "skill.response"
)

// Event is one immutable notification delivered through the bus. Subscribers
// share the same Data map and must not mutate it.
type Event struct {
	ID     uuid.UUID      `json:"id"`
	Type   Type           `json:"type"`
	Data   map[string]any `json:"data,omitempty"`
	Source string         `json:"source,omitempty"`
	At     time.Time      `json:"at"`
}

// NewEvent constructs an event with a fresh ID and timestamp.
func NewEvent(eventType Type, data map[string]any) Event {
	return Event{
		ID:   uuid.New(),
		Type: eventType,
		Data: data,
		At:   time.Now().UTC(),
	}
}

// WithSource returns a copy of the event attributed to the given producer.
func (e Event) WithSource(source string) Event {
	e.Source = source
	return e
}

// Record pairs an event with the instant it entered the history buffer.
type Record struct {
	At    time.Time
	Event Event
}
