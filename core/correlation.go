package core

const (
	// CorrelationHeader carries a message's correlation id.
	CorrelationHeader = "correlation-id"

	// ReplyToHeader names the topic a reply should be published to.
	ReplyToHeader = "reply-to"
)

// IDExtractor derives the correlation id of an inbound message.
// It reports false when the message carries none.
type IDExtractor func(Message) (string, bool)

// HeaderID extracts the id from the named header.
func HeaderID(name string) IDExtractor {
	return func(m Message) (string, bool) {
		id := m.Headers()[name]
		return id, id != ""
	}
}

// KeyID uses the message key as the id.
func KeyID() IDExtractor {
	return func(m Message) (string, bool) {
		k := m.Key()
		return string(k), len(k) > 0
	}
}

// FirstID tries each extractor in order and returns the first id found.
func FirstID(extractors ...IDExtractor) IDExtractor {
	return func(m Message) (string, bool) {
		for _, e := range extractors {
			if id, ok := e(m); ok {
				return id, true
			}
		}
		return "", false
	}
}

// DefaultExtractor reads the correlation-id header and falls back to the key.
var DefaultExtractor = FirstID(HeaderID(CorrelationHeader), KeyID())
