package messaging

import (
	"bytes"
	"encoding/xml"
)

// TwiML is a minimal Twilio Markup Language response builder. Replies are
// normally sent through the REST API, so the webhook answers with no verbs.

type twimlResponse struct {
	XMLName xml.Name       `xml:"Response"`
	Verbs   []twimlMessage `xml:"Message,omitempty"`
}

type twimlMessage struct {
	Body string `xml:",chardata"`
}

// RenderTwiML returns a response with one Message verb per text.
func RenderTwiML(messages ...string) (string, error) {
	var r twimlResponse
	for _, m := range messages {
		if m == "" {
			continue
		}
		r.Verbs = append(r.Verbs, twimlMessage{Body: m})
	}

	var buf bytes.Buffer
	buf.WriteString(xml.Header)
	enc := xml.NewEncoder(&buf)
	enc.Indent("", "  ")
	if err := enc.Encode(r); err != nil {
		return "", err
	}
	if err := enc.Flush(); err != nil {
		return "", err
	}
	return buf.String(), nil
}
