package cli

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/google/uuid"
	"github.com/tidwall/jsonc"

	"github.com/rafaeljc/grouper/internal/event"
)

// loadEvent reads an event file. "-" reads stdin. Comments and trailing commas
// are accepted so fixtures can be annotated.
func loadEvent(path string, stdin io.Reader) (*event.Event, error) {
	var (
		data []byte
		err  error
	)
	if path == "-" {
		data, err = io.ReadAll(stdin)
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read event: %w", err)
	}

	ev, err := event.Parse(jsonc.ToJSON(data))
	if err != nil {
		return nil, err
	}
	if ev.EventID == "" {
		ev.EventID = newEventID()
	}
	return ev, nil
}

// loadText reads a rules file; an empty path yields "".
func loadText(path string) (string, error) {
	if path == "" {
		return "", nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("failed to read %s: %w", path, err)
	}
	return string(data), nil
}

// newEventID returns a random id in the 32 hex character event id form.
func newEventID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")
}
