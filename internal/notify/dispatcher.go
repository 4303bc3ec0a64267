package notify

import (
	"context"

	"github.com/rs/zerolog"
)

type Channel string

const (
	ChannelEmail Channel = "email"
	ChannelSMS   Channel = "sms"
)

// Request is the shape handed to the notification collaborator. The
// core decides when and what stage; transport is somebody else's job.
type Request struct {
	Channel    Channel
	Recipient  string
	TemplateID string
	Payload    map[string]string
}

// Dispatcher delivers one notification and reports success or failure.
type Dispatcher interface {
	Dispatch(ctx context.Context, req Request) error
}

// LogDispatcher logs instead of sending. Default in dev and in tests.
type LogDispatcher struct {
	log zerolog.Logger
}

func NewLogDispatcher(log zerolog.Logger) *LogDispatcher {
	return &LogDispatcher{log: log}
}

func (d *LogDispatcher) Dispatch(_ context.Context, req Request) error {
	d.log.Info().
		Str("channel", string(req.Channel)).
		Str("recipient", req.Recipient).
		Str("template_id", req.TemplateID).
		Msg("notification dispatched (log only)")
	return nil
}
