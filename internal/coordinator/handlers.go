package coordinator

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"runtime/debug"
	"strings"

	"github.com/szaher/airbnb-assistant/internal/agent"
	"github.com/szaher/airbnb-assistant/internal/events"
	"github.com/szaher/airbnb-assistant/internal/extraction"
	"github.com/szaher/airbnb-assistant/internal/session"
	"github.com/szaher/airbnb-assistant/internal/telemetry"
)

// HandleStructuredOutput answers the user from an extraction reply. The
// reply is dropped when the session has no recorded sender or when the
// watchdog already answered.
func (c *Coordinator) HandleStructuredOutput(ctx context.Context, sessionID, sender string, resp extraction.Response) error {
	logger := telemetry.RequestLogger(c.logger, ctx, sessionID, sender)

	recipient, ok := c.store.Sender(sessionID)
	if !ok {
		logger.Error("discarding extraction reply: no sender recorded for session")
		return nil
	}
	if !c.store.Claim(sessionID, session.AnyGeneration, session.Resolved) {
		pending := c.store.Pending(sessionID)
		logger.Warn("dropping late extraction reply", "state", pending.State.String())
		c.metrics.RecordDroppedReply()
		c.emitter.Emit(events.New(events.ReplyDropped, sessionID).WithData("state", pending.State.String()))
		return nil
	}
	c.emitter.Emit(events.New(events.RequestResolved, sessionID))

	defer func() {
		if p := recover(); p != nil {
			logger.Error("extraction reply handler panicked", "panic", p, "stack", string(debug.Stack()))
			c.reply(ctx, logger, sessionID, recipient, msgUnexpected)
		}
	}()

	c.answer(ctx, logger, sessionID, recipient, resp.Output)
	return nil
}

func (c *Coordinator) answer(ctx context.Context, logger *slog.Logger, sessionID, to string, output map[string]any) {
	raw, err := json.Marshal(output)
	if err != nil {
		logger.Error("failed to encode extraction output", "error", err)
		c.reply(ctx, logger, sessionID, to, msgParseError)
		return
	}
	if strings.Contains(string(raw), extraction.UnknownValue) {
		logger.Info("extraction could not determine the request")
		c.reply(ctx, logger, sessionID, to, msgUnknown)
		return
	}

	var req AirbnbRequest
	if err := agent.Decode(raw, &req); err != nil {
		logger.Error("failed to decode extraction output", "error", err)
		c.reply(ctx, logger, sessionID, to, msgParseError)
		return
	}
	if req.RequestType == "" || len(req.Parameters) == 0 {
		c.reply(ctx, logger, sessionID, to, msgEmptyRequest)
		return
	}
	logger.Info("extracted request", "request_type", req.RequestType, "parameters", req.Parameters)

	switch req.RequestType {
	case RequestSearch:
		location, ok := stringParam(req.Parameters, "location")
		if !ok {
			c.reply(ctx, logger, sessionID, to, msgMissingLocation)
			return
		}
		filters := searchFilters(req.Parameters)
		outcome := c.tools.Search(ctx, location, c.opts.SearchLimit, filters)
		if !outcome.Success {
			logger.Error("search failed", "message", outcome.Message)
			c.reply(ctx, logger, sessionID, to, fmt.Sprintf(msgSearchFailed, outcome.Message))
			return
		}
		c.reply(ctx, logger, sessionID, to, outcome.FormattedOutput)

	case RequestDetails:
		id, ok := stringParam(req.Parameters, "id")
		if !ok {
			c.reply(ctx, logger, sessionID, to, msgMissingID)
			return
		}
		outcome := c.tools.GetDetails(ctx, id, pickFilters(req.Parameters, detailsFilterKeys))
		if !outcome.Success {
			logger.Error("details failed", "message", outcome.Message)
			c.reply(ctx, logger, sessionID, to, fmt.Sprintf(msgDetailsFailed, outcome.Message))
			return
		}
		c.reply(ctx, logger, sessionID, to, outcome.FormattedOutput)

	default:
		c.reply(ctx, logger, sessionID, to, fmt.Sprintf(msgUnknownType, req.RequestType))
	}
}

// HandleAirbnbRequest serves the direct request API. Every outcome is sent
// back to the sender as an AirbnbResponse or an ErrorMessage.
func (c *Coordinator) HandleAirbnbRequest(ctx context.Context, sessionID, sender string, req AirbnbRequest) error {
	logger := telemetry.RequestLogger(c.logger, ctx, sessionID, sender)
	logger.Info("direct request", "request_type", req.RequestType)

	var msg agent.Message
	switch req.RequestType {
	case RequestSearch:
		msg = c.directSearch(ctx, req.Parameters)
	case RequestDetails:
		msg = c.directDetails(ctx, req.Parameters)
	default:
		msg = agent.ErrorMessage{Error: fmt.Sprintf(errUnknownType, req.RequestType)}
	}

	if em, ok := msg.(agent.ErrorMessage); ok {
		logger.Error("direct request failed", "error", em.Error)
	}
	return c.out.Send(ctx, sender, sessionID, msg)
}

func (c *Coordinator) directSearch(ctx context.Context, params map[string]any) agent.Message {
	location, ok := stringParam(params, "location")
	if !ok {
		return agent.ErrorMessage{Error: errMissingLocation}
	}
	limit := intParam(params, "limit", defaultDirectLimit)

	outcome := c.tools.Search(ctx, location, limit, nil)
	if !outcome.Success {
		return agent.ErrorMessage{Error: outcome.Message}
	}
	return AirbnbResponse{Results: formatBrief(limit, location, outcome.Listings)}
}

func (c *Coordinator) directDetails(ctx context.Context, params map[string]any) agent.Message {
	id, ok := stringParam(params, "listing_id")
	if !ok {
		id, ok = stringParam(params, "id")
	}
	if !ok {
		return agent.ErrorMessage{Error: errMissingID}
	}

	outcome := c.tools.GetDetails(ctx, id, pickFilters(params, detailsFilterKeys))
	if !outcome.Success {
		return agent.ErrorMessage{Error: outcome.Message}
	}
	return AirbnbResponse{Results: outcome.FormattedOutput}
}
