package cookieauth

import (
	"context"

	"github.com/cookieauth/cookieauth/ticket"
)

// contain routes a collaborator failure through the exception hook and
// returns the outcome: a non-nil error when the hook rethrows, otherwise an
// optional replacement ticket (authenticate only). With no hook configured
// the failure is suppressed.
func (e *Engine) contain(ctx context.Context, location string, err error, at *ticket.Ticket) (*ticket.Ticket, error) {
	ec := &ExceptionContext{
		Location: location,
		Err:      err,
		Ticket:   at,
	}
	if e.events.OnException != nil {
		e.events.OnException(ctx, ec)
	}

	if ec.Rethrow {
		e.logger.Error(err, "operation failed", "location", location)
		e.metricInc(MetricExceptionRethrown)
		e.emitAudit(ctx, auditEventExceptionRethrown, false, "", "", err, func() map[string]string {
			return map[string]string{"location": location}
		})
		return nil, err
	}

	e.logger.V(0).Info("operation failure suppressed", "location", location, "error", err.Error())
	e.metricInc(MetricExceptionSuppressed)
	e.emitAudit(ctx, auditEventExceptionSuppressed, false, "", "", err, func() map[string]string {
		return map[string]string{"location": location}
	})
	return ec.ReplacementTicket, nil
}
